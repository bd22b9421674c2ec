package model

import (
	"fmt"
	"strings"

	tcerrors "github.com/devrev/tablecore/internal/errors"
)

// InstantTimeLength is the fixed width of every instant timestamp (yyyyMMddHHmmssSSS).
// Lexicographic order of timestamps equals chronological order only while the width is fixed.
const InstantTimeLength = 17

// Action is the kind of table mutation an instant records
type Action string

const (
	ActionCommit      Action = "commit"
	ActionDeltaCommit Action = "delta_commit"
	ActionCompaction  Action = "compaction"
	ActionReplace     Action = "replace"
)

// State is the lifecycle state of an instant
type State string

const (
	StateRequested State = "requested"
	StateInflight  State = "inflight"
	StateCompleted State = "completed"
)

// rank orders states along the only legal direction of travel
func (s State) rank() int {
	switch s {
	case StateRequested:
		return 0
	case StateInflight:
		return 1
	case StateCompleted:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is part of the state vocabulary
func (s State) Valid() bool {
	return s.rank() >= 0
}

// Valid reports whether a is part of the action vocabulary
func (a Action) Valid() bool {
	switch a {
	case ActionCommit, ActionDeltaCommit, ActionCompaction, ActionReplace:
		return true
	}
	return false
}

// IsWriteAction reports whether a records data written by a writer
func (a Action) IsWriteAction() bool {
	return a == ActionCommit || a == ActionDeltaCommit || a == ActionReplace
}

// ProducesBaseFiles reports whether instants of this action write base files
func (a Action) ProducesBaseFiles() bool {
	return a == ActionCommit || a == ActionCompaction || a == ActionReplace
}

// Instant is one state of one action at one logical time
type Instant struct {
	Action    Action
	State     State
	Timestamp string
}

// NewInstant creates an instant value
func NewInstant(state State, action Action, timestamp string) Instant {
	return Instant{Action: action, State: state, Timestamp: timestamp}
}

func (i Instant) IsRequested() bool { return i.State == StateRequested }
func (i Instant) IsInflight() bool  { return i.State == StateInflight }
func (i Instant) IsCompleted() bool { return i.State == StateCompleted }

// IsPending reports whether the instant has not reached its terminal state
func (i Instant) IsPending() bool { return i.State != StateCompleted }

// Compare orders instants by timestamp, then by state progression, then by action
func (i Instant) Compare(o Instant) int {
	if c := strings.Compare(i.Timestamp, o.Timestamp); c != 0 {
		return c
	}
	if ri, ro := i.State.rank(), o.State.rank(); ri != ro {
		if ri < ro {
			return -1
		}
		return 1
	}
	return strings.Compare(string(i.Action), string(o.Action))
}

// FileName returns the durable artifact name: <timestamp>.<action>.<state>
func (i Instant) FileName() string {
	return fmt.Sprintf("%s.%s.%s", i.Timestamp, i.Action, i.State)
}

func (i Instant) String() string {
	return fmt.Sprintf("[%s__%s__%s]", i.Timestamp, i.Action, strings.ToUpper(string(i.State)))
}

// ParseInstantFileName parses a durable artifact name produced by FileName
func ParseInstantFileName(name string) (Instant, error) {
	parts := strings.Split(name, ".")
	if len(parts) != 3 {
		return Instant{}, fmt.Errorf("malformed instant file name %q", name)
	}
	if !IsValidInstantTime(parts[0]) {
		return Instant{}, fmt.Errorf("malformed instant time in %q", name)
	}
	action, state := Action(parts[1]), State(parts[2])
	if !action.Valid() {
		return Instant{}, fmt.Errorf("unknown action %q in %q", parts[1], name)
	}
	if !state.Valid() {
		return Instant{}, fmt.Errorf("unknown state %q in %q", parts[2], name)
	}
	return NewInstant(state, action, parts[0]), nil
}

// IsValidInstantTime reports whether ts is a fixed-width, all-digit instant timestamp
func IsValidInstantTime(ts string) bool {
	if len(ts) != InstantTimeLength {
		return false
	}
	for _, r := range ts {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type transitionKey struct {
	action Action
	from   State
	to     State
}

// transitions is the complete set of legal state changes. The value is the action the
// resulting instant carries: a finished compaction is published as a commit.
var transitions = map[transitionKey]Action{
	{ActionCommit, StateRequested, StateInflight}:      ActionCommit,
	{ActionCommit, StateInflight, StateCompleted}:      ActionCommit,
	{ActionDeltaCommit, StateRequested, StateInflight}: ActionDeltaCommit,
	{ActionDeltaCommit, StateInflight, StateCompleted}: ActionDeltaCommit,
	{ActionReplace, StateRequested, StateInflight}:     ActionReplace,
	{ActionReplace, StateInflight, StateCompleted}:     ActionReplace,
	{ActionCompaction, StateRequested, StateInflight}:  ActionCompaction,
	{ActionCompaction, StateInflight, StateCompleted}:  ActionCommit,
}

// Transition returns the instant that follows i when moving to state to.
// Skipping a state, moving backwards or reopening a completed instant is rejected.
func (i Instant) Transition(to State) (Instant, error) {
	action, ok := transitions[transitionKey{i.Action, i.State, to}]
	if !ok {
		return Instant{}, tcerrors.InvalidTransition(i.Timestamp, string(i.Action)+"."+string(i.State), string(to))
	}
	return NewInstant(to, action, i.Timestamp), nil
}

// SameLifecycle reports whether two artifacts may describe the same instant at different
// states. Only a compaction may change action, and only into a commit.
func SameLifecycle(a, b Instant) bool {
	if a.Timestamp != b.Timestamp {
		return false
	}
	if a.Action == b.Action {
		return true
	}
	isPair := func(x, y Instant) bool {
		return x.Action == ActionCompaction && x.State != StateCompleted &&
			y.Action == ActionCommit && y.State == StateCompleted
	}
	return isPair(a, b) || isPair(b, a)
}
