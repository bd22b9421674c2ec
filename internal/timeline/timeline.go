package timeline

import (
	"iter"
	"slices"

	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/model"
)

// Timeline is an immutable, ordered snapshot of instants. Filters return new timelines
// and never touch the receiver; observing newer state requires a fresh load.
type Timeline struct {
	instants []model.Instant
}

// New builds a timeline from instants that are already collapsed to one state per timestamp
func New(instants []model.Instant) *Timeline {
	sorted := slices.Clone(instants)
	slices.SortFunc(sorted, func(a, b model.Instant) int { return a.Compare(b) })
	return &Timeline{instants: sorted}
}

// FromArtifacts collapses raw durable artifacts into a timeline holding the most advanced
// state of each timestamp. Artifacts of different actions on one timestamp are corrupt
// unless they are a compaction and the commit it completed into.
func FromArtifacts(artifacts []model.Instant) (*Timeline, error) {
	latest := make(map[string]model.Instant, len(artifacts))
	for _, a := range artifacts {
		cur, ok := latest[a.Timestamp]
		if !ok {
			latest[a.Timestamp] = a
			continue
		}
		if !model.SameLifecycle(cur, a) {
			return nil, tcerrors.CorruptedMetadata(
				"conflicting actions on one instant time", nil).
				WithDetail("instant", a.Timestamp).
				WithDetail("actions", []string{string(cur.Action), string(a.Action)})
		}
		if cur.Compare(a) < 0 {
			latest[a.Timestamp] = a
		}
	}
	collapsed := make([]model.Instant, 0, len(latest))
	for _, in := range latest {
		collapsed = append(collapsed, in)
	}
	return New(collapsed), nil
}

// Instants returns a restartable sequence over the snapshot in ascending order.
// Each call yields an independent traversal.
func (t *Timeline) Instants() iter.Seq[model.Instant] {
	return func(yield func(model.Instant) bool) {
		for _, in := range t.instants {
			if !yield(in) {
				return
			}
		}
	}
}

// List returns a copy of the instants in ascending order
func (t *Timeline) List() []model.Instant {
	return slices.Clone(t.instants)
}

// Count returns the number of instants
func (t *Timeline) Count() int { return len(t.instants) }

// Empty reports whether the timeline holds no instants
func (t *Timeline) Empty() bool { return len(t.instants) == 0 }

// Filter returns a new timeline holding the instants accepted by keep
func (t *Timeline) Filter(keep func(model.Instant) bool) *Timeline {
	out := make([]model.Instant, 0, len(t.instants))
	for _, in := range t.instants {
		if keep(in) {
			out = append(out, in)
		}
	}
	return &Timeline{instants: out}
}

func (t *Timeline) FilterCompleted() *Timeline {
	return t.Filter(model.Instant.IsCompleted)
}

func (t *Timeline) FilterPending() *Timeline {
	return t.Filter(model.Instant.IsPending)
}

func (t *Timeline) FilterInflight() *Timeline {
	return t.Filter(model.Instant.IsInflight)
}

func (t *Timeline) FilterRequested() *Timeline {
	return t.Filter(model.Instant.IsRequested)
}

// FilterWriteActions keeps commit, delta_commit and replace instants
func (t *Timeline) FilterWriteActions() *Timeline {
	return t.Filter(func(in model.Instant) bool { return in.Action.IsWriteAction() })
}

// FilterCompactions keeps instants still carrying the compaction action, i.e. compactions
// that have not completed into a commit yet
func (t *Timeline) FilterCompactions() *Timeline {
	return t.Filter(func(in model.Instant) bool { return in.Action == model.ActionCompaction })
}

func (t *Timeline) FilterPendingCompactions() *Timeline {
	return t.Filter(func(in model.Instant) bool {
		return in.Action == model.ActionCompaction && in.IsPending()
	})
}

func (t *Timeline) FilterDeltaCommits() *Timeline {
	return t.Filter(func(in model.Instant) bool { return in.Action == model.ActionDeltaCommit })
}

func (t *Timeline) FilterCommits() *Timeline {
	return t.Filter(func(in model.Instant) bool { return in.Action == model.ActionCommit })
}

// FilterCommitAndReplace keeps the actions that produce base files through writers or compaction
func (t *Timeline) FilterCommitAndReplace() *Timeline {
	return t.Filter(func(in model.Instant) bool {
		return in.Action == model.ActionCommit || in.Action == model.ActionReplace
	})
}

// FilterWriteAndCompaction keeps every action that may add data files
func (t *Timeline) FilterWriteAndCompaction() *Timeline {
	return t.Filter(func(in model.Instant) bool {
		return in.Action.IsWriteAction() || in.Action == model.ActionCompaction
	})
}

// FilterCompletedAndCompactions is the reader timeline: completed instants plus pending
// compactions, whose slices readers merge with the previous one
func (t *Timeline) FilterCompletedAndCompactions() *Timeline {
	return t.Filter(func(in model.Instant) bool {
		return in.IsCompleted() || in.Action == model.ActionCompaction
	})
}

// FindInstantsAfter keeps instants strictly after ts
func (t *Timeline) FindInstantsAfter(ts string) *Timeline {
	return t.Filter(func(in model.Instant) bool { return GreaterThan(in.Timestamp, ts) })
}

// FindInstantsBeforeOrOn keeps instants at or before ts
func (t *Timeline) FindInstantsBeforeOrOn(ts string) *Timeline {
	return t.Filter(func(in model.Instant) bool { return GreaterThanOrEquals(ts, in.Timestamp) })
}

// InstantsInRange yields instants bounded above by bound: bound > ts, or bound >= ts when inclusive
func (t *Timeline) InstantsInRange(bound string, inclusive bool) iter.Seq[model.Instant] {
	pred := GreaterThan
	if inclusive {
		pred = GreaterThanOrEquals
	}
	return func(yield func(model.Instant) bool) {
		for _, in := range t.instants {
			if !pred(bound, in.Timestamp) {
				continue
			}
			if !yield(in) {
				return
			}
		}
	}
}

// FirstInstant returns the earliest instant
func (t *Timeline) FirstInstant() (model.Instant, bool) {
	if len(t.instants) == 0 {
		return model.Instant{}, false
	}
	return t.instants[0], true
}

// LastInstant returns the latest instant
func (t *Timeline) LastInstant() (model.Instant, bool) {
	if len(t.instants) == 0 {
		return model.Instant{}, false
	}
	return t.instants[len(t.instants)-1], true
}

// GetInstant returns the instant at ts in whatever state it holds
func (t *Timeline) GetInstant(ts string) (model.Instant, bool) {
	i, found := slices.BinarySearchFunc(t.instants, ts, func(in model.Instant, target string) int {
		switch {
		case in.Timestamp < target:
			return -1
		case in.Timestamp > target:
			return 1
		}
		return 0
	})
	if !found {
		return model.Instant{}, false
	}
	return t.instants[i], true
}

// ContainsInstant reports whether ts is present in any state
func (t *Timeline) ContainsInstant(ts string) bool {
	_, ok := t.GetInstant(ts)
	return ok
}

// Timestamps returns the timestamps in ascending order
func (t *Timeline) Timestamps() []string {
	out := make([]string, len(t.instants))
	for i, in := range t.instants {
		out[i] = in.Timestamp
	}
	return out
}

// GreaterThan reports a > b for fixed-width instant timestamps
func GreaterThan(a, b string) bool { return a > b }

// GreaterThanOrEquals reports a >= b for fixed-width instant timestamps
func GreaterThanOrEquals(a, b string) bool { return a >= b }
