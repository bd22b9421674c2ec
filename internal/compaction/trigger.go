package compaction

import (
	"fmt"
	"time"

	"github.com/devrev/tablecore/internal/config"
	"github.com/devrev/tablecore/internal/timeline"
)

// Counters are the inputs of a trigger decision, derived purely from timeline contents
type Counters struct {
	// DeltaCommitsSinceLastCompaction counts completed delta commits after the last completed compaction
	DeltaCommitsSinceLastCompaction int
	// DeltaCommitsSinceLastRequest counts completed delta commits after the last compaction in any state
	DeltaCommitsSinceLastRequest int
	// Elapsed is the time between the reference instant and the candidate compaction instant
	Elapsed time.Duration
	// PendingCompactions is the number of requested or inflight compactions
	PendingCompactions int
}

// ComputeCounters derives Counters for a compaction that would be requested at now.
// The elapsed time is measured from the last completed compaction, or from the first
// delta commit when the table has never been compacted.
func ComputeCounters(tl *timeline.Timeline, now string) (Counters, error) {
	var c Counters
	completedDeltas := tl.FilterDeltaCommits().FilterCompleted()
	pending := tl.FilterPendingCompactions()
	c.PendingCompactions = pending.Count()

	var reference string
	lastCompaction, hasCompaction := tl.FilterCommits().FilterCompleted().LastInstant()
	if hasCompaction {
		c.DeltaCommitsSinceLastCompaction = completedDeltas.FindInstantsAfter(lastCompaction.Timestamp).Count()
		reference = lastCompaction.Timestamp
	} else {
		c.DeltaCommitsSinceLastCompaction = completedDeltas.Count()
		if first, ok := tl.FilterDeltaCommits().FirstInstant(); ok {
			reference = first.Timestamp
		}
	}

	lastRequest := ""
	if hasCompaction {
		lastRequest = lastCompaction.Timestamp
	}
	if last, ok := pending.LastInstant(); ok && last.Timestamp > lastRequest {
		lastRequest = last.Timestamp
	}
	if lastRequest != "" {
		c.DeltaCommitsSinceLastRequest = completedDeltas.FindInstantsAfter(lastRequest).Count()
	} else {
		c.DeltaCommitsSinceLastRequest = c.DeltaCommitsSinceLastCompaction
	}

	if reference != "" {
		elapsed, err := timeline.Elapsed(reference, now)
		if err != nil {
			return Counters{}, fmt.Errorf("failed to compute elapsed time: %w", err)
		}
		c.Elapsed = elapsed
	}
	return c, nil
}

// TriggerPolicy decides whether a new compaction should be requested
type TriggerPolicy struct {
	Strategy        string
	MaxDeltaCommits int
	MaxDeltaSeconds int
}

// NewTriggerPolicy builds the policy configured for a table
func NewTriggerPolicy(cfg config.CompactionConfig) TriggerPolicy {
	return TriggerPolicy{
		Strategy:        cfg.TriggerStrategy,
		MaxDeltaCommits: cfg.MaxDeltaCommits,
		MaxDeltaSeconds: cfg.MaxDeltaSeconds,
	}
}

func (p TriggerPolicy) maxDelta() time.Duration {
	return time.Duration(p.MaxDeltaSeconds) * time.Second
}

// ShouldTrigger is a pure function of the counters and the policy
func (p TriggerPolicy) ShouldTrigger(c Counters) bool {
	numCommits := c.DeltaCommitsSinceLastCompaction >= p.MaxDeltaCommits
	timeElapsed := c.Elapsed >= p.maxDelta()
	switch p.Strategy {
	case config.TriggerNumCommits:
		return numCommits
	case config.TriggerNumCommitsAfterLastRequest:
		return c.DeltaCommitsSinceLastRequest >= p.MaxDeltaCommits
	case config.TriggerTimeElapsed:
		return timeElapsed
	case config.TriggerNumOrTime:
		return numCommits || timeElapsed
	case config.TriggerNumAndTime:
		return numCommits && timeElapsed
	default:
		return false
	}
}

// CheckPrecondition rejects a request that would overlap a pending one. Only the
// NUM_COMMITS_AFTER_LAST_REQUEST strategy counts from the last request, so only it
// forbids a new request before C delta commits completed after the pending one.
func (p TriggerPolicy) CheckPrecondition(c Counters) error {
	if p.Strategy != config.TriggerNumCommitsAfterLastRequest || c.PendingCompactions == 0 {
		return nil
	}
	if c.DeltaCommitsSinceLastRequest < p.MaxDeltaCommits {
		return errPendingRequest(c)
	}
	return nil
}
