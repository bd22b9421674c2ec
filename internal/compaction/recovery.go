package compaction

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RunPending completes every pending compaction in ascending instant order and returns
// the instants it completed. It stops at the first failure; the failed instant stays
// pending for the next pass.
func (e *Executor) RunPending(ctx context.Context) ([]string, error) {
	tl, err := e.table.LoadTimeline(ctx)
	if err != nil {
		return nil, err
	}
	pending := tl.FilterPendingCompactions()
	if pending.Empty() {
		return nil, nil
	}
	e.logger.Info("Completing pending compactions", zap.Strings("instant_times", pending.Timestamps()))

	var done []string
	for in := range pending.Instants() {
		if _, err := e.Execute(ctx, in.Timestamp); err != nil {
			return done, fmt.Errorf("failed to complete pending compaction %s: %w", in.Timestamp, err)
		}
		done = append(done, in.Timestamp)
	}
	return done, nil
}
