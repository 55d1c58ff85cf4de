package live

import (
	"context"
	"sort"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/live"
	"golang.org/x/sync/errgroup"
)

// DefaultPartitions is the number of concurrent partitions used to build a view.
const DefaultPartitions = 4

// minPartitionSize keeps small snapshots on a single goroutine.
const minPartitionSize = 64

// Summarize folds annotated sessions into counters in one pass. Sessions
// flagged as inconsistent are counted separately and nowhere else.
func Summarize(sessions []attendance.AnnotatedSession, eval time.Time) live.LiveSummary {
	sum := live.LiveSummary{EvaluationInstant: eval}
	for _, s := range sessions {
		if s.Annotation.DataInconsistent {
			sum.Inconsistent++
			continue
		}
		sum.TotalActive++

		switch s.Status {
		case attendance.StatusActive:
			sum.Working++
		case attendance.StatusOnBreak:
			sum.OnBreak++
		case attendance.StatusIncomplete:
			sum.Incomplete++
		}
		if s.Annotation.IsLate {
			sum.Late++
		}
		if s.Annotation.IsInOvertime {
			sum.Overtime++
		}
	}
	return sum
}

// SummarizeParallel splits sessions into partitions, summarizes them
// concurrently and merges the results.
func SummarizeParallel(ctx context.Context, sessions []attendance.AnnotatedSession, eval time.Time, partitions int) (live.LiveSummary, error) {
	bounds := partitionBounds(len(sessions), partitions)
	partial := make([]live.LiveSummary, len(bounds))

	g, gCtx := errgroup.WithContext(ctx)
	for i, b := range bounds {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			partial[i] = Summarize(sessions[b[0]:b[1]], eval)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return live.LiveSummary{}, err
	}

	return mergeAll(partial, eval), nil
}

// BuildView annotates every session of the snapshot at the snapshot's
// evaluation instant and summarizes the result. Sessions are ordered by
// employee name.
func BuildView(ctx context.Context, annotator attendance.Annotator, filter attendance.LiveFilter, snapshot attendance.LiveSnapshot, partitions int) (*live.LiveView, error) {
	eval := snapshot.EvaluationInstant
	annotated := make([]attendance.AnnotatedSession, len(snapshot.Sessions))
	bounds := partitionBounds(len(snapshot.Sessions), partitions)
	partial := make([]live.LiveSummary, len(bounds))

	g, gCtx := errgroup.WithContext(ctx)
	for i, b := range bounds {
		g.Go(func() error {
			for j := b[0]; j < b[1]; j++ {
				if err := gCtx.Err(); err != nil {
					return err
				}
				annotated[j] = annotator.Annotate(snapshot.Sessions[j], eval)
			}
			partial[i] = Summarize(annotated[b[0]:b[1]], eval)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(annotated, func(i, j int) bool {
		a, b := annotated[i].Session, annotated[j].Session
		if a.EmployeeName != b.EmployeeName {
			return a.EmployeeName < b.EmployeeName
		}
		return a.ID < b.ID
	})

	return &live.LiveView{
		Filter:   filter,
		Summary:  mergeAll(partial, eval),
		Sessions: annotated,
	}, nil
}

func mergeAll(partial []live.LiveSummary, eval time.Time) live.LiveSummary {
	sum := live.LiveSummary{EvaluationInstant: eval}
	for _, p := range partial {
		sum = sum.Merge(p)
	}
	return sum
}

// partitionBounds returns [start, end) index pairs covering n items.
func partitionBounds(n, partitions int) [][2]int {
	if n == 0 {
		return nil
	}
	if partitions < 1 {
		partitions = 1
	}
	if limit := (n + minPartitionSize - 1) / minPartitionSize; partitions > limit {
		partitions = limit
	}

	size := (n + partitions - 1) / partitions
	bounds := make([][2]int, 0, partitions)
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}
