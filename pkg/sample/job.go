package sample

import (
	"context"
	"fmt"

	"github.com/platinummonkey/beacon/pkg/jobs"
)

// JobName is the queue name of the sample data job
const JobName = "generate_sample_data"

// MaxEventsPerJob caps a single generation request
const MaxEventsPerJob = 10000

// JobArgs builds the arguments for an n-event generation job
func JobArgs(n int) jobs.Args {
	return jobs.Args{"num_events": n}
}

// JobHandler runs Generate for the num_events argument. The job fails when its
// budget expires before all events are written.
func (g *Generator) JobHandler() jobs.Handler {
	return func(ctx context.Context, args jobs.Args) (interface{}, error) {
		n, err := args.Int("num_events")
		if err != nil {
			return nil, err
		}
		if n <= 0 || n > MaxEventsPerJob {
			return nil, fmt.Errorf("num_events must be between 1 and %d, got %d", MaxEventsPerJob, n)
		}
		return g.Generate(ctx, n)
	}
}
