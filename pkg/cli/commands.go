package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/index"
	"github.com/platinummonkey/beacon/pkg/platform"
	"github.com/platinummonkey/beacon/pkg/sample"
)

const defaultCommandTimeout = 30 * time.Second

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Duration("timeout", defaultCommandTimeout, "Overall command timeout")
	return fs
}

// withPlatform parses fs, opens the store and runs fn with a context bounded
// by the -timeout flag.
func (app *App) withPlatform(fs *flag.FlagSet, args []string, fn func(ctx context.Context, p *platform.Platform, rest []string) error) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	timeout, _ := time.ParseDuration(fs.Lookup("timeout").Value.String())

	p, err := app.Open()
	if err != nil {
		return fmt.Errorf("failed to open analytics store: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			app.Log.WithError(err).Warn("Failed to close Redis connection")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, p, fs.Args())
}

func (app *App) printJSON(v interface{}) error {
	enc := json.NewEncoder(app.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newHealthCommand(app *App) *Command {
	cmd := &Command{
		Name:        "health",
		Description: "Check that Redis is reachable",
		Flags:       newFlagSet("health"),
	}
	cmd.Run = func(args []string) error {
		return app.withPlatform(cmd.Flags, args, func(ctx context.Context, p *platform.Platform, _ []string) error {
			if err := p.Store.Ping(ctx); err != nil {
				return fmt.Errorf("redis unhealthy: %w", err)
			}
			fmt.Fprintln(app.Out, "redis: healthy")
			return nil
		})
	}
	return cmd
}

func newDashboardCommand(app *App) *Command {
	cmd := &Command{
		Name:        "dashboard",
		Description: "Print the platform dashboard",
		Flags:       newFlagSet("dashboard"),
	}
	cmd.Run = func(args []string) error {
		return app.withPlatform(cmd.Flags, args, func(ctx context.Context, p *platform.Platform, _ []string) error {
			dashboard, err := p.Analytics.Dashboard(ctx)
			if err != nil {
				return fmt.Errorf("failed to build dashboard: %w", err)
			}
			return app.printJSON(dashboard)
		})
	}
	return cmd
}

func newUserCommand(app *App) *Command {
	cmd := &Command{
		Name:        "user",
		Usage:       "[-limit N] <user_id>",
		Description: "Print analytics for one user",
		Flags:       newFlagSet("user"),
	}
	cmd.Flags.Int("limit", index.DefaultLimit, "Most recent index entries to read")
	cmd.Run = func(args []string) error {
		return app.withPlatform(cmd.Flags, args, func(ctx context.Context, p *platform.Platform, rest []string) error {
			if len(rest) != 1 || rest[0] == "" {
				return errors.New("user requires exactly one user_id")
			}
			limit, err := strconv.Atoi(cmd.Flags.Lookup("limit").Value.String())
			if err != nil || limit <= 0 {
				return errors.New("limit must be a positive integer")
			}
			result, err := p.Analytics.UserAnalytics(ctx, rest[0], limit)
			if err != nil {
				return fmt.Errorf("failed to read user analytics: %w", err)
			}
			return app.printJSON(result)
		})
	}
	return cmd
}

func newEventCommand(app *App) *Command {
	cmd := &Command{
		Name:        "event",
		Usage:       "<event_id>",
		Description: "Print one stored event",
		Flags:       newFlagSet("event"),
	}
	cmd.Run = func(args []string) error {
		return app.withPlatform(cmd.Flags, args, func(ctx context.Context, p *platform.Platform, rest []string) error {
			if len(rest) != 1 || rest[0] == "" {
				return errors.New("event requires exactly one event_id")
			}
			event, ok, err := p.Events.GetEvent(ctx, rest[0])
			if err != nil {
				return fmt.Errorf("failed to read event: %w", err)
			}
			if !ok {
				return fmt.Errorf("event not found: %s", rest[0])
			}
			return app.printJSON(event)
		})
	}
	return cmd
}

func newGenerateCommand(app *App) *Command {
	cmd := &Command{
		Name:        "generate",
		Usage:       "<num_events>",
		Description: "Generate sample events synchronously",
		Flags:       newFlagSet("generate"),
	}
	cmd.Run = func(args []string) error {
		return app.withPlatform(cmd.Flags, args, func(ctx context.Context, p *platform.Platform, rest []string) error {
			if len(rest) != 1 {
				return errors.New("generate requires the number of events")
			}
			n, err := strconv.Atoi(rest[0])
			if err != nil {
				return fmt.Errorf("number of events must be an integer: %q", rest[0])
			}
			if n <= 0 || n > sample.MaxEventsPerJob {
				return fmt.Errorf("number of events must be between 1 and %d", sample.MaxEventsPerJob)
			}

			app.Log.Infof("Generating %d sample events", n)
			result, err := p.Generator.Generate(ctx, n)
			if result != nil {
				if perr := app.printJSON(result); perr != nil {
					return perr
				}
			}
			if err != nil {
				return fmt.Errorf("sample generation stopped: %w", err)
			}
			return nil
		})
	}
	return cmd
}

func newAggregateCommand(app *App) *Command {
	cmd := &Command{
		Name:        "aggregate",
		Usage:       "[-snapshot]",
		Description: "Record the current hour's aggregation",
		Flags:       newFlagSet("aggregate"),
	}
	cmd.Flags.Bool("snapshot", false, "Print every stored hourly aggregation instead")
	cmd.Run = func(args []string) error {
		return app.withPlatform(cmd.Flags, args, func(ctx context.Context, p *platform.Platform, _ []string) error {
			if cmd.Flags.Lookup("snapshot").Value.String() == "true" {
				hours, err := p.Aggregator.HourlySnapshot(ctx)
				if err != nil {
					return fmt.Errorf("failed to read hourly aggregations: %w", err)
				}
				return app.printJSON(hours)
			}

			result, err := p.Aggregator.ProcessHourly(ctx)
			if err != nil {
				return fmt.Errorf("hourly aggregation failed: %w", err)
			}
			app.Log.WithField("hour", result.Hour).Infof("Aggregated %d events", result.Count)
			return app.printJSON(result)
		})
	}
	return cmd
}

func newCleanupCommand(app *App) *Command {
	cmd := &Command{
		Name:        "cleanup",
		Usage:       "[-compact]",
		Description: "Run the index cleanup pass",
		Flags:       newFlagSet("cleanup"),
	}
	cmd.Flags.Bool("compact", false, "Remove index entries whose event has expired")
	cmd.Run = func(args []string) error {
		return app.withPlatform(cmd.Flags, args, func(ctx context.Context, p *platform.Platform, _ []string) error {
			stats, err := p.Aggregator.Cleanup(ctx, analytics.CleanupOptions{
				Compact: cmd.Flags.Lookup("compact").Value.String() == "true",
			})
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			return app.printJSON(stats)
		})
	}
	return cmd
}

func newFlushCommand(app *App) *Command {
	cmd := &Command{
		Name:        "flush",
		Usage:       "-yes",
		Description: "Delete every key in the analytics database",
		Flags:       newFlagSet("flush"),
	}
	cmd.Flags.Bool("yes", false, "Confirm the flush")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.Lookup("yes").Value.String() != "true" {
			return errors.New("flush deletes all analytics data; rerun with -yes to confirm")
		}
		return app.withPlatform(cmd.Flags, args, func(ctx context.Context, p *platform.Platform, _ []string) error {
			if err := p.Store.FlushDB(ctx); err != nil {
				return fmt.Errorf("flush failed: %w", err)
			}
			app.Log.Warn("Analytics database flushed")
			fmt.Fprintln(app.Out, "flushed")
			return nil
		})
	}
	return cmd
}
