package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devrev/tablecore/internal/inspect"
	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/service"
	"github.com/devrev/tablecore/internal/storage/diskmanager"
	"github.com/devrev/tablecore/internal/table"
)

type tableAction func(ctx context.Context, c *cli.Context, t *table.Table) error

// withTable opens the table for the duration of one command
func (e *env) withTable(fn tableAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		tbl, err := table.Open(c.Context, e.cfg, table.Options{Logger: e.logger})
		if err != nil {
			return err
		}
		defer tbl.Close()
		return fn(c.Context, c, tbl)
	}
}

func (e *env) newWriteClient(t *table.Table) (*service.WriteClient, error) {
	disk, err := diskmanager.NewDiskManager(diskmanager.Config{DataDir: t.BasePath()}, e.logger)
	if err != nil {
		return nil, err
	}
	return service.NewWriteClient(t, disk), nil
}

func printFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "sort-by", Usage: "column to sort rows by"},
		&cli.BoolFlag{Name: "desc", Usage: "sort in descending order"},
		&cli.IntFlag{Name: "limit", Usage: "maximum number of rows, 0 for all"},
		&cli.BoolFlag{Name: "header-only", Usage: "print the header only"},
	}
}

func printOptions(c *cli.Context) inspect.PrintOptions {
	return inspect.PrintOptions{
		SortBy:     c.String("sort-by"),
		Desc:       c.Bool("desc"),
		Limit:      c.Int("limit"),
		HeaderOnly: c.Bool("header-only"),
	}
}

func render(c *cli.Context, res *inspect.Result, err error) error {
	if err != nil {
		return err
	}
	return res.Render(c.App.Writer)
}

func initCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "create an empty table at the base path",
		Action: func(c *cli.Context) error {
			tbl, err := table.Init(c.Context, e.cfg, table.Options{Logger: e.logger})
			if err != nil {
				return err
			}
			defer tbl.Close()
			fmt.Fprintf(c.App.Writer, "initialized table %s at %s\n", tbl.Name(), tbl.BasePath())
			return nil
		},
	}
}

// inputRecord is one JSON line accepted by the write command
type inputRecord struct {
	Key       string `json:"key"`
	Partition string `json:"partition"`
	Value     string `json:"value"`
}

func readRecords(r io.Reader) ([]model.Record, error) {
	var records []model.Record
	dec := json.NewDecoder(r)
	for {
		var in inputRecord
		if err := dec.Decode(&in); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return nil, fmt.Errorf("failed to decode record %d: %w", len(records)+1, err)
		}
		records = append(records, model.Record{Key: in.Key, PartitionPath: in.Partition, Value: []byte(in.Value)})
	}
}

func writeCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "write",
		Usage: "commit JSON-lines records as one delta commit",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Usage: "input file, - for stdin", Value: "-"},
			&cli.BoolFlag{Name: "delete", Usage: "delete the listed keys"},
		},
		Action: e.withTable(func(ctx context.Context, c *cli.Context, t *table.Table) error {
			in := c.App.Reader
			if name := c.String("file"); name != "-" {
				f, err := os.Open(name)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			records, err := readRecords(in)
			if err != nil {
				return err
			}
			client, err := e.newWriteClient(t)
			if err != nil {
				return err
			}

			var res *service.WriteResult
			if c.Bool("delete") {
				res, err = client.Delete(ctx, records)
			} else {
				res, err = client.Write(ctx, records)
			}
			if err != nil {
				return err
			}

			w := c.App.Writer
			for _, ts := range res.RecoveredCompactions {
				fmt.Fprintf(w, "completed pending compaction %s\n", ts)
			}
			var deleted int64
			for _, ws := range res.Metadata.WriteStats {
				deleted += ws.NumDeletes
			}
			fmt.Fprintf(w, "committed %s: %d written, %d deleted, %d log files\n",
				res.InstantTime, res.Metadata.TotalRecordsWritten(), deleted, len(res.Metadata.WriteStats))
			if res.ScheduledCompaction != "" {
				state := "requested"
				if res.CompactedInline {
					state = "completed"
				}
				fmt.Fprintf(w, "compaction %s %s\n", res.ScheduledCompaction, state)
			}
			return nil
		}),
	}
}

func timelineCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "timeline",
		Usage: "inspect the timeline",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "list completed instants and pending compactions",
				Flags: append(printFlags(), &cli.BoolFlag{Name: "all", Usage: "include every pending instant"}),
				Action: e.withTable(func(ctx context.Context, c *cli.Context, t *table.Table) error {
					res, err := inspect.ShowTimeline(ctx, t, inspect.TimelineOptions{
						All:          c.Bool("all"),
						PrintOptions: printOptions(c),
					})
					return render(c, res, err)
				}),
			},
		},
	}
}

func viewFlags() []cli.Flag {
	return append(printFlags(),
		&cli.StringFlag{Name: "path-glob", Usage: "partition path glob, empty for all partitions"},
		&cli.BoolFlag{Name: "base-only", Usage: "only list base files"},
		&cli.StringFlag{Name: "max-instant", Usage: "ignore instants after this one"},
		&cli.BoolFlag{Name: "include-max", Usage: "include the max instant itself"},
		&cli.BoolFlag{Name: "include-inflight", Usage: "include pending write instants"},
		&cli.BoolFlag{Name: "exclude-compaction", Usage: "ignore compaction instants"},
	)
}

func viewOptions(c *cli.Context) inspect.ViewOptions {
	return inspect.ViewOptions{
		PathGlob:          c.String("path-glob"),
		BaseFileOnly:      c.Bool("base-only"),
		MaxInstant:        c.String("max-instant"),
		IncludeMax:        c.Bool("include-max"),
		IncludeInflight:   c.Bool("include-inflight"),
		ExcludeCompaction: c.Bool("exclude-compaction"),
		Merge:             c.Bool("merge"),
		PrintOptions:      printOptions(c),
	}
}

func fsviewCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "fsview",
		Usage: "inspect the file-system view",
		Subcommands: []*cli.Command{
			{
				Name:  "all",
				Usage: "list every file slice",
				Flags: viewFlags(),
				Action: e.withTable(func(ctx context.Context, c *cli.Context, t *table.Table) error {
					res, err := inspect.ShowAll(ctx, t, viewOptions(c))
					return render(c, res, err)
				}),
			},
			{
				Name:  "latest",
				Usage: "list the latest file slice of every file group",
				Flags: append(viewFlags(), &cli.BoolFlag{
					Name:  "merge",
					Usage: "merge a pending compaction's slice into the previous one",
					Value: true,
				}),
				Action: e.withTable(func(ctx context.Context, c *cli.Context, t *table.Table) error {
					res, err := inspect.ShowLatest(ctx, t, viewOptions(c))
					return render(c, res, err)
				}),
			},
		},
	}
}

func compactionCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "compaction",
		Usage: "schedule, run and inspect compactions",
		Subcommands: []*cli.Command{
			{
				Name:  "schedule",
				Usage: "request a compaction when the trigger policy fires",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "force", Usage: "bypass the trigger policy"}},
				Action: e.withTable(func(ctx context.Context, c *cli.Context, t *table.Table) error {
					client, err := e.newWriteClient(t)
					if err != nil {
						return err
					}
					plan, err := client.ScheduleCompaction(ctx, c.Bool("force"))
					if err != nil {
						return err
					}
					if plan == nil {
						fmt.Fprintln(c.App.Writer, "no compaction scheduled")
						return nil
					}
					fmt.Fprintf(c.App.Writer, "scheduled compaction %s with %d operations\n",
						plan.InstantTime, len(plan.Operations))
					return nil
				}),
			},
			{
				Name:      "run",
				Usage:     "execute one pending compaction, or all of them in instant order",
				ArgsUsage: "[instant]",
				Action: e.withTable(func(ctx context.Context, c *cli.Context, t *table.Table) error {
					client, err := e.newWriteClient(t)
					if err != nil {
						return err
					}
					var done []string
					if ts := c.Args().First(); ts != "" {
						if _, err := client.Compact(ctx, ts); err != nil {
							return err
						}
						done = []string{ts}
					} else if done, err = client.RunPendingCompactions(ctx); err != nil {
						return err
					}
					if len(done) == 0 {
						fmt.Fprintln(c.App.Writer, "no pending compactions")
					}
					for _, ts := range done {
						fmt.Fprintf(c.App.Writer, "completed compaction %s\n", ts)
					}
					return nil
				}),
			},
			{
				Name:  "pending",
				Usage: "list pending compactions",
				Flags: printFlags(),
				Action: e.withTable(func(ctx context.Context, c *cli.Context, t *table.Table) error {
					res, err := inspect.ShowPendingCompactions(ctx, t, printOptions(c))
					return render(c, res, err)
				}),
			},
			{
				Name:      "cancel",
				Usage:     "remove a requested compaction that has not started",
				ArgsUsage: "<instant>",
				Action: e.withTable(func(ctx context.Context, c *cli.Context, t *table.Table) error {
					ts := c.Args().First()
					if ts == "" {
						return errors.New("an instant is required")
					}
					client, err := e.newWriteClient(t)
					if err != nil {
						return err
					}
					if err := client.CancelCompaction(ctx, ts); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "cancelled compaction %s\n", ts)
					return nil
				}),
			},
		},
	}
}
