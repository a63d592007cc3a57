package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cyp0633/caldora-sync/internal/reconcile"
	"github.com/cyp0633/caldora-sync/internal/source"
	"github.com/spf13/cobra"
)

// syncFlags are shared by the commands that write items.
type syncFlags struct {
	dryRun   bool
	schedule string
}

func (f *syncFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Report what would change without writing")
	cmd.Flags().StringVar(&f.schedule, "schedule", "", "Cron spec to repeat the sync on (overrides the config file)")
}

func newImportCmd(a *app) *cobra.Command {
	var (
		sf       syncFlags
		invite   bool
		prefix   string
		category string
		status   string
	)
	cmd := &cobra.Command{
		Use:   "import [FILE|URL]",
		Short: "Import the events and tasks of a calendar document",
		Long:  `Import reads an iCalendar document from a file, a URL or standard input and stores each event and task as its own object.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location := ""
			if len(args) == 1 {
				location = args[0]
			}
			opts := source.ImportOptions{Invite: invite, Category: category, Status: status}
			logger := a.logger.With("source", prefix)

			job := func(ctx context.Context) error {
				target, err := a.collection()
				if err != nil {
					return err
				}
				if invite {
					if target, err = a.inbox(ctx, target); err != nil {
						return err
					}
				}
				data, origin, err := source.Load(ctx, a.plain, location, a.stdin)
				if err != nil {
					return err
				}
				opts.SourceURL = origin
				items, err := source.ParseICS(data, opts)
				if err != nil {
					return err
				}
				engine := reconcile.NewEngine(a.client, target,
					reconcile.WithLogger(logger), reconcile.WithDryRun(sf.dryRun))
				return a.printReport(prefix, engine.Run(ctx, items))
			}
			return a.runSync(cmd.Context(), sf.schedule, location == "" || location == "-", job)
		},
	}
	sf.register(cmd)
	cmd.Flags().BoolVar(&invite, "invite", false, "Store as an invitation in the scheduling inbox")
	cmd.Flags().StringVar(&prefix, "prefix", "unknown", "Label used in logs and the summary")
	cmd.Flags().StringVar(&category, "category", "", "Category to add to every item")
	cmd.Flags().StringVar(&status, "status", "", "Status for items without one (tentative or confirmed)")
	return cmd
}

func newIssuesCmd(a *app) *cobra.Command {
	var sf syncFlags
	cmd := &cobra.Command{
		Use:   "issues FILE",
		Short: "Sync tracker issues as tasks",
		Long:  `Issues reads a YAML or JSON list of issues ("-" for standard input) and keeps one task per issue.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := func(ctx context.Context) error {
				target, err := a.collection()
				if err != nil {
					return err
				}
				issues, err := a.readIssues(args[0])
				if err != nil {
					return err
				}
				items, err := source.IssueItems(issues)
				if err != nil {
					return err
				}
				engine := reconcile.NewEngine(a.client, target,
					reconcile.WithLogger(a.logger), reconcile.WithDryRun(sf.dryRun))
				return a.printReport(args[0], engine.Run(ctx, items))
			}
			return a.runSync(cmd.Context(), sf.schedule, args[0] == "-", job)
		},
	}
	sf.register(cmd)
	return cmd
}

func (a *app) readIssues(path string) ([]source.Issue, error) {
	var r io.Reader = a.stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open issues: %w", err)
		}
		defer f.Close()
		r = f
	}
	return source.ParseIssues(r)
}

func (a *app) inbox(ctx context.Context, collection string) (string, error) {
	principal, err := a.client.CurrentUserPrincipal(ctx, collection)
	if err != nil {
		return "", err
	}
	a.logger.Info("current user principal", "url", principal.String())
	inbox, err := a.client.InboxURL(ctx, principal.String())
	if err != nil {
		return "", err
	}
	a.logger.Info("inbox", "url", inbox.String())
	return inbox.String(), nil
}

func (a *app) printReport(label string, report reconcile.Report) error {
	fmt.Fprintf(a.stdout, "Processed %s. Seen %d, updated %d, new %d, unchanged %d, failed %d\n",
		label, report.Seen, report.Updated, report.Created, report.Unchanged, report.Failed)
	if err := report.Err(); err != nil {
		return fmt.Errorf("%d of %d items failed: %w", report.Failed, report.Seen, err)
	}
	return nil
}

// runSync runs job once, or on the schedule from the flag or the config
// file until interrupted.
func (a *app) runSync(ctx context.Context, flagSchedule string, fromStdin bool, job func(context.Context) error) error {
	spec := flagSchedule
	if spec == "" {
		spec = a.cfg.Schedule
	}
	if spec == "" {
		return job(ctx)
	}
	if fromStdin {
		return fmt.Errorf("a scheduled sync cannot read standard input")
	}
	return runScheduled(ctx, spec, a.logger, job)
}
