package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kmlc/internal/jobs"
	"kmlc/internal/logging"
	"kmlc/internal/metrics"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var topicID string
	var start bool

	cmd := &cobra.Command{
		Use:   "upload <file.xlsx>",
		Short: "Upload a workbook for classification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, requireUser(), func(deps *sessionDeps) error {
				result, err := deps.tracker.Upload(cmd.Context(), args[0], topicID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Uploaded %s (%d rows) to topic %s as job %s\n", result.Filename, result.Rows, result.Topic, result.JobID)
				if !start {
					fmt.Fprintf(out, "Start classification with `kmlc jobs start %s`\n", shortID(result.JobID))
					return nil
				}
				job, err := deps.tracker.Lookup(cmd.Context(), result.JobID)
				if err != nil {
					return err
				}
				if err := deps.tracker.StartProcessing(cmd.Context(), job); err != nil {
					return err
				}
				fmt.Fprintf(out, "Job %s queued\n", shortID(job.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&topicID, "topic", "t", "", "Topic ID to classify against (see `kmlc topics list`)")
	cmd.Flags().BoolVar(&start, "start", false, "Queue the job for processing right after upload")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and act on classification jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsWatchCommand(ctx))
	jobsCmd.AddCommand(newJobsStartCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsDownloadCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))

	return jobsCmd
}

func parseFilterFlag(value string) (jobs.Filter, error) {
	filter, ok := jobs.ParseFilter(value)
	if !ok {
		return jobs.FilterAll, fmt.Errorf("unknown status filter %q (use %s)", value, filterChoices())
	}
	return filter, nil
}

// filterChoices lists every value ParseFilter accepts.
func filterChoices() string {
	choices := []string{jobs.FilterAll.String()}
	for _, s := range jobs.AllStatuses() {
		choices = append(choices, string(s))
	}
	return strings.Join(choices, ", ")
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilterFlag(status)
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, requireUser(), func(deps *sessionDeps) error {
				list, err := deps.tracker.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, toJobJSON(list))
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprint(out, renderJobTable(list, shouldColorize(out)))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "all", "Filter by status ("+filterChoices()+")")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with its processing counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, requireUser(), func(deps *sessionDeps) error {
				job, err := deps.tracker.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader(job.Filename, colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Job", statusInfo, job.ID, false))
				fmt.Fprintln(out, renderStatusLine("Topic", statusInfo, job.TopicName, false))
				fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(job.Status), job.Status.Label(), colorize))
				if progress := formatProgress(job); progress != "" {
					fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, progress, false))
				}
				if job.Error != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, job.Error, colorize))
				}
				for _, line := range renderJobStats(job) {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
}

func newJobsStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <job-id>",
		Short: "Queue an uploaded job for classification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, requireUser(), func(deps *sessionDeps) error {
				job, err := deps.tracker.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := deps.tracker.StartProcessing(cmd.Context(), job); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued\n", shortID(job.ID))
				return nil
			})
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "cancel <job-id>",
		Aliases: []string{"delete", "rm"},
		Short:   "Cancel or delete a job",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, requireUser(), func(deps *sessionDeps) error {
				job, err := deps.tracker.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				message, err := deps.tracker.CancelOrDelete(cmd.Context(), job)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", shortID(job.ID), message)
				return nil
			})
		},
	}
}

func newJobsDownloadCommand(ctx *commandContext) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download the classified workbook of a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, requireUser(), func(deps *sessionDeps) error {
				target := strings.TrimSpace(dir)
				if target == "" {
					target = deps.cfg.Paths.DownloadDir
				}
				job, err := deps.tracker.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				path, err := deps.tracker.Download(cmd.Context(), job, target)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Destination directory (defaults to paths.download_dir)")
	return cmd
}

func newJobsWatchCommand(ctx *commandContext) *cobra.Command {
	var status string
	var untilIdle bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the job list as the server updates it",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilterFlag(status)
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, requireUser(), func(deps *sessionDeps) error {
				runCtx, cancel := context.WithCancel(cmd.Context())
				defer cancel()

				if addr := strings.TrimSpace(deps.cfg.Metrics.Listen); addr != "" {
					logger := logging.NewComponentLogger(deps.logger, "metrics")
					go func() {
						if err := metrics.Serve(runCtx, addr, logger); err != nil {
							logger.Warn("metrics endpoint failed", logging.Error(err))
						}
					}()
				}

				view, err := deps.tracker.Watch(runCtx, filter)
				if err != nil {
					return err
				}
				defer view.Stop()
				return followView(runCtx, cmd.OutOrStdout(), view, untilIdle)
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "all", "Filter by status ("+filterChoices()+")")
	cmd.Flags().BoolVar(&untilIdle, "until-idle", false, "Exit once no job is pending or processing")
	return cmd
}

// followView redraws the job table on every applied poll until ctx ends or
// the view stops on its own.
func followView(ctx context.Context, out io.Writer, view *jobs.View, untilIdle bool) error {
	colorize := shouldColorize(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-view.Done():
			return view.Err()
		case snap := <-view.Updates():
			renderSnapshot(out, snap, colorize)
			if untilIdle && snap.Err == nil && idle(snap.Jobs) {
				return nil
			}
		}
	}
}

func renderSnapshot(out io.Writer, snap jobs.Snapshot, colorize bool) {
	if colorize {
		fmt.Fprint(out, ansiClear)
	}
	fetched := "-"
	if !snap.FetchedAt.IsZero() {
		fetched = snap.FetchedAt.Local().Format(time.TimeOnly)
	}
	title := fmt.Sprintf("Jobs (%s) at %s", snap.Filter, fetched)
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
	if snap.Err != nil {
		fmt.Fprintln(out, renderStatusLine("Last poll", statusWarn, snap.Err.Error(), colorize))
	}
	if len(snap.Jobs) == 0 {
		fmt.Fprintln(out, "No jobs")
		return
	}
	fmt.Fprint(out, renderJobTable(snap.Jobs, colorize))
}

func idle(list []jobs.Job) bool {
	for _, job := range list {
		if job.Status == jobs.StatusPending || job.Status == jobs.StatusProcessing {
			return false
		}
	}
	return true
}
