package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"handout/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Inspect and manage jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))
	jobsCmd.AddCommand(newJobsWatchCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(jobs jobsAPI) error {
				list, err := jobs.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.JobListResponse{Jobs: list})
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Title", "Status", "Progress", "Created"},
					buildJobListRows(list),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				if !jobs.Online() {
					fmt.Fprintln(out, "(daemon not running; read from the job database)")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by job status (repeatable)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(jobs jobsAPI) error {
				job, err := resolveJob(cmd, jobs, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.JobResponse{Job: *job})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderJobDetails(*job))
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(jobs jobsAPI) error {
				job, err := resolveJob(cmd, jobs, args[0])
				if err != nil {
					return err
				}
				resp, err := jobs.Cancel(cmd.Context(), job.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s\n", resp.ID, resp.Status)
				return nil
			})
		},
	}
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed, failed and cancelled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(jobs jobsAPI) error {
				removed, err := jobs.ClearFinished(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d finished job(s)\n", removed)
				return nil
			})
		},
	}
}

func newJobsWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow a job's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(jobs jobsAPI) error {
				if !jobs.Online() {
					return errors.New("watching requires a running daemon; start it with `handout daemon`")
				}
				job, err := resolveJob(cmd, jobs, args[0])
				if err != nil {
					return err
				}
				client, err := ctx.client()
				if err != nil {
					return err
				}
				return watchJob(cmd, client, *job)
			})
		},
	}
}

// resolveJob accepts a full id or a unique prefix as printed by jobs list.
func resolveJob(cmd *cobra.Command, jobs jobsAPI, ref string) (*api.Job, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("job id is required")
	}
	job, err := jobs.Get(cmd.Context(), ref)
	if err != nil {
		return nil, err
	}
	if job != nil {
		return job, nil
	}
	list, err := jobs.List(cmd.Context(), nil)
	if err != nil {
		return nil, err
	}
	var match *api.Job
	for i := range list {
		if !strings.HasPrefix(list[i].ID, ref) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("job id prefix %q is ambiguous", ref)
		}
		match = &list[i]
	}
	if match == nil {
		return nil, fmt.Errorf("job %s not found", ref)
	}
	return match, nil
}
