package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"handout/internal/api"
	"handout/internal/daemonrun"
	"handout/internal/logging"
	"handout/internal/queue"
	"handout/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags jobFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run [path-or-url]",
		Short: "Process a lecture in the foreground without a daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := ""
			if len(args) == 1 {
				input = strings.TrimSpace(args[0])
			}
			if input == "" && flags.deliveryID == "" {
				return errors.New("a path, url or --delivery-id is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			req, err := flags.request(cmd, input)
			if err != nil {
				return err
			}
			run, err := req.Run(cfg.Artifacts)
			if err != nil {
				return err
			}

			// The daemon lock keeps a daemon from claiming this job too.
			lock := flock.New(cfg.LockPath())
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !locked {
				return errors.New("the handout daemon is running; use `handout submit` instead")
			}
			defer lock.Unlock()

			logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("handout-run-%s.log", time.Now().UTC().Format("20060102T150405")))
			logger, err := logging.New(logging.Options{
				Level:   cfg.Logging.Level,
				Format:  "json",
				Outputs: []string{logPath},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			printer := newProgressPrinter(cmd.ErrOrStderr())
			rt, err := daemonrun.Build(cfg, logger, daemonrun.BuildOptions{Publisher: printer})
			if err != nil {
				return err
			}
			defer rt.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			job, err := rt.Store.Submit(runCtx, run)
			if err != nil {
				return err
			}
			if _, err := rt.Store.Claim(runCtx, job.ID); err != nil {
				return err
			}
			if run, err = job.Run(); err != nil {
				return err
			}
			runErr := rt.Orchestrator.Run(runCtx, run)
			printer.done()

			final, err := rt.Store.Get(cmd.Context(), job.ID)
			if err != nil {
				return err
			}
			if final != nil {
				view := api.FromJob(final)
				if asJSON {
					if err := writeJSON(cmd, api.JobResponse{Job: view}); err != nil {
						return err
					}
				} else {
					fmt.Fprint(cmd.OutOrStdout(), renderJobDetails(view))
				}
			}

			switch {
			case runErr == nil:
				return nil
			case errors.Is(runErr, workflow.ErrCancelled):
				return fmt.Errorf("job %s %s", job.ID, queue.StatusCancelled)
			default:
				fmt.Fprintf(cmd.ErrOrStderr(), "Log: %s\n", logPath)
				return runErr
			}
		},
	}

	flags.register(cmd)
	addJSONFlag(cmd, &asJSON)
	return cmd
}
