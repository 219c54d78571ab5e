package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"handout/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags jobFlags
	var watch bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "submit [path-or-url]",
		Short: "Queue a lecture on the running daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := ""
			if len(args) == 1 {
				input = strings.TrimSpace(args[0])
			}
			if input == "" && flags.deliveryID == "" {
				return errors.New("a path, url or --delivery-id is required")
			}
			req, err := flags.request(cmd, input)
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.Submit(cmd.Context(), req)
			if err != nil {
				return wrapAPIError(err, api.BaseURL(ctx.config.API.Bind))
			}
			if asJSON && !watch {
				return writeJSON(cmd, api.JobResponse{Job: job})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s (%s)\n", job.ID, job.Source)
			if !watch {
				return nil
			}
			return watchJob(cmd, client, job)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow progress until the job finishes")
	addJSONFlag(cmd, &asJSON)
	return cmd
}
