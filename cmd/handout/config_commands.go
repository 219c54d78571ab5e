package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"handout/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the configuration file",
	}
	cmd.AddCommand(newConfigValidateCommand(ctx), newConfigInitCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		targetPath string
		overwrite  bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := config.WriteSample(targetPath, overwrite)
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set llm.api_key and transcription.api_key (or export OPENROUTER_API_KEY and OPENAI_API_KEY) before running handout.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			if ctx.configPath != "" {
				fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			}
			if _, err := os.Stat(ctx.configPath); err != nil {
				fmt.Fprintln(out, "Config file not found; defaults were used")
			}
			fmt.Fprint(out, renderDetails([][2]string{
				{"Work dir", cfg.Paths.WorkDir},
				{"Output dir", cfg.Paths.OutputDir},
				{"Storage", cfg.Storage.Backend},
				{"Cache", cfg.Cache.Backend},
				{"Workers", fmt.Sprintf("%s x%d", cfg.Workers.Backend, cfg.Workers.MaxJobs)},
				{"API", cfg.API.Bind},
				{"API auth", yesNo(strings.TrimSpace(cfg.API.TokenSecret) != "")},
			}))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
