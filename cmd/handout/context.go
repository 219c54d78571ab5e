package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"handout/internal/api"
	"handout/internal/config"
	"handout/internal/queue"
)

// cliTokenTTL bounds tokens the CLI mints for itself.
const cliTokenTTL = 10 * time.Minute

type commandContext struct {
	configFlag *string
	apiFlag    *string
	tokenFlag  *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, apiFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		// A missing .env is the normal case.
		_ = godotenv.Load()
		cfg, path, _, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// client returns an API client for the configured daemon. Without an
// explicit --token the CLI mints a short-lived one from the shared secret.
func (c *commandContext) client() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	baseURL := flagValue(c.apiFlag)
	if baseURL == "" {
		baseURL = api.BaseURL(cfg.API.Bind)
	}
	token := flagValue(c.tokenFlag)
	if token == "" && strings.TrimSpace(cfg.API.TokenSecret) != "" {
		token, err = api.MintToken(cfg.API.TokenSecret, "handout-cli", cliTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("mint api token: %w", err)
		}
	}
	return api.NewClient(baseURL, token, nil), nil
}

// withJobs runs fn against the daemon when it answers its health endpoint
// and against the job database otherwise.
func (c *commandContext) withJobs(ctx context.Context, fn func(jobsAPI) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	_, probeErr := client.Health(probeCtx)
	cancel()
	if probeErr == nil {
		return fn(&jobsHTTPAdapter{client: client})
	}
	if !daemonUnreachable(probeErr) {
		return probeErr
	}

	store, err := queue.Open(c.config)
	if err != nil {
		return fmt.Errorf("open job database: %w", err)
	}
	defer store.Close()
	return fn(&jobsStoreAdapter{store: store})
}

func daemonUnreachable(err error) bool {
	var netErr net.Error
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr)
}

func wrapAPIError(err error, baseURL string) error {
	if err == nil {
		return nil
	}
	if daemonUnreachable(err) {
		return fmt.Errorf("connect to daemon at %s: %w; start it with `handout daemon`", baseURL, err)
	}
	return err
}

func flagValue(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
