package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateAcquire(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	return nil
}

// ValidateAI reports whether the AI collaborators have credentials. It is
// separate from Validate so config utilities work without keys.
func (c *Config) ValidateAI() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/handout/config.toml"
		}
		return fmt.Errorf("llm.api_key is required. Set OPENROUTER_API_KEY env var or edit %s (create with 'handout config init')", defaultPath)
	}
	if strings.TrimSpace(c.Transcription.APIKey) == "" {
		return errors.New("transcription.api_key is required (or set OPENAI_API_KEY)")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.SimilarityThreshold <= 0 || c.Pipeline.SimilarityThreshold > 1 {
		return errors.New("pipeline.similarity_threshold must be between 0 and 1")
	}
	if c.Pipeline.ScaleFactor <= 0 || c.Pipeline.ScaleFactor > 1 {
		return errors.New("pipeline.scale_factor must be between 0 and 1")
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		return errors.New("pipeline.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateAcquire() error {
	switch c.Acquire.Variant {
	case "lowest", "highest":
	default:
		return fmt.Errorf("acquire.variant must be lowest or highest, got %q", c.Acquire.Variant)
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case "sqlite", "none":
	case "dynamodb":
		if c.Cache.DynamoDBTable == "" {
			return errors.New("cache.dynamodb_table must be set when cache.backend is dynamodb")
		}
		if c.Cache.DynamoDBRegion == "" {
			return errors.New("cache.dynamodb_region must be set when cache.backend is dynamodb (or set AWS_REGION)")
		}
	default:
		return fmt.Errorf("cache.backend must be sqlite, dynamodb or none, got %q", c.Cache.Backend)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when storage.backend is s3")
		}
		if c.Storage.Region == "" {
			return errors.New("storage.region must be set when storage.backend is s3 (or set AWS_REGION)")
		}
	default:
		return fmt.Errorf("storage.backend must be local or s3, got %q", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateWorkers() error {
	switch c.Workers.Backend {
	case "pool", "group":
	default:
		return fmt.Errorf("workers.backend must be pool or group, got %q", c.Workers.Backend)
	}
	return ensurePositiveMap(map[string]int{
		"workers.max_jobs":              c.Workers.MaxJobs,
		"workers.fanout_size":           c.Workers.FanoutSize,
		"workers.poll_interval_seconds": c.Workers.PollIntervalSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
