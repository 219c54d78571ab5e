package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizePipeline()
	c.normalizeAcquire()
	c.normalizeLLM()
	c.normalizeTranscription()
	c.normalizeCache()
	c.normalizeStorage()
	c.normalizeWorkers()
	c.normalizeAPI()
	c.normalizeTools()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(defaultIfBlank(c.Paths.WorkDir, defaultWorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(defaultIfBlank(c.Paths.OutputDir, defaultOutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(defaultIfBlank(c.Paths.LogDir, defaultLogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(defaultIfBlank(c.Paths.StateDir, defaultStateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.SimilarityThreshold == 0 {
		c.Pipeline.SimilarityThreshold = defaultSimilarityThreshold
	}
	if c.Pipeline.SampleOffsetSeconds < 0 {
		c.Pipeline.SampleOffsetSeconds = defaultSampleOffsetSeconds
	}
	if c.Pipeline.ScaleFactor == 0 {
		c.Pipeline.ScaleFactor = defaultScaleFactor
	}
	if c.Pipeline.JPEGQuality == 0 {
		c.Pipeline.JPEGQuality = defaultJPEGQuality
	}
}

func (c *Config) normalizeAcquire() {
	c.Acquire.Variant = strings.ToLower(strings.TrimSpace(c.Acquire.Variant))
	if c.Acquire.Variant == "" {
		c.Acquire.Variant = defaultVariant
	}
	if c.Acquire.SegmentAttempts <= 0 {
		c.Acquire.SegmentAttempts = defaultSegmentAttempts
	}
	if c.Acquire.HTTPTimeoutSeconds <= 0 {
		c.Acquire.HTTPTimeoutSeconds = defaultHTTPTimeoutSeconds
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = defaultIfBlank(c.LLM.BaseURL, defaultLLMBaseURL)
	c.LLM.Model = defaultIfBlank(c.LLM.Model, defaultLLMModel)
	c.LLM.Referer = defaultIfBlank(c.LLM.Referer, defaultLLMReferer)
	c.LLM.Title = defaultIfBlank(c.LLM.Title, defaultLLMTitle)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = firstEnv("OPENROUTER_API_KEY", "OPENAI_API_KEY")
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = defaultIfBlank(c.Transcription.Model, defaultTranscriptionModel)
	c.Transcription.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		c.Transcription.APIKey = firstEnv("OPENAI_API_KEY")
	}
}

func (c *Config) normalizeCache() {
	c.Cache.Backend = strings.ToLower(defaultIfBlank(c.Cache.Backend, defaultCacheBackend))
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = defaultCacheTTLHours
	}
	c.Cache.DynamoDBTable = strings.TrimSpace(c.Cache.DynamoDBTable)
	c.Cache.DynamoDBRegion = strings.TrimSpace(c.Cache.DynamoDBRegion)
	if c.Cache.DynamoDBRegion == "" {
		c.Cache.DynamoDBRegion = firstEnv("AWS_REGION")
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(defaultIfBlank(c.Storage.Backend, defaultStorageBackend))
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = firstEnv("AWS_REGION")
	}
	c.Storage.Prefix = strings.TrimLeft(strings.TrimSpace(c.Storage.Prefix), "/")
	if c.Storage.Prefix != "" && !strings.HasSuffix(c.Storage.Prefix, "/") {
		c.Storage.Prefix += "/"
	}
}

func (c *Config) normalizeWorkers() {
	c.Workers.Backend = strings.ToLower(defaultIfBlank(c.Workers.Backend, defaultWorkersBackend))
	if c.Workers.MaxJobs <= 0 {
		c.Workers.MaxJobs = defaultMaxJobs
	}
	if c.Workers.FanoutSize <= 0 {
		c.Workers.FanoutSize = defaultFanoutSize
	}
	if c.Workers.PollIntervalSeconds <= 0 {
		c.Workers.PollIntervalSeconds = defaultPollIntervalSeconds
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.TokenSecret = strings.TrimSpace(c.API.TokenSecret)
	if c.API.TokenSecret == "" {
		c.API.TokenSecret = firstEnv("HANDOUT_API_TOKEN_SECRET")
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = defaultIfBlank(c.Tools.FFmpeg, defaultFFmpegBinary)
	c.Tools.FFprobe = defaultIfBlank(c.Tools.FFprobe, defaultFFprobeBinary)
	c.Tools.Ghostscript = defaultIfBlank(c.Tools.Ghostscript, defaultGhostscriptBinary)
}

func defaultIfBlank(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
