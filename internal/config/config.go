package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	StateDir  string `toml:"state_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	RetentionDays  int               `toml:"retention_days"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Pipeline contains tuning for the frame deduplication stage.
type Pipeline struct {
	// SimilarityThreshold is the edge-correlation score below which a new
	// slide starts. Default: 0.85
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	// SampleOffsetSeconds is added to every caption timestamp before the frame
	// is grabbed so slide transitions have settled. Default: 0.5
	SampleOffsetSeconds float64 `toml:"sample_offset_seconds"`
	ScaleFactor         float64 `toml:"scale_factor"`
	JPEGQuality         int     `toml:"jpeg_quality"`
}

// Acquire contains video acquisition settings.
type Acquire struct {
	// Variant selects the HLS rendition: "lowest" or "highest" bandwidth.
	Variant            string `toml:"variant"`
	SegmentAttempts    int    `toml:"segment_attempts"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
}

// Artifacts toggles the optional outputs generated after the handout.
type Artifacts struct {
	StudyTable bool `toml:"study_table"`
	Quiz       bool `toml:"quiz"`
	ConceptMap bool `toml:"concept_map"`
	Refine     bool `toml:"refine"`
}

// LLM contains chat completion connection settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Transcription contains speech-to-text settings.
type Transcription struct {
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// Cache contains stage cache settings.
type Cache struct {
	Backend        string `toml:"backend"`
	TTLHours       int    `toml:"ttl_hours"`
	DynamoDBTable  string `toml:"dynamodb_table"`
	DynamoDBRegion string `toml:"dynamodb_region"`
}

// Storage selects where finished documents are kept.
type Storage struct {
	Backend      string `toml:"backend"`
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	Endpoint     string `toml:"endpoint"`
	UsePathStyle bool   `toml:"use_path_style"`
	Prefix       string `toml:"prefix"`
}

// Workers controls how many jobs and artifact units run at once.
type Workers struct {
	Backend    string `toml:"backend"`
	MaxJobs    int    `toml:"max_jobs"`
	FanoutSize int    `toml:"fanout_size"`
	// PollIntervalSeconds is how often the daemon looks for pending jobs.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// API contains the daemon HTTP API settings.
type API struct {
	Bind        string `toml:"bind"`
	TokenSecret string `toml:"token_secret"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
}

// Tools names the external binaries.
type Tools struct {
	FFmpeg      string `toml:"ffmpeg"`
	FFprobe     string `toml:"ffprobe"`
	Ghostscript string `toml:"ghostscript"`
}

// Config encapsulates all configuration values for handout.
//
// Configuration sections by subsystem:
//   - Paths: work, output, log and state directories
//   - Logging: log format, level, and retention
//   - Pipeline: frame sampling and slide detection thresholds
//   - Acquire: download and HLS behaviour
//   - Artifacts: optional outputs
//   - LLM / Transcription: AI collaborators
//   - Cache: stage cache backend and TTL
//   - Storage: local or S3-compatible output storage
//   - Workers: job and fan-out concurrency
//   - API: daemon HTTP API
//   - Notifications: ntfy push notification settings
//   - Tools: external binary names
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Acquire       Acquire       `toml:"acquire"`
	Artifacts     Artifacts     `toml:"artifacts"`
	LLM           LLM           `toml:"llm"`
	Transcription Transcription `toml:"transcription"`
	Cache         Cache         `toml:"cache"`
	Storage       Storage       `toml:"storage"`
	Workers       Workers       `toml:"workers"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
	Tools         Tools         `toml:"tools"`
}

// ErrConfigNotFound is returned by Load when an explicitly named file does
// not exist. Only the implicit lookup falls back to defaults.
var ErrConfigNotFound = errors.New("config file not found")

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/handout/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("%w: %s", ErrConfigNotFound, expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("handout.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir, c.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobsDBPath returns the sqlite path of the job store.
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// CacheDBPath returns the sqlite path of the stage cache.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.Paths.StateDir, "stage_cache.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "handoutd.lock")
}

// JobWorkDir returns the scratch directory for a single job.
func (c *Config) JobWorkDir(jobID string) string {
	return filepath.Join(c.Paths.WorkDir, jobID)
}

// CacheTTL returns the stage cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return c.Tools.FFmpeg
}

// FFprobeBinary returns the ffprobe executable name used for media validation.
func (c *Config) FFprobeBinary() string {
	return c.Tools.FFprobe
}

// GhostscriptBinary returns the ghostscript executable name.
func (c *Config) GhostscriptBinary() string {
	return c.Tools.Ghostscript
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// WriteSample writes the annotated sample configuration to path (the
// default location when blank) and returns the expanded destination. An
// existing file is an fs.ErrExist error unless overwrite is set.
func WriteSample(path string, overwrite bool) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = "~/.config/handout/config.toml"
	}
	target, err := expandPath(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	file, err := os.OpenFile(target, flags, 0o644)
	if err != nil {
		return target, fmt.Errorf("write sample config: %w", err)
	}
	if _, err := file.WriteString(sampleConfig); err != nil {
		_ = file.Close()
		return target, fmt.Errorf("write sample config: %w", err)
	}
	return target, file.Close()
}

// LLMConfig contains the chat completion settings handed to the llm client.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the chat completion connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
