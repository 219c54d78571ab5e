package config

const (
	defaultWorkDir               = "~/.local/share/handout/work"
	defaultOutputDir             = "~/.local/share/handout/output"
	defaultLogDir                = "~/.local/share/handout/logs"
	defaultStateDir              = "~/.local/share/handout/state"
	defaultLogRetentionDays      = 30
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultSimilarityThreshold   = 0.85
	defaultSampleOffsetSeconds   = 0.5
	defaultScaleFactor           = 0.5
	defaultJPEGQuality           = 85
	defaultVariant               = "lowest"
	defaultSegmentAttempts       = 3
	defaultHTTPTimeoutSeconds    = 300
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMReferer            = "https://github.com/handout/handout"
	defaultLLMTitle              = "Handout Generator"
	defaultLLMTimeoutSeconds     = 120
	defaultTranscriptionModel    = "whisper-1"
	defaultCacheBackend          = "sqlite"
	defaultCacheTTLHours         = 7 * 24
	defaultStorageBackend        = "local"
	defaultStoragePrefix         = "output/"
	defaultWorkersBackend        = "pool"
	defaultMaxJobs               = 2
	defaultFanoutSize            = 4
	defaultPollIntervalSeconds   = 2
	defaultAPIBind               = "127.0.0.1:7488"
	defaultNotifyRequestTimeout  = 10
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultGhostscriptBinary     = "gs"
	defaultTranscriptionLanguage = ""
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Pipeline: Pipeline{
			SimilarityThreshold: defaultSimilarityThreshold,
			SampleOffsetSeconds: defaultSampleOffsetSeconds,
			ScaleFactor:         defaultScaleFactor,
			JPEGQuality:         defaultJPEGQuality,
		},
		Acquire: Acquire{
			Variant:            defaultVariant,
			SegmentAttempts:    defaultSegmentAttempts,
			HTTPTimeoutSeconds: defaultHTTPTimeoutSeconds,
		},
		Artifacts: Artifacts{
			StudyTable: true,
			Quiz:       true,
			ConceptMap: true,
			Refine:     true,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Transcription: Transcription{
			Model:    defaultTranscriptionModel,
			Language: defaultTranscriptionLanguage,
		},
		Cache: Cache{
			Backend:  defaultCacheBackend,
			TTLHours: defaultCacheTTLHours,
		},
		Storage: Storage{
			Backend: defaultStorageBackend,
			Prefix:  defaultStoragePrefix,
		},
		Workers: Workers{
			Backend:             defaultWorkersBackend,
			MaxJobs:             defaultMaxJobs,
			FanoutSize:          defaultFanoutSize,
			PollIntervalSeconds: defaultPollIntervalSeconds,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Failed:         true,
		},
		Tools: Tools{
			FFmpeg:      defaultFFmpegBinary,
			FFprobe:     defaultFFprobeBinary,
			Ghostscript: defaultGhostscriptBinary,
		},
	}
}
