package transcribe

import "time"

// Config captures runtime settings for transcription.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	// MaxRetries is handed to the openai client. Zero keeps the client default.
	MaxRetries int
	Timeout    time.Duration
}

// Transcription defaults.
const (
	DefaultModel      = "whisper-1"
	DefaultMaxRetries = 3
	AudioSampleRate   = "16000"
	AudioBitrate      = "32k"
	audioFileName     = "audio.mp3"
	FFmpegCommand     = "ffmpeg"
)
