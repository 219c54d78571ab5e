package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"handout/internal/deps"
	"handout/internal/logging"
	"handout/internal/runspec"
	"handout/internal/services"
)

// ErrNoSpeech is returned when the transcript has no usable segments.
var ErrNoSpeech = errors.New("no intelligible audio")

// Segment is one timestamped piece of a verbose_json transcript.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type verbosePayload struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Service transcribes video files.
type Service struct {
	cfg          Config
	client       openai.Client
	ffmpegBinary string
	runner       deps.Runner
	logger       *slog.Logger
}

// Option customizes the service.
type Option func(*serviceOptions)

type serviceOptions struct {
	httpClient *http.Client
	runner     deps.Runner
	logger     *slog.Logger
}

// WithHTTPClient overrides the HTTP client used by the openai client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *serviceOptions) { o.httpClient = client }
}

// WithCommandRunner overrides how ffmpeg is executed.
func WithCommandRunner(runner deps.Runner) Option {
	return func(o *serviceOptions) { o.runner = runner }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) { o.logger = logger }
}

// NewService builds a transcription service.
func NewService(cfg Config, ffmpegBinary string, opts ...Option) *Service {
	options := serviceOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.runner == nil {
		options.runner = deps.ExecRunner{}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	if options.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(options.httpClient))
	}

	return &Service{
		cfg:          cfg,
		client:       openai.NewClient(clientOpts...),
		ffmpegBinary: ffmpegBinary,
		runner:       options.runner,
		logger:       logging.NewComponentLogger(options.logger, "transcribe"),
	}
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.cfg.Model
}

// Transcribe uploads the audio of videoPath and returns captions in
// timestamp order.
func (s *Service) Transcribe(ctx context.Context, videoPath string) ([]runspec.Caption, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcribe", "check credentials", "transcription api key is not set", nil)
	}
	upload := videoPath
	audioPath := filepath.Join(filepath.Dir(videoPath), audioFileName)
	if err := ExtractAudio(ctx, s.runner, s.ffmpegBinary, videoPath, audioPath); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "audio extraction failed; uploading video", "audio_extract_failed",
			logging.String("video_path", videoPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "larger upload, may exceed the transcription size limit"),
			logging.String(logging.FieldErrorHint, "install ffmpeg"),
		)
	} else {
		upload = audioPath
		defer os.Remove(audioPath)
	}

	segments, err := s.transcribeFile(ctx, upload)
	if err != nil {
		return nil, err
	}
	captions := make([]runspec.Caption, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		captions = append(captions, runspec.Caption{Text: text, TimestampSeconds: seg.Start})
	}
	if len(captions) == 0 {
		return nil, ErrNoSpeech
	}
	logging.WithContext(ctx, s.logger).Info("transcription complete",
		logging.String(logging.FieldEventType, "transcription_complete"),
		logging.Int("segments", len(captions)),
		logging.String("model", s.cfg.Model),
	)
	return captions, nil
}

func (s *Service) transcribeFile(ctx context.Context, path string) ([]Segment, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "transcribe", "open media", path, err)
	}
	defer file.Close()

	params := openai.AudioTranscriptionNewParams{
		File:                   file,
		Model:                  openai.AudioModel(s.cfg.Model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}
	if lang := strings.TrimSpace(s.cfg.Language); lang != "" {
		params.Language = openai.String(lang)
	}

	resp, err := s.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "transcribe", "request transcription", "openai audio api failed", err)
	}
	return decodeSegments(resp.RawJSON())
}

func decodeSegments(raw string) ([]Segment, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoSpeech
	}
	var payload verbosePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("parse verbose transcript: %w", err)
	}
	return payload.Segments, nil
}
