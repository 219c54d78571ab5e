package runspec

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// CurrentVersion is the envelope version written by Encode.
const CurrentVersion = 1

// OutputSourceID is the output key finalize uses to record the source identity.
const OutputSourceID = "source_id"

var (
	// ErrVersionMismatch indicates an envelope written by an incompatible release.
	ErrVersionMismatch = errors.New("run envelope version mismatch")
	// ErrSourceIDChanged indicates an attempt to overwrite an established source identity.
	ErrSourceIDChanged = errors.New("source id already set")
)

// Run is the context threaded through every pipeline stage.
type Run struct {
	Version  int    `json:"version"`
	JobID    string `json:"job_id"`
	SourceID string `json:"source_id,omitempty"`
	Source   Source `json:"source"`

	VideoPath       string  `json:"video_path,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`

	Captions []Caption `json:"captions,omitempty"`
	Slides   []Slide   `json:"slides,omitempty"`

	Title        string `json:"title,omitempty"`
	DocumentPath string `json:"document_path,omitempty"`
	PageCount    int    `json:"page_count,omitempty"`

	Outputs  map[string]string `json:"outputs,omitempty"`
	Features Features          `json:"features"`
	Params   Params            `json:"params"`
}

// Caption is a single transcript segment.
type Caption struct {
	Text             string  `json:"text"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
}

// Slide is a representative frame and the caption text spoken over it.
type Slide struct {
	ImagePath   string         `json:"image_path"`
	CaptionText string         `json:"caption_text"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// New builds a fresh envelope for a job.
func New(jobID string, source Source, features Features, params Params) Run {
	return Run{
		Version:  CurrentVersion,
		JobID:    strings.TrimSpace(jobID),
		Source:   source,
		Features: features,
		Params:   params.Clone(),
	}
}

// Parse loads a run envelope from JSON. Blank input yields an empty envelope
// at the current version.
func Parse(raw string) (Run, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Run{Version: CurrentVersion}, nil
	}
	var run Run
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return Run{}, fmt.Errorf("decode run envelope: %w", err)
	}
	if run.Version != CurrentVersion {
		return Run{}, fmt.Errorf("%w: got %d, expected %d", ErrVersionMismatch, run.Version, CurrentVersion)
	}
	if err := run.Source.Validate(); err != nil {
		return Run{}, err
	}
	return run.Clone(), nil
}

// Encode serialises the envelope to JSON.
func (r Run) Encode() (string, error) {
	if r.Version == 0 {
		r.Version = CurrentVersion
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Clone returns a deep copy so stages can work on their own value.
func (r Run) Clone() Run {
	out := r
	out.Captions = slices.Clone(r.Captions)
	if len(r.Slides) > 0 {
		out.Slides = make([]Slide, len(r.Slides))
		for i, slide := range r.Slides {
			slide.Extra = maps.Clone(slide.Extra)
			out.Slides[i] = slide
		}
	}
	out.Outputs = maps.Clone(r.Outputs)
	out.Params = r.Params.Clone()
	return out
}

// SetSourceID records the source identity. Setting the same value twice is a
// no-op; changing it is an error.
func (r *Run) SetSourceID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("source id is empty")
	}
	if r.SourceID != "" && r.SourceID != id {
		return fmt.Errorf("%w: %s", ErrSourceIDChanged, r.SourceID)
	}
	r.SourceID = id
	return nil
}

// SetOutput records an artifact location, overwriting a previous value for
// the same key.
func (r *Run) SetOutput(key, location string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if r.Outputs == nil {
		r.Outputs = make(map[string]string)
	}
	r.Outputs[key] = location
}

// MergeOutputs copies every entry of outputs into the run.
func (r *Run) MergeOutputs(outputs map[string]string) {
	for key, location := range outputs {
		r.SetOutput(key, location)
	}
}

// OutputKeys returns the recorded output keys in sorted order.
func (r Run) OutputKeys() []string {
	return slices.Sorted(maps.Keys(r.Outputs))
}

// DocumentText joins slide captions into the text AI functions operate on.
func (r Run) DocumentText() string {
	var b strings.Builder
	if title := strings.TrimSpace(r.Title); title != "" {
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	for i, slide := range r.Slides {
		text := strings.TrimSpace(slide.CaptionText)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "Slide %d: %s\n", i+1, text)
	}
	return strings.TrimSpace(b.String())
}

// CaptionText joins every caption with single spaces.
func (r Run) CaptionText() string {
	parts := make([]string, 0, len(r.Captions))
	for _, c := range r.Captions {
		if text := strings.TrimSpace(c.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// ReferencedFiles lists every local file the envelope points at.
func (r Run) ReferencedFiles() []string {
	var files []string
	if r.VideoPath != "" {
		files = append(files, r.VideoPath)
	}
	for _, slide := range r.Slides {
		if slide.ImagePath != "" {
			files = append(files, slide.ImagePath)
		}
	}
	if r.DocumentPath != "" {
		files = append(files, r.DocumentPath)
	}
	return files
}
