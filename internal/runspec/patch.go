package runspec

import "maps"

// Patch is the output of a single stage. Only the fields that are set are
// merged into the run, so a stage can never delete what an earlier stage
// produced.
type Patch struct {
	SourceID        string            `json:"source_id,omitempty"`
	VideoPath       string            `json:"video_path,omitempty"`
	DurationSeconds float64           `json:"duration_seconds,omitempty"`
	Captions        []Caption         `json:"captions,omitempty"`
	Slides          []Slide           `json:"slides,omitempty"`
	Title           string            `json:"title,omitempty"`
	DocumentPath    string            `json:"document_path,omitempty"`
	PageCount       int               `json:"page_count,omitempty"`
	Outputs         map[string]string `json:"outputs,omitempty"`
}

// Empty reports whether the patch carries no fields.
func (p Patch) Empty() bool {
	return p.SourceID == "" && p.VideoPath == "" && p.DurationSeconds == 0 &&
		len(p.Captions) == 0 && len(p.Slides) == 0 && p.Title == "" &&
		p.DocumentPath == "" && p.PageCount == 0 && len(p.Outputs) == 0
}

// Files lists the local files the patch references.
func (p Patch) Files() []string {
	var files []string
	if p.VideoPath != "" {
		files = append(files, p.VideoPath)
	}
	for _, slide := range p.Slides {
		if slide.ImagePath != "" {
			files = append(files, slide.ImagePath)
		}
	}
	if p.DocumentPath != "" {
		files = append(files, p.DocumentPath)
	}
	return files
}

// Apply merges the patch into the run. A conflicting source id is rejected
// and leaves the run untouched.
func (r *Run) Apply(p Patch) error {
	if p.SourceID != "" {
		if err := r.SetSourceID(p.SourceID); err != nil {
			return err
		}
	}
	if p.VideoPath != "" {
		r.VideoPath = p.VideoPath
	}
	if p.DurationSeconds > 0 {
		r.DurationSeconds = p.DurationSeconds
	}
	if len(p.Captions) > 0 {
		r.Captions = append([]Caption(nil), p.Captions...)
	}
	if len(p.Slides) > 0 {
		r.Slides = make([]Slide, len(p.Slides))
		for i, slide := range p.Slides {
			slide.Extra = maps.Clone(slide.Extra)
			r.Slides[i] = slide
		}
	}
	if p.Title != "" {
		r.Title = p.Title
	}
	if p.DocumentPath != "" {
		r.DocumentPath = p.DocumentPath
	}
	if p.PageCount > 0 {
		r.PageCount = p.PageCount
	}
	r.MergeOutputs(p.Outputs)
	return nil
}
