package runspec

import (
	"maps"
	"slices"
	"strings"
)

// Feature names used on the wire and in output keys.
const (
	FeatureStudyTable = "study_table"
	FeatureQuiz       = "quiz"
	FeatureConceptMap = "concept_map"
	FeatureRefine     = "refine"
)

// Features toggles optional pipeline work for a single job.
type Features struct {
	StudyTable bool `json:"study_table"`
	Quiz       bool `json:"quiz"`
	ConceptMap bool `json:"concept_map"`
	Refine     bool `json:"refine"`
}

// Enabled returns the enabled artifact kinds in fan-out order.
func (f Features) Enabled() []string {
	var kinds []string
	if f.StudyTable {
		kinds = append(kinds, FeatureStudyTable)
	}
	if f.Quiz {
		kinds = append(kinds, FeatureQuiz)
	}
	if f.ConceptMap {
		kinds = append(kinds, FeatureConceptMap)
	}
	return kinds
}

// Params carries caller-supplied generation overrides.
type Params struct {
	// Prompts maps an AI function name (title, clean_text, study_table,
	// quiz, concept_map) to a replacement system prompt.
	Prompts map[string]string `json:"prompts,omitempty"`
	// StudyTableColumns replaces the default study table headers.
	StudyTableColumns []string `json:"study_table_columns,omitempty"`
}

// Prompt returns the override for name, or fallback when none is set.
func (p Params) Prompt(name, fallback string) string {
	if value := strings.TrimSpace(p.Prompts[name]); value != "" {
		return value
	}
	return fallback
}

// Columns returns the custom study table columns, or fallback.
func (p Params) Columns(fallback []string) []string {
	cols := make([]string, 0, len(p.StudyTableColumns))
	for _, col := range p.StudyTableColumns {
		if col = strings.TrimSpace(col); col != "" {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		return slices.Clone(fallback)
	}
	return cols
}

// Clone returns a deep copy of the params.
func (p Params) Clone() Params {
	return Params{
		Prompts:           maps.Clone(p.Prompts),
		StudyTableColumns: slices.Clone(p.StudyTableColumns),
	}
}

// HasOverride reports whether a prompt override is set for name.
func (p Params) HasOverride(name string) bool {
	return strings.TrimSpace(p.Prompts[name]) != ""
}
