package ai

import "strings"

// StudyTable holds the rows of a study table keyed by column name.
type StudyTable struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// SectionTitle reports whether row is a section header: every non-blank cell
// repeats the first column. It returns the header text.
func (t StudyTable) SectionTitle(row map[string]string) (string, bool) {
	if len(t.Columns) == 0 {
		return "", false
	}
	first := strings.TrimSpace(row[t.Columns[0]])
	if first == "" {
		return "", false
	}
	for _, col := range t.Columns[1:] {
		value := strings.TrimSpace(row[col])
		if value != "" && value != first {
			return "", false
		}
	}
	return first, true
}

// Quiz groups vignette questions by learning objective.
type Quiz struct {
	Objectives []Objective `json:"learning_objectives"`
}

// Objective is one learning objective with its questions.
type Objective struct {
	Objective string     `json:"objective"`
	Questions []Question `json:"questions"`
}

// Question is a single vignette multiple-choice question.
type Question struct {
	Number        int               `json:"question_number"`
	Difficulty    string            `json:"difficulty"`
	Vignette      string            `json:"vignette"`
	Question      string            `json:"question"`
	Choices       map[string]string `json:"choices"`
	CorrectAnswer string            `json:"correct_answer"`
	Explanation   string            `json:"explanation"`
}

// ChoiceLetters is the fixed answer ordering.
var ChoiceLetters = []string{"A", "B", "C", "D", "E"}

// QuestionCount returns the number of questions across all objectives.
func (q Quiz) QuestionCount() int {
	total := 0
	for _, obj := range q.Objectives {
		total += len(obj.Questions)
	}
	return total
}

// ConceptMap is a titled Mermaid mindmap.
type ConceptMap struct {
	Title   string `json:"title"`
	Mermaid string `json:"mermaid_code"`
}

type conceptMapPayload struct {
	Mindmaps []ConceptMap `json:"mindmaps"`
}

type studyTablePayload struct {
	Rows []map[string]string `json:"rows"`
}

// Column describes a study table column for the prompt.
type Column struct {
	Name        string
	Description string
}

// DefaultColumns is used when the run carries no custom columns.
var DefaultColumns = []Column{
	{Name: "Condition", Description: "Disease, drug or concept name; use a repeated value across the row for section headers"},
	{Name: "Mechanism", Description: "Pathophysiology or mechanism of action"},
	{Name: "Presentation", Description: "Key signs, symptoms or clinical features"},
	{Name: "Diagnosis", Description: "Tests, findings and diagnostic criteria"},
	{Name: "Treatment", Description: "Management and first-line therapy"},
	{Name: "High-Yield Facts", Description: "Associations and facts likely to be examined; bold key terms with **"},
}

// DefaultColumnNames returns the names of DefaultColumns.
func DefaultColumnNames() []string {
	names := make([]string, len(DefaultColumns))
	for i, col := range DefaultColumns {
		names[i] = col.Name
	}
	return names
}
