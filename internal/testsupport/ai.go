package testsupport

import (
	"context"
	"errors"
	"strings"
	"sync"

	"handout/internal/runspec"
)

// Canned completions keyed by a phrase from the matching system prompt.
const (
	MarkerCleanText  = "clean lecture transcript"
	MarkerTitle      = "name lecture handouts"
	MarkerStudyTable = "study tables"
	MarkerQuiz       = "vignette"
	MarkerConceptMap = "Mermaid"
)

// StudyTableJSON, QuizJSON and ConceptMapJSON are minimal valid answers.
const (
	StudyTableJSON = `{"rows":[
		{"Condition":"Valves","Mechanism":"Valves"},
		{"Condition":"Aortic stenosis","Mechanism":"Calcification","Presentation":"**Syncope**"}]}`
	QuizJSON = `{"learning_objectives":[{"objective":"Murmurs","questions":[
		{"vignette":"A 70-year-old man faints.","question":"Diagnosis?",
		 "choices":{"A":"AS","B":"MR","C":"AR","D":"MS","E":"TR"},"correct_answer":"A","explanation":"Classic triad."}]}]}`
	ConceptMapJSON = `{"mindmaps":[{"title":"Valves","mermaid_code":"mindmap\n  root((Valves))\n    Aortic"}]}`
)

// Completer is a scripted chat client. Answers are chosen by the first
// marker found in the system prompt; Fail makes a marker return an error.
// It counts every call.
type Completer struct {
	Text map[string]string
	JSON map[string]string
	Fail map[string]error

	mu    sync.Mutex
	calls map[string]int
}

// NewCompleter returns a Completer that answers every pipeline prompt.
func NewCompleter() *Completer {
	return &Completer{
		Text: map[string]string{
			MarkerTitle: "cardiac valve disease",
		},
		JSON: map[string]string{
			MarkerStudyTable: StudyTableJSON,
			MarkerQuiz:       QuizJSON,
			MarkerConceptMap: ConceptMapJSON,
		},
	}
}

// CompleteJSON implements ai.Completer.
func (c *Completer) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return c.answer(ctx, c.JSON, system, "{}")
}

// CompleteText implements ai.Completer. CleanText prompts without a
// scripted answer echo the input in upper case.
func (c *Completer) CompleteText(ctx context.Context, system, user string) (string, error) {
	if strings.Contains(system, MarkerCleanText) {
		if _, scripted := c.Text[MarkerCleanText]; !scripted {
			if _, err := c.answer(ctx, nil, system, ""); err != nil {
				return "", err
			}
			return strings.ToUpper(user), nil
		}
	}
	return c.answer(ctx, c.Text, system, "")
}

func (c *Completer) answer(ctx context.Context, answers map[string]string, system, fallback string) (string, error) {
	marker := markerFor(system)
	c.mu.Lock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[marker]++
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.Fail[marker]; err != nil {
		return "", err
	}
	if body, ok := answers[marker]; ok {
		return body, nil
	}
	return fallback, nil
}

// Calls returns how often a marker was asked for; an empty marker returns
// the total.
func (c *Completer) Calls(marker string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if marker != "" {
		return c.calls[marker]
	}
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func markerFor(system string) string {
	for _, marker := range []string{MarkerCleanText, MarkerTitle, MarkerStudyTable, MarkerQuiz, MarkerConceptMap} {
		if strings.Contains(system, marker) {
			return marker
		}
	}
	return ""
}

// Transcriber returns fixed captions and counts calls. When Block is set it
// waits for the context instead, closing Started first.
type Transcriber struct {
	Captions []runspec.Caption
	Err      error
	Block    bool
	Started  chan struct{}

	mu    sync.Mutex
	calls int
}

// Transcribe implements ai.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, videoPath string) ([]runspec.Caption, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.Block {
		if t.Started != nil {
			close(t.Started)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if t.Err != nil {
		return nil, t.Err
	}
	if videoPath == "" {
		return nil, errors.New("no video")
	}
	return append([]runspec.Caption(nil), t.Captions...), nil
}

// Calls reports how many times Transcribe ran.
func (t *Transcriber) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// LectureCaptions is the three-caption anatomy intro. Served with
// TwoSlideFrames(LectureSplit) the first two captions share a slide.
func LectureCaptions() []runspec.Caption {
	return []runspec.Caption{
		{Text: "Welcome", TimestampSeconds: 0},
		{Text: "Intro to anatomy", TimestampSeconds: 12.5},
		{Text: "Anatomy slide 2", TimestampSeconds: 25},
	}
}

// LectureSplit is where LectureCaptions switches slides.
const LectureSplit = 20.0
