package ai

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/stagecache"
)

type fakeCompleter struct {
	mu      sync.Mutex
	json    map[string]string
	text    string
	err     error
	calls   int
	systems []string
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, system, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.systems = append(f.systems, system)
	if f.err != nil {
		return "", f.err
	}
	for marker, body := range f.json {
		if strings.Contains(system, marker) {
			return body, nil
		}
	}
	return "{}", nil
}

func (f *fakeCompleter) CompleteText(_ context.Context, system, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.systems = append(f.systems, system)
	return f.text, f.err
}

func openCache(t *testing.T) *stagecache.Cache {
	t.Helper()
	backend, err := stagecache.OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	cache := stagecache.New(backend, 0, nil)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

const studyTableJSON = "```json\n" + `{"rows":[
	{"Condition":"Valvular disease","Mechanism":"Valvular disease"},
	{"Condition":"Aortic stenosis","Mechanism":"Calcification","Presentation":"**Syncope**, angina"},
	{"Condition":"","Mechanism":""}]}` + "\n```"

func TestStudyTableNormalizesAndCaches(t *testing.T) {
	ctx := context.Background()
	llm := &fakeCompleter{json: map[string]string{"study tables": studyTableJSON}}
	svc := New(llm, nil, openCache(t), nil)

	table, err := svc.StudyTable(ctx, "src-1", "Slide 1: valves", runspec.Params{})
	if err != nil {
		t.Fatalf("StudyTable: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("blank rows should be dropped, got %d", len(table.Rows))
	}
	if len(table.Columns) != len(DefaultColumns) {
		t.Fatalf("unexpected columns %v", table.Columns)
	}
	if title, ok := table.SectionTitle(table.Rows[0]); !ok || title != "Valvular disease" {
		t.Fatalf("expected section header, got %q %v", title, ok)
	}
	if _, ok := table.SectionTitle(table.Rows[1]); ok {
		t.Fatal("data row misdetected as section header")
	}
	if table.Rows[1]["Treatment"] != "" {
		t.Fatal("missing columns should be normalized to blank")
	}
	if !strings.Contains(llm.systems[0], "- Presentation: ") {
		t.Fatalf("prompt should describe columns: %s", llm.systems[0])
	}

	again, err := svc.StudyTable(ctx, "src-1", "", runspec.Params{})
	if err != nil {
		t.Fatalf("cached StudyTable: %v", err)
	}
	if llm.calls != 1 || len(again.Rows) != 2 {
		t.Fatalf("expected cache hit, calls=%d rows=%d", llm.calls, len(again.Rows))
	}
}

func TestStudyTableCustomColumnsBypassCache(t *testing.T) {
	ctx := context.Background()
	llm := &fakeCompleter{json: map[string]string{"study tables": `{"rows":[{"Drug":"Aspirin","Target":"COX"}]}`}}
	svc := New(llm, nil, openCache(t), nil)
	params := runspec.Params{StudyTableColumns: []string{"Drug", "Target"}}
	for i := 0; i < 2; i++ {
		table, err := svc.StudyTable(ctx, "src", "doc", params)
		if err != nil {
			t.Fatalf("StudyTable: %v", err)
		}
		if table.Rows[0]["Target"] != "COX" {
			t.Fatalf("unexpected rows %+v", table.Rows)
		}
	}
	if llm.calls != 2 {
		t.Fatalf("custom columns should not be cached, calls=%d", llm.calls)
	}
}

func TestRefinedDocumentsAreCachedSeparately(t *testing.T) {
	ctx := context.Background()
	llm := &fakeCompleter{json: map[string]string{"study tables": studyTableJSON}}
	svc := New(llm, nil, openCache(t), nil)

	if _, err := svc.StudyTable(ctx, CacheScope("src-1", false), "raw captions", runspec.Params{}); err != nil {
		t.Fatalf("raw StudyTable: %v", err)
	}
	if _, err := svc.StudyTable(ctx, CacheScope("src-1", true), "cleaned captions", runspec.Params{}); err != nil {
		t.Fatalf("refined StudyTable: %v", err)
	}
	if llm.calls != 2 {
		t.Fatalf("refined document should not reuse the raw answer, calls=%d", llm.calls)
	}
	if _, err := svc.StudyTable(ctx, CacheScope("src-1", true), "", runspec.Params{}); err != nil || llm.calls != 2 {
		t.Fatalf("expected refined cache hit, calls=%d err=%v", llm.calls, err)
	}
	if CacheScope("", true) != "" {
		t.Fatal("an unknown source must stay uncached")
	}
}

func TestQuizAndConceptMap(t *testing.T) {
	ctx := context.Background()
	llm := &fakeCompleter{json: map[string]string{
		"vignette": `{"learning_objectives":[
			{"objective":"Murmurs","questions":[{"vignette":"A 70-year-old man...","question":"Diagnosis?","choices":{"A":"AS","B":"MR","C":"AR","D":"MS","E":"TR"},"correct_answer":" a ","explanation":"Crescendo-decrescendo."}]},
			{"objective":"Empty","questions":[]}]}`,
		"Mermaid": `{"mindmaps":[{"title":" Valves ","mermaid_code":"mindmap\n  root((Valves))"},{"title":"blank","mermaid_code":"  "}]}`,
	}}
	svc := New(llm, nil, openCache(t), nil)

	quiz, err := svc.Quiz(ctx, "src", "doc", runspec.Params{})
	if err != nil {
		t.Fatalf("Quiz: %v", err)
	}
	if len(quiz.Objectives) != 1 || quiz.QuestionCount() != 1 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	q := quiz.Objectives[0].Questions[0]
	if q.CorrectAnswer != "A" || q.Number != 1 {
		t.Fatalf("question not normalized: %+v", q)
	}

	maps, err := svc.ConceptMap(ctx, "src", "doc", runspec.Params{})
	if err != nil {
		t.Fatalf("ConceptMap: %v", err)
	}
	if len(maps) != 1 || maps[0].Title != "Valves" {
		t.Fatalf("unexpected maps %+v", maps)
	}
	if _, err := svc.ConceptMap(ctx, "src", "", runspec.Params{}); err != nil {
		t.Fatalf("cached ConceptMap: %v", err)
	}
	if llm.calls != 2 {
		t.Fatalf("expected concept map cache hit, calls=%d", llm.calls)
	}
}

func TestTitleAndCleanText(t *testing.T) {
	ctx := context.Background()
	llm := &fakeCompleter{text: "\"Cardiac Valve Disease.\"\nextra line"}
	svc := New(llm, nil, nil, nil)

	title, err := svc.Title(ctx, "doc", runspec.Params{Prompts: map[string]string{PromptTitle: "custom"}})
	if err != nil {
		t.Fatalf("Title: %v", err)
	}
	if title != "Cardiac Valve Disease" {
		t.Fatalf("unexpected title %q", title)
	}
	if llm.systems[0] != "custom" {
		t.Fatalf("prompt override ignored: %q", llm.systems[0])
	}
	if _, err := svc.Title(ctx, " ", runspec.Params{}); err == nil {
		t.Fatal("expected error on empty document")
	}

	llm.text = "  "
	cleaned, err := svc.CleanText(ctx, " um the heart ", runspec.Params{})
	if err != nil || cleaned != "um the heart" {
		t.Fatalf("blank answer should keep input, got %q %v", cleaned, err)
	}
}

func TestMissingCollaborators(t *testing.T) {
	svc := New(nil, nil, nil, nil)
	if _, err := svc.Transcribe(context.Background(), "v.mp4"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := svc.Quiz(context.Background(), "s", "doc", runspec.Params{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
