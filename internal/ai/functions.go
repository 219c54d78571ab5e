package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"handout/internal/logging"
	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/services/llm"
	"handout/internal/stagecache"
)

// Cache stage names for artifact results.
const (
	CacheStudyTable = "ai:study_table"
	CacheQuiz       = "ai:quiz"
	CacheConceptMap = "ai:concept_map"
)

var errEmptyDocument = errors.New("document text is empty")

// CacheScope is the partition artifact results are cached under. Documents
// built from refined captions get their own entries.
func CacheScope(sourceID string, refined bool) string {
	if refined && sourceID != "" {
		return sourceID + "+refined"
	}
	return sourceID
}

// Functions is the AI surface used by the pipeline stages.
type Functions interface {
	Transcribe(ctx context.Context, videoPath string) ([]runspec.Caption, error)
	CleanText(ctx context.Context, text string, params runspec.Params) (string, error)
	Title(ctx context.Context, document string, params runspec.Params) (string, error)
	StudyTable(ctx context.Context, scope, document string, params runspec.Params) (StudyTable, error)
	Quiz(ctx context.Context, scope, document string, params runspec.Params) (Quiz, error)
	ConceptMap(ctx context.Context, scope, document string, params runspec.Params) ([]ConceptMap, error)
}

// Completer is the chat completion client.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Transcriber converts a video into captions.
type Transcriber interface {
	Transcribe(ctx context.Context, videoPath string) ([]runspec.Caption, error)
}

// Service implements Functions over an llm client and a transcriber.
type Service struct {
	llm         Completer
	transcriber Transcriber
	cache       *stagecache.Cache
	logger      *slog.Logger
}

var _ Functions = (*Service)(nil)

// New builds the AI facade. cache may be nil.
func New(completer Completer, transcriber Transcriber, cache *stagecache.Cache, logger *slog.Logger) *Service {
	return &Service{
		llm:         completer,
		transcriber: transcriber,
		cache:       cache,
		logger:      logging.NewComponentLogger(logger, "ai"),
	}
}

// Transcribe delegates to the transcriber.
func (s *Service) Transcribe(ctx context.Context, videoPath string) ([]runspec.Caption, error) {
	if s.transcriber == nil {
		return nil, services.Wrap(services.ErrConfiguration, "ai", "transcribe", "no transcriber configured", nil)
	}
	return s.transcriber.Transcribe(ctx, videoPath)
}

// CleanText rewrites a caption block. A blank answer keeps the input.
func (s *Service) CleanText(ctx context.Context, text string, params runspec.Params) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if err := s.requireLLM("clean text"); err != nil {
		return "", err
	}
	cleaned, err := s.llm.CompleteText(ctx, params.Prompt(PromptCleanText, CleanTextPrompt), text)
	if err != nil {
		return "", err
	}
	if cleaned = strings.TrimSpace(cleaned); cleaned == "" {
		return text, nil
	}
	return cleaned, nil
}

// Title names the handout.
func (s *Service) Title(ctx context.Context, document string, params runspec.Params) (string, error) {
	if strings.TrimSpace(document) == "" {
		return "", errEmptyDocument
	}
	if err := s.requireLLM("title"); err != nil {
		return "", err
	}
	title, err := s.llm.CompleteText(ctx, params.Prompt(PromptTitle, TitlePrompt), document)
	if err != nil {
		return "", err
	}
	return cleanTitle(title), nil
}

// StudyTable builds the study table rows. scope is usually CacheScope.
func (s *Service) StudyTable(ctx context.Context, scope, document string, params runspec.Params) (StudyTable, error) {
	columns := params.Columns(DefaultColumnNames())
	cacheable := !params.HasOverride(PromptStudyTable) && len(params.StudyTableColumns) == 0

	var cached StudyTable
	if cacheable && s.cache.GetInto(ctx, scope, CacheStudyTable, &cached) && len(cached.Rows) > 0 {
		s.logCacheHit(CacheStudyTable)
		return cached, nil
	}
	if strings.TrimSpace(document) == "" {
		return StudyTable{}, errEmptyDocument
	}
	if err := s.requireLLM("study table"); err != nil {
		return StudyTable{}, err
	}

	system := params.Prompt(PromptStudyTable, StudyTablePrompt) + "\n\nColumns:\n" + describeColumns(columns)
	raw, err := s.llm.CompleteJSON(ctx, system, document)
	if err != nil {
		return StudyTable{}, err
	}
	var payload studyTablePayload
	if err := llm.DecodeLLMJSON(raw, &payload); err != nil {
		return StudyTable{}, fmt.Errorf("decode study table: %w", err)
	}
	table := StudyTable{Columns: columns}
	for _, row := range payload.Rows {
		normalized := make(map[string]string, len(columns))
		empty := true
		for _, col := range columns {
			value := strings.TrimSpace(row[col])
			normalized[col] = value
			if value != "" {
				empty = false
			}
		}
		if !empty {
			table.Rows = append(table.Rows, normalized)
		}
	}
	if len(table.Rows) == 0 {
		return StudyTable{}, errors.New("study table has no rows")
	}
	if cacheable {
		s.cache.Set(ctx, scope, CacheStudyTable, table)
	}
	return table, nil
}

// Quiz builds vignette questions grouped by learning objective.
func (s *Service) Quiz(ctx context.Context, scope, document string, params runspec.Params) (Quiz, error) {
	cacheable := !params.HasOverride(PromptQuiz)
	var cached Quiz
	if cacheable && s.cache.GetInto(ctx, scope, CacheQuiz, &cached) && cached.QuestionCount() > 0 {
		s.logCacheHit(CacheQuiz)
		return cached, nil
	}
	if strings.TrimSpace(document) == "" {
		return Quiz{}, errEmptyDocument
	}
	if err := s.requireLLM("quiz"); err != nil {
		return Quiz{}, err
	}
	raw, err := s.llm.CompleteJSON(ctx, params.Prompt(PromptQuiz, QuizPrompt), document)
	if err != nil {
		return Quiz{}, err
	}
	var payload Quiz
	if err := llm.DecodeLLMJSON(raw, &payload); err != nil {
		return Quiz{}, fmt.Errorf("decode quiz: %w", err)
	}
	quiz := Quiz{}
	for _, obj := range payload.Objectives {
		obj.Objective = strings.TrimSpace(obj.Objective)
		if obj.Objective == "" || len(obj.Questions) == 0 {
			continue
		}
		for i := range obj.Questions {
			q := &obj.Questions[i]
			q.CorrectAnswer = strings.ToUpper(strings.TrimSpace(q.CorrectAnswer))
			if q.Number == 0 {
				q.Number = i + 1
			}
		}
		quiz.Objectives = append(quiz.Objectives, obj)
	}
	if quiz.QuestionCount() == 0 {
		return Quiz{}, errors.New("quiz has no questions")
	}
	if cacheable {
		s.cache.Set(ctx, scope, CacheQuiz, quiz)
	}
	return quiz, nil
}

// ConceptMap builds one or more Mermaid mindmaps.
func (s *Service) ConceptMap(ctx context.Context, scope, document string, params runspec.Params) ([]ConceptMap, error) {
	cacheable := !params.HasOverride(PromptConceptMap)
	var cached []ConceptMap
	if cacheable && s.cache.GetInto(ctx, scope, CacheConceptMap, &cached) && len(cached) > 0 {
		s.logCacheHit(CacheConceptMap)
		return cached, nil
	}
	if strings.TrimSpace(document) == "" {
		return nil, errEmptyDocument
	}
	if err := s.requireLLM("concept map"); err != nil {
		return nil, err
	}
	raw, err := s.llm.CompleteJSON(ctx, params.Prompt(PromptConceptMap, ConceptMapPrompt), document)
	if err != nil {
		return nil, err
	}
	var payload conceptMapPayload
	if err := llm.DecodeLLMJSON(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode concept map: %w", err)
	}
	var maps []ConceptMap
	for _, m := range payload.Mindmaps {
		m.Title = strings.TrimSpace(m.Title)
		m.Mermaid = strings.TrimSpace(m.Mermaid)
		if m.Mermaid == "" {
			continue
		}
		maps = append(maps, m)
	}
	if len(maps) == 0 {
		return nil, errors.New("concept map response has no diagrams")
	}
	if cacheable {
		s.cache.Set(ctx, scope, CacheConceptMap, maps)
	}
	return maps, nil
}

func (s *Service) requireLLM(op string) error {
	if s.llm == nil {
		return services.Wrap(services.ErrConfiguration, "ai", op, "no llm client configured", nil)
	}
	return nil
}

func (s *Service) logCacheHit(stage string) {
	s.logger.Debug("ai result served from cache",
		logging.String(logging.FieldEventType, "cache_hit"),
		logging.String(logging.FieldStage, stage),
	)
}

func describeColumns(columns []string) string {
	descriptions := make(map[string]string, len(DefaultColumns))
	for _, col := range DefaultColumns {
		descriptions[col.Name] = col.Description
	}
	var b strings.Builder
	for _, name := range columns {
		b.WriteString("- ")
		b.WriteString(name)
		if desc := descriptions[name]; desc != "" {
			b.WriteString(": ")
			b.WriteString(desc)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	title = strings.Trim(title, "\"'`*# ")
	title = strings.TrimRight(title, ".")
	return strings.TrimSpace(title)
}
