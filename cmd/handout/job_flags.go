package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"handout/internal/api"
	"handout/internal/runspec"
)

// jobFlags holds the submission options shared by run and submit.
type jobFlags struct {
	kind       string
	baseURL    string
	credential string
	deliveryID string

	studyTable bool
	quiz       bool
	conceptMap bool
	refine     bool

	prompts []string
	columns []string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.kind, "kind", "", "Source kind: direct_file, remote_url, segmented_stream or authenticated_stream (inferred when empty)")
	flags.StringVar(&f.baseURL, "base-url", "", "Platform base URL for authenticated streams")
	flags.StringVar(&f.credential, "credential", "", "Platform credential for authenticated streams")
	flags.StringVar(&f.deliveryID, "delivery-id", "", "Platform delivery id for authenticated streams")
	flags.BoolVar(&f.studyTable, "study-table", false, "Generate a study table")
	flags.BoolVar(&f.quiz, "quiz", false, "Generate a quiz")
	flags.BoolVar(&f.conceptMap, "concept-map", false, "Generate concept maps")
	flags.BoolVar(&f.refine, "refine", false, "Clean slide text with the LLM before rendering")
	flags.StringArrayVar(&f.prompts, "prompt", nil, "Prompt override as name=text or name=@file (repeatable)")
	flags.StringSliceVar(&f.columns, "column", nil, "Custom study table column (repeatable)")
}

// request builds a submission. Feature flags the user did not set are left
// nil so the configured defaults apply.
func (f *jobFlags) request(cmd *cobra.Command, input string) (api.SubmitRequest, error) {
	req := api.NewSubmitRequest(input)
	if kind := strings.TrimSpace(f.kind); kind != "" {
		req.Source = api.SubmitSource{Kind: kind, Path: input, URL: input}
	}
	if f.deliveryID != "" || f.credential != "" || f.baseURL != "" {
		req.Source.Kind = string(runspec.KindAuthenticatedStream)
		req.Source.BaseURL = f.baseURL
		req.Source.Credential = f.credential
		req.Source.DeliveryID = f.deliveryID
	}

	flags := cmd.Flags()
	toggle := func(name string, value bool) *bool {
		if !flags.Changed(name) {
			return nil
		}
		return &value
	}
	req.StudyTable = toggle("study-table", f.studyTable)
	req.Quiz = toggle("quiz", f.quiz)
	req.ConceptMap = toggle("concept-map", f.conceptMap)
	req.Refine = toggle("refine", f.refine)
	req.StudyTableColumns = f.columns

	prompts, err := parsePrompts(f.prompts)
	if err != nil {
		return api.SubmitRequest{}, err
	}
	req.Prompts = prompts
	return req, nil
}

func parsePrompts(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	prompts := make(map[string]string, len(values))
	for _, value := range values {
		name, text, ok := strings.Cut(value, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --prompt %q: expected name=text", value)
		}
		if path, isFile := strings.CutPrefix(text, "@"); isFile {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read prompt %s: %w", name, err)
			}
			text = string(data)
		}
		prompts[name] = text
	}
	return prompts, nil
}
