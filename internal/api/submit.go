package api

import (
	"maps"
	"slices"
	"strings"

	"handout/internal/config"
	"handout/internal/runspec"
	"handout/internal/services"
)

// NewSubmitRequest builds a request for free-form source input, inferring the
// source kind the same way the CLI does.
func NewSubmitRequest(input string) SubmitRequest {
	source := runspec.InferSource(input)
	return SubmitRequest{Source: SubmitSource{
		Kind: string(source.Kind),
		Path: source.Path,
		URL:  source.URL,
	}}
}

// Run validates the request and builds a pending run envelope. Feature
// toggles left nil fall back to defaults.
func (r SubmitRequest) Run(defaults config.Artifacts) (runspec.Run, error) {
	source, err := r.Source.resolve()
	if err != nil {
		return runspec.Run{}, err
	}
	if err := source.Validate(); err != nil {
		return runspec.Run{}, err
	}
	features := runspec.Features{
		StudyTable: pick(r.StudyTable, defaults.StudyTable),
		Quiz:       pick(r.Quiz, defaults.Quiz),
		ConceptMap: pick(r.ConceptMap, defaults.ConceptMap),
		Refine:     pick(r.Refine, defaults.Refine),
	}
	params := runspec.Params{
		Prompts:           cleanPrompts(r.Prompts),
		StudyTableColumns: slices.Clone(r.StudyTableColumns),
	}
	return runspec.New("", source, features, params), nil
}

func (s SubmitSource) resolve() (runspec.Source, error) {
	switch runspec.SourceKind(strings.TrimSpace(s.Kind)) {
	case "":
		input := strings.TrimSpace(s.URL)
		if input == "" {
			input = strings.TrimSpace(s.Path)
		}
		if input == "" {
			return runspec.Source{}, services.Wrap(services.ErrValidation, "", "submit", "source path or url is required", nil)
		}
		return runspec.InferSource(input), nil
	case runspec.KindDirectFile:
		return runspec.DirectFile(s.Path), nil
	case runspec.KindRemoteURL:
		return runspec.RemoteURL(s.URL), nil
	case runspec.KindSegmentedStream:
		return runspec.SegmentedStream(s.URL), nil
	case runspec.KindAuthenticatedStream:
		return runspec.AuthenticatedStream(s.BaseURL, s.Credential, s.DeliveryID), nil
	default:
		return runspec.Source{}, services.Wrap(services.ErrValidation, "", "submit", "unknown source kind "+s.Kind, nil)
	}
}

func pick(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func cleanPrompts(prompts map[string]string) map[string]string {
	out := maps.Clone(prompts)
	maps.DeleteFunc(out, func(_, v string) bool { return strings.TrimSpace(v) == "" })
	if len(out) == 0 {
		return nil
	}
	return out
}
