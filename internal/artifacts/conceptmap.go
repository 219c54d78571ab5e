package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"handout/internal/ai"
	"handout/internal/textutil"
)

// ConceptMapFileName names the i-th (zero based) map of a handout.
func ConceptMapFileName(base string, i int, title string) string {
	return fmt.Sprintf("%s - %s.mmd", base, textutil.SafeTitle(title, fmt.Sprintf("Mindmap %d", i+1)))
}

// ConceptMapKey is the output key of the i-th (zero based) map.
func ConceptMapKey(i int) string {
	if i == 0 {
		return KindConceptMap
	}
	return fmt.Sprintf("%s_%d", KindConceptMap, i+1)
}

// WriteConceptMaps saves each map's Mermaid source under dir and returns the
// paths in order. Maps without Mermaid source are skipped.
func WriteConceptMaps(dir, base string, maps []ai.ConceptMap) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure concept map directory: %w", err)
	}
	var paths []string
	for i, m := range maps {
		code := strings.TrimSpace(m.Mermaid)
		if code == "" {
			continue
		}
		path := filepath.Join(dir, ConceptMapFileName(base, i, m.Title))
		if err := os.WriteFile(path, []byte(code+"\n"), 0o644); err != nil {
			return paths, fmt.Errorf("write concept map: %w", err)
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no concept map had mermaid source")
	}
	return paths, nil
}
