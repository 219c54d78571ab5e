package progress

import "handout/internal/stage"

// Stage weights sum to 1.0. Context assembly is folded into finalize.
var weights = map[string]float64{
	stage.Acquire:           0.15,
	stage.ExtractCaptions:   0.15,
	stage.DeduplicateFrames: 0.15,
	stage.RefineContent:     0.15,
	stage.RenderDocument:    0.10,
	stage.CompressDocument:  0.08,
	stage.FanOutArtifacts:   0.18,
	stage.Finalize:          0.04,
}

// Weight returns the share of overall progress owned by a stage. Unknown
// stages weigh nothing.
func Weight(name string) float64 {
	return weights[name]
}

// TotalWeight sums the configured stage weights.
func TotalWeight() float64 {
	total := 0.0
	for _, name := range stage.Ordered() {
		total += weights[name]
	}
	return total
}
