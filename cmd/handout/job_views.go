package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"handout/internal/api"
)

func buildJobListRows(jobs []api.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			shortID(job.ID),
			displayTitle(job),
			job.Status,
			progressCell(job),
			formatCreated(job.CreatedAt),
		})
	}
	return rows
}

func renderJobDetails(job api.Job) string {
	pairs := [][2]string{
		{"ID", job.ID},
		{"Title", job.Title},
		{"Status", job.Status},
		{"Source", fmt.Sprintf("%s (%s)", job.Source, job.SourceKind)},
		{"Source ID", job.SourceID},
		{"Progress", progressCell(job)},
		{"Features", strings.Join(job.Features, ", ")},
		{"Slides", countCell(job.SlideCount)},
		{"Captions", countCell(job.CaptionCount)},
		{"Pages", countCell(job.DocumentPages)},
		{"Error", job.ErrorMessage},
		{"Created", job.CreatedAt},
		{"Started", job.StartedAt},
		{"Finished", job.FinishedAt},
	}
	keys := make([]string, 0, len(job.Outputs))
	for key := range job.Outputs {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		pairs = append(pairs, [2]string{"Output " + key, job.Outputs[key]})
	}
	return renderDetails(pairs)
}

func displayTitle(job api.Job) string {
	if strings.TrimSpace(job.Title) != "" {
		return job.Title
	}
	return truncate(job.Source, 48)
}

func progressCell(job api.Job) string {
	if job.Progress.Stage == "" {
		return fmt.Sprintf("%.0f%%", job.Progress.Percent)
	}
	return fmt.Sprintf("%.0f%% %s", job.Progress.Percent, job.Progress.Stage)
}

func countCell(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprint(n)
}

func formatCreated(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return value
	}
	return t.Local().Format(time.DateTime)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
