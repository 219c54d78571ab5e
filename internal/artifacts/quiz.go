package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"

	"handout/internal/ai"
)

// WriteQuiz renders the vignette questions to a PDF. Each learning objective
// is followed by its answer key.
func WriteQuiz(path, title string, quiz ai.Quiz) error {
	if quiz.QuestionCount() == 0 {
		return fmt.Errorf("quiz has no questions")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure quiz directory: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	heading := strings.TrimSpace(title + " - Vignette Questions")
	pdf.SetTitle(heading, true)
	pdf.SetCreator("handout", false)
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, tr(heading), "", "C", false)
	pdf.Ln(6)

	for i, obj := range quiz.Objectives {
		if i > 0 {
			pdf.AddPage()
		}
		pdf.SetFont("Helvetica", "B", 14)
		pdf.MultiCell(0, 7, tr(fmt.Sprintf("Learning Objective %d: %s", i+1, obj.Objective)), "", "L", false)
		pdf.Ln(3)

		for _, q := range obj.Questions {
			pdf.SetFont("Helvetica", "B", 11)
			label := fmt.Sprintf("Question %d", q.Number)
			if d := strings.TrimSpace(q.Difficulty); d != "" {
				label += " (" + d + ")"
			}
			pdf.MultiCell(0, 6, tr(label), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
			if v := strings.TrimSpace(q.Vignette); v != "" {
				pdf.MultiCell(0, 5.5, tr(v), "", "L", false)
				pdf.Ln(1)
			}
			pdf.SetFont("Helvetica", "B", 11)
			pdf.MultiCell(0, 5.5, tr(q.Question), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
			for _, letter := range ai.ChoiceLetters {
				choice, ok := q.Choices[letter]
				if !ok {
					continue
				}
				pdf.SetX(24)
				pdf.MultiCell(0, 5.5, tr(letter+". "+choice), "", "L", false)
			}
			pdf.Ln(4)
		}

		pdf.SetFont("Helvetica", "B", 12)
		pdf.MultiCell(0, 6, "Answer Key", "B", "L", false)
		pdf.Ln(2)
		for _, q := range obj.Questions {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("%d. %s", q.Number, q.CorrectAnswer)), "", "L", false)
			if e := strings.TrimSpace(q.Explanation); e != "" {
				pdf.SetFont("Helvetica", "", 10)
				pdf.MultiCell(0, 5, tr(e), "", "L", false)
			}
			pdf.Ln(2)
		}
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write quiz pdf: %w", err)
	}
	return nil
}
