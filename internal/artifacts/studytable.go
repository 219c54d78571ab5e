package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"handout/internal/ai"
)

const (
	studyTableSheet  = "Study Table"
	headerFill       = "D3D3D3"
	cellFill         = "ADD8E6"
	sectionFill      = "6CB4E8"
	maxColumnWidth   = 50
	columnWidthSlack = 2
)

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

func thinBorder() []excelize.Border {
	var borders []excelize.Border
	for _, side := range []string{"left", "right", "top", "bottom"} {
		borders = append(borders, excelize.Border{Type: side, Color: "000000", Style: 1})
	}
	return borders
}

// WriteStudyTable saves table as an xlsx workbook. Section header rows are
// merged across every column.
func WriteStudyTable(path string, table ai.StudyTable) error {
	if len(table.Columns) == 0 {
		return fmt.Errorf("study table has no columns")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure study table directory: %w", err)
	}
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", studyTableSheet); err != nil {
		return err
	}

	wrap := &excelize.Alignment{WrapText: true, Vertical: "top"}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
		Alignment: wrap,
		Border:    thinBorder(),
	})
	if err != nil {
		return err
	}
	cellStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{cellFill}},
		Alignment: wrap,
		Border:    thinBorder(),
	})
	if err != nil {
		return err
	}
	sectionStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{sectionFill}},
		Border: thinBorder(),
	})
	if err != nil {
		return err
	}

	ncols := len(table.Columns)
	widths := make([]int, ncols)
	for i, col := range table.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(studyTableSheet, cell, col); err != nil {
			return err
		}
		widths[i] = utf8.RuneCountInString(col)
	}
	first, _ := excelize.CoordinatesToCellName(1, 1)
	last, _ := excelize.CoordinatesToCellName(ncols, 1)
	if err := f.SetCellStyle(studyTableSheet, first, last, headerStyle); err != nil {
		return err
	}

	for r, row := range table.Rows {
		rowNum := r + 2
		first, _ := excelize.CoordinatesToCellName(1, rowNum)
		last, _ := excelize.CoordinatesToCellName(ncols, rowNum)
		if title, ok := table.SectionTitle(row); ok {
			if err := f.SetCellValue(studyTableSheet, first, title); err != nil {
				return err
			}
			if ncols > 1 {
				if err := f.MergeCell(studyTableSheet, first, last); err != nil {
					return err
				}
			}
			if err := f.SetCellStyle(studyTableSheet, first, last, sectionStyle); err != nil {
				return err
			}
			widths[0] = max(widths[0], utf8.RuneCountInString(title))
			continue
		}
		for c, col := range table.Columns {
			cell, _ := excelize.CoordinatesToCellName(c+1, rowNum)
			value := row[col]
			if runs := richText(value); runs != nil {
				err = f.SetCellRichText(studyTableSheet, cell, runs)
			} else {
				err = f.SetCellValue(studyTableSheet, cell, value)
			}
			if err != nil {
				return err
			}
			widths[c] = max(widths[c], utf8.RuneCountInString(boldPattern.ReplaceAllString(value, "$1")))
		}
		if err := f.SetCellStyle(studyTableSheet, first, last, cellStyle); err != nil {
			return err
		}
	}

	for i, w := range widths {
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(studyTableSheet, name, name, float64(ColumnWidth(w))); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// ColumnWidth is the spreadsheet width for the longest value in a column.
func ColumnWidth(maxLen int) int {
	return min(maxLen+columnWidthSlack, maxColumnWidth)
}

// richText splits **bold** markdown into runs. It returns nil when the value
// has no bold markers.
func richText(value string) []excelize.RichTextRun {
	matches := boldPattern.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return nil
	}
	var runs []excelize.RichTextRun
	last := 0
	for _, m := range matches {
		if m[0] > last {
			runs = append(runs, excelize.RichTextRun{Text: value[last:m[0]]})
		}
		runs = append(runs, excelize.RichTextRun{Text: value[m[2]:m[3]], Font: &excelize.Font{Bold: true}})
		last = m[1]
	}
	if rest := value[last:]; rest != "" {
		runs = append(runs, excelize.RichTextRun{Text: rest})
	}
	return runs
}
