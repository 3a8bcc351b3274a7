package importer

import (
	"fmt"
	"sort"
	"strings"

	"testcase-management-service/internal/models"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "TestCases"

// exportColumns is the fixed column order of the generated workbook. The
// header names round-trip through ParseWorkbook.
var exportColumns = []string{
	"Case ID",
	"Product Type",
	"Main Category",
	"Sub Category",
	"Test Item",
	"Test Purpose",
	"Preconditions",
	"Test Steps",
	"Expected Result",
	"Actual Result",
	"Status",
	"Tags",
	"Notes",
	"Reference",
}

// Export generates a single-sheet workbook with one row per test case,
// column widths sized to content. The caller owns closing the file.
func Export(cases []models.TestCase) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	widths := make([]int, len(exportColumns))
	writeRow := func(rowIdx int, values []string) error {
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(exportSheet, cell, value); err != nil {
				return err
			}
			if w := cellWidth(value); w > widths[col] {
				widths[col] = w
			}
		}
		return nil
	}

	if err := writeRow(1, exportColumns); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, tc := range cases {
		values := []string{
			tc.CaseID,
			tc.ProductType,
			displayCategory(tc.MainCategory),
			tc.SubCategory,
			tc.TestItem,
			tc.TestPurpose,
			tc.Preconditions,
			tc.TestSteps,
			tc.ExpectedResult,
			tc.ActualResult,
			tc.Status,
			joinTags(tc.Tags),
			tc.Notes,
			tc.Reference,
		}
		if err := writeRow(i+2, values); err != nil {
			return nil, fmt.Errorf("failed to write case %q: %w", tc.CaseID, err)
		}
	}

	for col, w := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(exportSheet, name, name, float64(w)); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// displayCategory cleans the main category for display: the internal
// fallback placeholder renders as an empty cell.
func displayCategory(category string) string {
	if category == models.FallbackMainCategory {
		return ""
	}
	return category
}

func joinTags(tags []models.Tag) string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// cellWidth approximates a column width from content length, clamped so a
// long steps cell does not blow the sheet out.
func cellWidth(value string) int {
	longest := 0
	for _, line := range strings.Split(value, "\n") {
		if n := len([]rune(line)); n > longest {
			longest = n
		}
	}
	w := longest + 2
	if w < 10 {
		w = 10
	}
	if w > 60 {
		w = 60
	}
	return w
}
