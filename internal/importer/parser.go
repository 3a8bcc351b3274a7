package importer

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// headerMarker identifies the header row: the first row containing a cell
// whose text includes this literal is the header, everything above it is
// preamble (precondition blob, titles) and gets discarded.
const headerMarker = "Case ID"

// ErrNoHeader is returned when no sheet in the workbook contains a header
// row at all.
var ErrNoHeader = errors.New("no header row found in any sheet")

// Row is one normalized test-case row extracted from a workbook. Blank
// cells are empty strings, all values are trimmed.
type Row struct {
	Sheet          string
	CaseID         string
	TestItem       string
	TestPurpose    string
	Preconditions  string
	TestSteps      string
	ExpectedResult string
	ActualResult   string
	Status         string
	Tags           string
	Notes          string
	Reference      string
}

// ParseResult is the output of parsing one workbook.
type ParseResult struct {
	Rows []Row

	// PreconditionKey/PreconditionText carry the global precondition block
	// found in cell (0,0) of the first non-empty sheet, if any. The key is
	// either the declared product type or derived from the filename for
	// filename-keyed product families.
	PreconditionKey  string
	PreconditionText string
}

// Canonical column keys. Sheet headers vary across product families and
// languages, so each canonical column accepts several header spellings.
const (
	colCaseID         = "case_id"
	colTestItem       = "test_item"
	colTestPurpose    = "test_purpose"
	colPreconditions  = "preconditions"
	colTestSteps      = "test_steps"
	colExpectedResult = "expected_result"
	colActualResult   = "actual_result"
	colStatus         = "status"
	colTags           = "tags"
	colNotes          = "notes"
	colReference      = "reference"
)

var columnSynonyms = map[string]string{
	"case id":         colCaseID,
	"test item":       colTestItem,
	"測試項目":            colTestItem,
	"test purpose":    colTestPurpose,
	"測試目的":            colTestPurpose,
	"preconditions":   colPreconditions,
	"precondition":    colPreconditions,
	"前置條件":            colPreconditions,
	"test steps":      colTestSteps,
	"測試步驟":            colTestSteps,
	"expected result": colExpectedResult,
	"預期結果":            colExpectedResult,
	"actual result":   colActualResult,
	"實際結果":            colActualResult,
	"status":          colStatus,
	"狀態":              colStatus,
	"tags":            colTags,
	"標籤":              colTags,
	"notes":           colNotes,
	"備註":              colNotes,
	"reference":       colReference,
	"參考資料":            colReference,
}

// filenameKeyPattern matches filenames that embed a precondition key, e.g.
// "Spec-104" or "Tests_217": a word followed by a separator and 3+ digits.
var filenameKeyPattern = regexp.MustCompile(`([A-Za-z]+)[-_ ](\d{3,})`)

// DeriveFilenameKey extracts the precondition key embedded in a filename.
// Returns false when the filename does not match the pattern.
func DeriveFilenameKey(filename string) (string, bool) {
	m := filenameKeyPattern.FindStringSubmatch(filename)
	if m == nil {
		return "", false
	}
	return m[1] + "-" + m[2], true
}

// ParseWorkbook reads an xlsx workbook and extracts normalized rows from
// every sheet that has a header row. filenameKeyed selects how the global
// precondition key is derived for the workbook.
func ParseWorkbook(r io.Reader, productType, filename string, filenameKeyed bool) (*ParseResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("unreadable workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	result := &ParseResult{}
	headerFound := false
	preconditionTaken := false

	for _, sheet := range f.GetSheetList() {
		grid, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if gridEmpty(grid) {
			continue
		}

		headerIdx, header := findHeaderRow(grid)

		// The first non-empty sheet may carry a global precondition block
		// in its top-left cell, above the header row.
		if !preconditionTaken {
			preconditionTaken = true
			key := productType
			if filenameKeyed {
				if derived, ok := DeriveFilenameKey(filename); ok {
					key = derived
				}
			}
			if headerIdx != 0 && len(grid) > 0 && len(grid[0]) > 0 {
				if text := strings.TrimSpace(grid[0][0]); text != "" {
					result.PreconditionKey = key
					result.PreconditionText = text
				}
			}
		}

		if headerIdx < 0 {
			// No header in this sheet: contributes zero rows. Only an
			// error if the whole workbook has none.
			continue
		}
		headerFound = true

		if err := checkRequiredColumns(sheet, header); err != nil {
			return nil, err
		}

		for _, cells := range grid[headerIdx+1:] {
			result.Rows = append(result.Rows, buildRow(sheet, header, cells))
		}
	}

	if !headerFound {
		return nil, ErrNoHeader
	}
	return result, nil
}

func gridEmpty(grid [][]string) bool {
	for _, row := range grid {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				return false
			}
		}
	}
	return true
}

// findHeaderRow scans top-to-bottom, left-to-right for the first cell
// containing the header marker. It returns the row index and the canonical
// column key per cell position ("" for unrecognized columns).
func findHeaderRow(grid [][]string) (int, []string) {
	for i, cells := range grid {
		for _, cell := range cells {
			if strings.Contains(cell, headerMarker) {
				header := make([]string, len(cells))
				for j, name := range cells {
					header[j] = canonicalColumn(name)
				}
				return i, header
			}
		}
	}
	return -1, nil
}

func canonicalColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := columnSynonyms[name]; ok {
		return canonical
	}
	return ""
}

func checkRequiredColumns(sheet string, header []string) error {
	required := map[string]string{
		colCaseID:   headerMarker,
		colTestItem: "Test Item",
	}
	for _, col := range header {
		delete(required, col)
	}
	for _, display := range required {
		return fmt.Errorf("sheet %q: missing required column %q", sheet, display)
	}
	return nil
}

func buildRow(sheet string, header, cells []string) Row {
	row := Row{Sheet: sheet}
	for j, col := range header {
		if col == "" || j >= len(cells) {
			continue
		}
		value := strings.TrimSpace(cells[j])
		switch col {
		case colCaseID:
			row.CaseID = value
		case colTestItem:
			row.TestItem = value
		case colTestPurpose:
			row.TestPurpose = value
		case colPreconditions:
			row.Preconditions = value
		case colTestSteps:
			row.TestSteps = value
		case colExpectedResult:
			row.ExpectedResult = value
		case colActualResult:
			row.ActualResult = value
		case colStatus:
			row.Status = value
		case colTags:
			row.Tags = value
		case colNotes:
			row.Notes = value
		case colReference:
			row.Reference = value
		}
	}
	return row
}
