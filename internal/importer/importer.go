package importer

import (
	"fmt"
	"io"
	"strings"

	"testcase-management-service/internal/classifier"
	"testcase-management-service/internal/config"
	"testcase-management-service/internal/logger"
	"testcase-management-service/internal/models"
	"testcase-management-service/internal/repository"
	"testcase-management-service/internal/rules"

	"gorm.io/gorm"
)

// Importer drives the import pipeline: parse -> dedupe by business key ->
// classify -> tag-resolve -> transactional commit. One call handles one
// workbook; a failure rolls the whole file back.
type Importer struct {
	db        *gorm.DB
	caseRepo  repository.TestCaseRepository
	tagRepo   repository.TagRepository
	ruleStore *rules.Store
	importCfg *config.ImportConfig
	log       *logger.Logger
}

// NewImporter 创建导入器
func NewImporter(
	db *gorm.DB,
	caseRepo repository.TestCaseRepository,
	tagRepo repository.TagRepository,
	ruleStore *rules.Store,
	importCfg *config.ImportConfig,
	log *logger.Logger,
) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{
		db:        db,
		caseRepo:  caseRepo,
		tagRepo:   tagRepo,
		ruleStore: ruleStore,
		importCfg: importCfg,
		log:       log,
	}
}

// FileResult is the outcome of importing one uploaded file.
type FileResult struct {
	Filename string `json:"filename"`
	Imported int    `json:"imported"`
	Error    string `json:"error,omitempty"`
}

// stagedCase pairs a record with its raw tag string; tags are resolved
// inside the commit transaction.
type stagedCase struct {
	testCase  *models.TestCase
	tagString string
}

// ImportFile imports one workbook and returns the number of newly staged
// rows. Rows whose business key is empty or already known (persisted, or
// staged earlier in the same file) are skipped silently. Imported rows
// always start in the "not run" status, regardless of any status column in
// the source.
func (im *Importer) ImportFile(r io.Reader, filename, productType string) (int, error) {
	if productType == "" {
		productType = models.DefaultProductType
	}
	filenameKeyed := im.importCfg.IsFilenameKeyed(productType)

	parsed, err := ParseWorkbook(r, productType, filename, filenameKeyed)
	if err != nil {
		return 0, fmt.Errorf("file %q: %w", filename, err)
	}

	if parsed.PreconditionText != "" {
		if err := im.ruleStore.UpdateGlobalPrecondition(parsed.PreconditionKey, parsed.PreconditionText); err != nil {
			// Losing the precondition text is not worth failing the whole
			// import over.
			im.log.Warn("failed to store global precondition",
				"file", filename, "key", parsed.PreconditionKey, "error", err)
		}
	}

	// Rules are reloaded per file so a ruleset edit takes effect on the
	// next upload without a restart.
	ruleSet := im.ruleStore.Load()

	// One snapshot of persisted business keys per file, not per row.
	seen, err := im.caseRepo.AllCaseIDs()
	if err != nil {
		return 0, fmt.Errorf("file %q: failed to snapshot existing case ids: %w", filename, err)
	}

	var staged []stagedCase
	for _, row := range parsed.Rows {
		caseID := strings.TrimSpace(row.CaseID)
		if caseID == "" {
			continue
		}
		if _, dup := seen[caseID]; dup {
			continue
		}

		mainCat, subCat := im.classifyRow(row, productType, filename, filenameKeyed, ruleSet)

		staged = append(staged, stagedCase{
			testCase: &models.TestCase{
				ProductType:    productType,
				Category:       row.Sheet,
				MainCategory:   mainCat,
				SubCategory:    subCat,
				CaseID:         caseID,
				TestItem:       row.TestItem,
				TestPurpose:    row.TestPurpose,
				Preconditions:  row.Preconditions,
				TestSteps:      row.TestSteps,
				ExpectedResult: row.ExpectedResult,
				ActualResult:   row.ActualResult,
				Status:         models.StatusNotRun,
				Notes:          row.Notes,
				Reference:      row.Reference,
			},
			tagString: row.Tags,
		})
		seen[caseID] = struct{}{}
	}

	if len(staged) == 0 {
		return 0, nil
	}

	err = im.db.Transaction(func(tx *gorm.DB) error {
		for _, sc := range staged {
			tags, err := im.tagRepo.Resolve(tx, sc.tagString)
			if err != nil {
				return fmt.Errorf("failed to resolve tags for %q: %w", sc.testCase.CaseID, err)
			}
			sc.testCase.Tags = tags
			if err := tx.Create(sc.testCase).Error; err != nil {
				return fmt.Errorf("failed to create case %q: %w", sc.testCase.CaseID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("file %q: %w", filename, err)
	}

	im.log.Info("imported workbook", "file", filename, "product", productType, "rows", len(staged))
	return len(staged), nil
}

// ImportFiles imports several uploads in one request. One bad file does not
// stop the rest; each file gets its own result entry.
func (im *Importer) ImportFiles(files []NamedReader, productType string) []FileResult {
	results := make([]FileResult, 0, len(files))
	for _, file := range files {
		count, err := im.ImportFile(file.Reader, file.Name, productType)
		result := FileResult{Filename: file.Name, Imported: count}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// NamedReader is one uploaded file.
type NamedReader struct {
	Name   string
	Reader io.Reader
}

// classifyRow picks the classification for one row. Filename-keyed product
// families bypass the keyword classifier: their main category is the key
// derived from the filename.
func (im *Importer) classifyRow(row Row, productType, filename string, filenameKeyed bool, rs *rules.RuleSet) (string, string) {
	if filenameKeyed {
		if key, ok := DeriveFilenameKey(filename); ok {
			return key, ""
		}
		return models.FallbackSubCategory, ""
	}
	return classifier.Classify(classifier.Fields{
		TestItem:       row.TestItem,
		TestPurpose:    row.TestPurpose,
		TestSteps:      row.TestSteps,
		ExpectedResult: row.ExpectedResult,
		Category:       row.Sheet,
	}, productType, rs)
}
