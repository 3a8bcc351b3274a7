package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"testcase-management-service/internal/models"
	"testcase-management-service/internal/repository"
	"testcase-management-service/internal/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.TestCase{},
		&models.Tag{},
		&models.Attachment{},
	)
	require.NoError(t, err)

	return db
}

func setupService(t *testing.T, db *gorm.DB, rulesJSON string) (CaseService, string) {
	t.Helper()
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "category_rules.json")
	if rulesJSON != "" {
		require.NoError(t, os.WriteFile(rulesPath, []byte(rulesJSON), 0644))
	}
	attachmentDir := filepath.Join(dir, "attachments")

	svc := NewCaseService(
		db,
		repository.NewTestCaseRepository(db),
		repository.NewTagRepository(db),
		repository.NewAttachmentRepository(db),
		rules.NewStore(rulesPath, nil),
		attachmentDir,
		nil,
	)
	return svc, attachmentDir
}

const loginRules = `{
	"mail gateway": [
		{"keywords": ["login"], "main_category": "UI", "sub_category": "Auth"}
	]
}`

// TestCaseService_CreateClassifiesAndTags
func TestCaseService_CreateClassifiesAndTags(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := setupService(t, db, loginRules)

	tc, err := svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway",
		Category:    "Login",
		CaseID:      "TC-001",
		TestItem:    "user login flow",
		Tags:        "Smoke, smoke, UI",
	})
	require.NoError(t, err)

	assert.Equal(t, "UI", tc.MainCategory)
	assert.Equal(t, "Auth", tc.SubCategory)
	assert.Equal(t, models.StatusNotRun, tc.Status)
	assert.ElementsMatch(t, []string{"smoke", "ui"}, tc.TagNames())
}

// TestCaseService_UpdateReclassifies: a full edit replaces the classifiable
// fields and re-runs classification.
func TestCaseService_UpdateReclassifies(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := setupService(t, db, loginRules)

	tc, err := svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway", Category: "Misc",
		CaseID: "TC-001", TestItem: "print report",
	})
	require.NoError(t, err)
	assert.Equal(t, models.FallbackMainCategory, tc.MainCategory)

	updated, err := svc.UpdateCase(tc.ID, &CaseRequest{
		ProductType: "mail gateway", Category: "Misc",
		CaseID: "TC-001", TestItem: "login button works",
		Tags: "regression",
	})
	require.NoError(t, err)
	assert.Equal(t, "UI", updated.MainCategory)
	assert.Equal(t, "Auth", updated.SubCategory)
	assert.Equal(t, []string{"regression"}, updated.TagNames())
}

// TestCaseService_DeleteCascades: deleting a case removes its attachment
// records and backing files but keeps tags shared with other cases.
func TestCaseService_DeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	svc, attachmentDir := setupService(t, db, "")

	tc, err := svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway", Category: "Login",
		CaseID: "TC-001", TestItem: "to delete", Tags: "shared",
	})
	require.NoError(t, err)
	other, err := svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway", Category: "Login",
		CaseID: "TC-002", TestItem: "survivor", Tags: "shared",
	})
	require.NoError(t, err)

	a1, err := svc.SaveAttachment(tc.ID, "screenshot.png", strings.NewReader("png bytes"))
	require.NoError(t, err)
	a2, err := svc.SaveAttachment(tc.ID, "log.txt", strings.NewReader("log bytes"))
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(attachmentDir, a1.StoragePath))
	require.FileExists(t, filepath.Join(attachmentDir, a2.StoragePath))

	require.NoError(t, svc.DeleteCase(tc.ID))

	var attachCount int64
	require.NoError(t, db.Model(&models.Attachment{}).Count(&attachCount).Error)
	assert.EqualValues(t, 0, attachCount)
	assert.NoFileExists(t, filepath.Join(attachmentDir, a1.StoragePath))
	assert.NoFileExists(t, filepath.Join(attachmentDir, a2.StoragePath))

	// The shared tag row survives and stays attached to the other case
	var tagCount int64
	require.NoError(t, db.Model(&models.Tag{}).Count(&tagCount).Error)
	assert.EqualValues(t, 1, tagCount)

	survivor, err := svc.GetCase(other.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, survivor.TagNames())
}

// TestCaseService_AttachmentStoragePathsUnique: the same display filename
// uploaded twice lands under two distinct storage paths.
func TestCaseService_AttachmentStoragePathsUnique(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := setupService(t, db, "")

	tc, err := svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway", Category: "Login",
		CaseID: "TC-001", TestItem: "item",
	})
	require.NoError(t, err)

	a1, err := svc.SaveAttachment(tc.ID, "evidence.png", strings.NewReader("one"))
	require.NoError(t, err)
	a2, err := svc.SaveAttachment(tc.ID, "evidence.png", strings.NewReader("two"))
	require.NoError(t, err)

	assert.Equal(t, "evidence.png", a1.Filename)
	assert.Equal(t, "evidence.png", a2.Filename)
	assert.NotEqual(t, a1.StoragePath, a2.StoragePath)
}

// TestCaseService_DeleteAttachmentMissingFile: a missing backing file is
// logged and skipped, the record still goes away.
func TestCaseService_DeleteAttachmentMissingFile(t *testing.T) {
	db := setupTestDB(t)
	svc, attachmentDir := setupService(t, db, "")

	tc, err := svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway", Category: "Login",
		CaseID: "TC-001", TestItem: "item",
	})
	require.NoError(t, err)

	a, err := svc.SaveAttachment(tc.ID, "gone.txt", strings.NewReader("bytes"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(attachmentDir, a.StoragePath)))

	require.NoError(t, svc.DeleteAttachment(a.ID))

	var count int64
	require.NoError(t, db.Model(&models.Attachment{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

// TestCaseService_BulkAddTag
func TestCaseService_BulkAddTag(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := setupService(t, db, "")

	first, err := svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway", Category: "Login",
		CaseID: "TC-001", TestItem: "one", Tags: "release-1",
	})
	require.NoError(t, err)
	second, err := svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway", Category: "Login",
		CaseID: "TC-002", TestItem: "two",
	})
	require.NoError(t, err)

	tagged, err := svc.BulkAddTag([]uint{first.ID, second.ID}, "Release-1")
	require.NoError(t, err)
	assert.Equal(t, 2, tagged)

	// No duplicate tag row, both cases carry it
	var tagCount int64
	require.NoError(t, db.Model(&models.Tag{}).Count(&tagCount).Error)
	assert.EqualValues(t, 1, tagCount)

	reloaded, err := svc.GetCase(first.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"release-1"}, reloaded.TagNames())
}

// TestCaseService_RemoveTag detaches the tag without deleting the row
func TestCaseService_RemoveTag(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := setupService(t, db, "")

	tc, err := svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway", Category: "Login",
		CaseID: "TC-001", TestItem: "one", Tags: "keep, drop",
	})
	require.NoError(t, err)

	reloaded, err := svc.RemoveTag(tc.ID, "drop")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, reloaded.TagNames())

	// Orphan tags are acceptable, the row is not removed
	var tagCount int64
	require.NoError(t, db.Model(&models.Tag{}).Count(&tagCount).Error)
	assert.EqualValues(t, 2, tagCount)
}

// TestCaseService_CategoryTree
func TestCaseService_CategoryTree(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := setupService(t, db, loginRules)

	_, err := svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway", Category: "Login",
		CaseID: "TC-001", TestItem: "user login flow",
	})
	require.NoError(t, err)
	_, err = svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway", Category: "Misc",
		CaseID: "TC-002", TestItem: "print report",
	})
	require.NoError(t, err)

	tree, err := svc.CategoryTree()
	require.NoError(t, err)

	require.Contains(t, tree, "mail gateway")
	assert.Contains(t, tree["mail gateway"], "UI")
	assert.Equal(t, []string{"Auth"}, tree["mail gateway"]["UI"])
	assert.Contains(t, tree["mail gateway"], models.FallbackMainCategory)
}

// TestCaseService_ReclassifyAll only touches rows whose classification
// actually changed.
func TestCaseService_ReclassifyAll(t *testing.T) {
	db := setupTestDB(t)
	// Start with no rules: everything classifies to the fallback pair
	svc, _ := setupService(t, db, "")

	_, err := svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway", Category: "Login",
		CaseID: "TC-001", TestItem: "user login flow",
	})
	require.NoError(t, err)

	updated, total, err := svc.ReclassifyAll()
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, updated)

	// Second service over the same DB, now with rules
	svcWithRules, _ := setupService(t, db, loginRules)
	updated, total, err = svcWithRules.ReclassifyAll()
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, updated)

	var tc models.TestCase
	require.NoError(t, db.Where("case_id = ?", "TC-001").First(&tc).Error)
	assert.Equal(t, "UI", tc.MainCategory)
	assert.Equal(t, "Auth", tc.SubCategory)
}

// TestCaseService_UpdateStatusResult
func TestCaseService_UpdateStatusResult(t *testing.T) {
	db := setupTestDB(t)
	svc, _ := setupService(t, db, "")

	tc, err := svc.CreateCase(&CaseRequest{
		ProductType: "mail gateway", Category: "Login",
		CaseID: "TC-001", TestItem: "one",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateStatusResult(tc.ID, models.StatusFailed, "timeout at step 3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, updated.Status)
	assert.Equal(t, "timeout at step 3", updated.ActualResult)
}
