package repository

import (
	"testing"

	"testcase-management-service/internal/models"

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

// TestNormalizeTagNames covers trimming, lowercasing and dedupe
func TestNormalizeTagNames(t *testing.T) {
	assert.Equal(t, []string{"security", "perf"}, NormalizeTagNames("Security, security ,  PERF"))
	assert.Nil(t, NormalizeTagNames(""))
	assert.Nil(t, NormalizeTagNames(" , ,, "))
}

// TestTagRepository_Resolve creates missing tags and reuses existing ones
func TestTagRepository_Resolve(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTagRepository(db)

	tags, err := repo.Resolve(nil, "Security, security ,  PERF")
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "security", tags[0].Name)
	assert.Equal(t, "perf", tags[1].Name)

	// Resolving again returns the same rows, no duplicates
	again, err := repo.Resolve(nil, "PERF, Security")
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, tags[0].ID, again[1].ID)
	assert.Equal(t, tags[1].ID, again[0].ID)

	var count int64
	require.NoError(t, db.Model(&models.Tag{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

// TestTagRepository_ResolveInTransaction: staged tags are visible inside
// the same transaction before being attached to a case.
func TestTagRepository_ResolveInTransaction(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTagRepository(db)

	err := db.Transaction(func(tx *gorm.DB) error {
		tags, err := repo.Resolve(tx, "fresh")
		require.NoError(t, err)
		require.Len(t, tags, 1)
		require.NotZero(t, tags[0].ID)

		// Overlapping resolve inside the same transaction must not create
		// a duplicate row.
		again, err := repo.Resolve(tx, "Fresh, other")
		require.NoError(t, err)
		require.Len(t, again, 2)
		require.Equal(t, tags[0].ID, again[0].ID)

		tc := &models.TestCase{
			ProductType: "mail gateway", Category: "Cases",
			CaseID: "TC-001", TestItem: "tagged", Status: models.StatusNotRun,
			Tags: tags,
		}
		return tx.Create(tc).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Tag{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)

	var tc models.TestCase
	require.NoError(t, db.Preload("Tags").Where("case_id = ?", "TC-001").First(&tc).Error)
	assert.Equal(t, []string{"fresh"}, tc.TagNames())
}

// TestTagRepository_FindByName normalizes its input before lookup
func TestTagRepository_FindByName(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTagRepository(db)

	_, err := repo.Resolve(nil, "smoke")
	require.NoError(t, err)

	tag, err := repo.FindByName("  SMOKE ")
	require.NoError(t, err)
	require.NotNil(t, tag)
	assert.Equal(t, "smoke", tag.Name)

	missing, err := repo.FindByName("absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
