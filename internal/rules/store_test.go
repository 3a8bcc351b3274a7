package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRuleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "category_rules.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestStore_LoadStructuredRules tests the structured rule-list shape
func TestStore_LoadStructuredRules(t *testing.T) {
	path := writeRuleFile(t, `{
		"mail gateway": [
			{"keywords": ["login"], "main_category": "UI", "sub_category": "Auth"},
			{"keywords": ["smtp", "relay"], "main_category": "Delivery", "sub_category": "Transport"}
		]
	}`)

	rs := NewStore(path, nil).Load()

	pr := rs.RulesFor("mail gateway")
	require.NotNil(t, pr)
	assert.False(t, pr.IsFlagList())
	require.Len(t, pr.Structured, 2)
	assert.Equal(t, []string{"login"}, pr.Structured[0].Keywords)
	assert.Equal(t, "UI", pr.Structured[0].MainCategory)
	assert.Equal(t, "Auth", pr.Structured[0].SubCategory)
	assert.Equal(t, "Delivery", pr.Structured[1].MainCategory)

	assert.Nil(t, rs.RulesFor("unknown product"))
}

// TestStore_LoadFlagRules tests the flat keyword-list shape
func TestStore_LoadFlagRules(t *testing.T) {
	path := writeRuleFile(t, `{"audit flags": ["compliance", "gdpr"]}`)

	rs := NewStore(path, nil).Load()

	pr := rs.RulesFor("audit flags")
	require.NotNil(t, pr)
	assert.True(t, pr.IsFlagList())
	assert.Equal(t, []string{"compliance", "gdpr"}, pr.Flags)
}

// TestStore_LoadGlobalPreconditions tests the reserved preconditions key
func TestStore_LoadGlobalPreconditions(t *testing.T) {
	path := writeRuleFile(t, `{
		"global_preconditions": {"mail gateway": "appliance reachable"}
	}`)

	rs := NewStore(path, nil).Load()

	assert.Equal(t, "appliance reachable", rs.Precondition("mail gateway"))
	assert.Equal(t, "", rs.Precondition("mail archive"))
}

// TestStore_MissingFile degrades to an empty ruleset instead of failing
func TestStore_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")

	rs := NewStore(path, nil).Load()

	require.NotNil(t, rs)
	assert.Empty(t, rs.Products)
	assert.Empty(t, rs.GlobalPreconditions)
}

// TestStore_MalformedFile degrades to an empty ruleset instead of failing
func TestStore_MalformedFile(t *testing.T) {
	path := writeRuleFile(t, `{"mail gateway": [{"keywords": broken`)

	rs := NewStore(path, nil).Load()

	require.NotNil(t, rs)
	assert.Empty(t, rs.Products)
}

// TestStore_UpdateGlobalPrecondition is a read-modify-write of the whole file
func TestStore_UpdateGlobalPrecondition(t *testing.T) {
	path := writeRuleFile(t, `{
		"mail gateway": [{"keywords": ["login"], "main_category": "UI", "sub_category": "Auth"}],
		"audit flags": ["compliance"],
		"global_preconditions": {"mail gateway": "old text"}
	}`)
	store := NewStore(path, nil)

	require.NoError(t, store.UpdateGlobalPrecondition("mail gateway", "  new text  "))
	require.NoError(t, store.UpdateGlobalPrecondition("Spec-104", "derived key text"))

	rs := store.Load()
	// Preconditions updated and inserted, text trimmed
	assert.Equal(t, "new text", rs.Precondition("mail gateway"))
	assert.Equal(t, "derived key text", rs.Precondition("Spec-104"))

	// Both rule shapes survive the rewrite
	pr := rs.RulesFor("mail gateway")
	require.NotNil(t, pr)
	require.Len(t, pr.Structured, 1)
	assert.Equal(t, "UI", pr.Structured[0].MainCategory)
	flags := rs.RulesFor("audit flags")
	require.NotNil(t, flags)
	assert.Equal(t, []string{"compliance"}, flags.Flags)
}

// TestStore_UpdateGlobalPrecondition_EmptyText is a no-op
func TestStore_UpdateGlobalPrecondition_EmptyText(t *testing.T) {
	path := writeRuleFile(t, `{"global_preconditions": {"mail gateway": "keep me"}}`)
	store := NewStore(path, nil)

	require.NoError(t, store.UpdateGlobalPrecondition("mail gateway", "   "))

	assert.Equal(t, "keep me", store.Load().Precondition("mail gateway"))
}
