package classifier

import (
	"strings"

	"testcase-management-service/internal/models"
	"testcase-management-service/internal/rules"
)

// Fields is the classifiable content of one test case. Missing fields are
// empty strings.
type Fields struct {
	TestItem       string
	TestPurpose    string
	TestSteps      string
	ExpectedResult string
	Category       string // raw sheet/source label
}

// Classify matches the case content against the product's rule list and
// returns the (main, sub) category pair. It never fails: an unknown
// product, an empty rule list, or no keyword hit all degrade to the
// fallback pair.
//
// Structured rules are walked in stored order and the first keyword found
// as a substring of the search text wins. Flag-style rule lists return
// (productType, "") on a hit and (productType, "unclassified") otherwise.
// Both keyword and text are case-folded before matching.
func Classify(f Fields, productType string, rs *rules.RuleSet) (string, string) {
	if rs == nil {
		return models.FallbackMainCategory, models.FallbackSubCategory
	}
	pr := rs.RulesFor(productType)
	if pr == nil || pr.Empty() {
		return models.FallbackMainCategory, models.FallbackSubCategory
	}

	text := searchText(f)

	if pr.IsFlagList() {
		for _, keyword := range pr.Flags {
			if keyword != "" && strings.Contains(text, strings.ToLower(keyword)) {
				return productType, ""
			}
		}
		return productType, models.FallbackSubCategory
	}

	for _, rule := range pr.Structured {
		for _, keyword := range rule.Keywords {
			if keyword != "" && strings.Contains(text, strings.ToLower(keyword)) {
				return rule.MainCategory, rule.SubCategory
			}
		}
	}
	return models.FallbackMainCategory, models.FallbackSubCategory
}

// searchText concatenates the classifiable fields in fixed order.
func searchText(f Fields) string {
	return strings.ToLower(strings.Join([]string{
		f.TestItem,
		f.TestPurpose,
		f.TestSteps,
		f.ExpectedResult,
		f.Category,
	}, " "))
}

// FieldsFromCase builds classification input from a persisted test case.
func FieldsFromCase(tc *models.TestCase) Fields {
	return Fields{
		TestItem:       tc.TestItem,
		TestPurpose:    tc.TestPurpose,
		TestSteps:      tc.TestSteps,
		ExpectedResult: tc.ExpectedResult,
		Category:       tc.Category,
	}
}
