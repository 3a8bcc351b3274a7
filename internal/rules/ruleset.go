package rules

import (
	"encoding/json"
	"fmt"
)

// GlobalPreconditionsKey is the reserved top-level key of the rule file that
// holds precondition text per product type (or filename-derived key).
const GlobalPreconditionsKey = "global_preconditions"

// Rule is one structured classification rule. Order of keywords matters:
// the first keyword found in the search text wins.
type Rule struct {
	Keywords     []string `json:"keywords"`
	MainCategory string   `json:"main_category"`
	SubCategory  string   `json:"sub_category"`
}

// ProductRules is the tagged variant for the two rule-list shapes the rule
// file allows per product type: a list of structured rules, or a flat list
// of keyword strings for simple flag-style products. Exactly one side is
// populated; the shape is resolved once at load time.
type ProductRules struct {
	Structured []Rule
	Flags      []string
}

// IsFlagList reports whether this product uses the flat keyword shape.
func (pr *ProductRules) IsFlagList() bool {
	return pr.Flags != nil
}

// Empty reports whether the product has no usable rules at all.
func (pr *ProductRules) Empty() bool {
	return len(pr.Structured) == 0 && len(pr.Flags) == 0
}

// RuleSet is a fully loaded classification rule configuration.
type RuleSet struct {
	Products            map[string]ProductRules
	GlobalPreconditions map[string]string
}

// NewRuleSet returns an empty ruleset. Classification against it always
// yields the fallback pair.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		Products:            map[string]ProductRules{},
		GlobalPreconditions: map[string]string{},
	}
}

// RulesFor returns the rule list for a product type, or nil if none.
func (rs *RuleSet) RulesFor(productType string) *ProductRules {
	pr, ok := rs.Products[productType]
	if !ok {
		return nil
	}
	return &pr
}

// Precondition returns the global precondition text stored under key.
func (rs *RuleSet) Precondition(key string) string {
	return rs.GlobalPreconditions[key]
}

// parseRuleSet decodes the raw JSON document into a RuleSet, resolving each
// product entry into one of the two rule shapes. The shape is discriminated
// by the first list element: string means flag list, object means
// structured rules.
func parseRuleSet(data []byte) (*RuleSet, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}

	rs := NewRuleSet()
	for key, raw := range top {
		if key == GlobalPreconditionsKey {
			if err := json.Unmarshal(raw, &rs.GlobalPreconditions); err != nil {
				return nil, fmt.Errorf("failed to parse global preconditions: %w", err)
			}
			continue
		}

		pr, err := parseProductRules(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rules for %q: %w", key, err)
		}
		rs.Products[key] = pr
	}
	return rs, nil
}

func parseProductRules(raw json.RawMessage) (ProductRules, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return ProductRules{}, fmt.Errorf("rule list is not an array: %w", err)
	}
	if len(elems) == 0 {
		return ProductRules{Structured: []Rule{}}, nil
	}

	// Sniff the first element to pick the shape.
	var flag string
	if err := json.Unmarshal(elems[0], &flag); err == nil {
		var flags []string
		if err := json.Unmarshal(raw, &flags); err != nil {
			return ProductRules{}, fmt.Errorf("mixed flag rule list: %w", err)
		}
		return ProductRules{Flags: flags}, nil
	}

	var structured []Rule
	if err := json.Unmarshal(raw, &structured); err != nil {
		return ProductRules{}, fmt.Errorf("mixed structured rule list: %w", err)
	}
	return ProductRules{Structured: structured}, nil
}

// marshal serializes the ruleset back to the on-disk JSON layout.
func (rs *RuleSet) marshal() ([]byte, error) {
	top := map[string]interface{}{}
	for key, pr := range rs.Products {
		if pr.IsFlagList() {
			top[key] = pr.Flags
		} else {
			top[key] = pr.Structured
		}
	}
	if len(rs.GlobalPreconditions) > 0 {
		top[GlobalPreconditionsKey] = rs.GlobalPreconditions
	}
	return json.MarshalIndent(top, "", "  ")
}
