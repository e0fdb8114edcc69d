package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/clearstate-inc/recon-engine/pkg/models"
)

// RuleCatalog is the statically declared rule registry: the single source of
// truth for the coverage invariant. It is loaded once at startup; rule order
// is file order and never changes within a version.
type RuleCatalog struct {
	rules       []models.Rule
	versionHash string
}

// ruleSpec is the YAML shape of one registry entry. Numeric bounds are decimal
// strings so no binary float ever touches a currency comparison.
type ruleSpec struct {
	RuleID       string                `yaml:"rule_id"`
	Name         string                `yaml:"name"`
	Category     string                `yaml:"category"`
	DocumentType string                `yaml:"document_type"`
	Formula      string                `yaml:"formula"`
	Severity     string                `yaml:"severity"`
	Active       bool                  `yaml:"active"`
	Tolerance    toleranceSpec         `yaml:"tolerance"`
	Requires     []string              `yaml:"requires"`
	CovenantType string                `yaml:"covenant_type"`
	Threshold    string                `yaml:"threshold"`
	Operator     string                `yaml:"operator"`
	Source       *models.ValueSelector `yaml:"source"`
	Target       *models.ValueSelector `yaml:"target"`
	Numerator    *models.ValueSelector `yaml:"numerator"`
	Denominator  *models.ValueSelector `yaml:"denominator"`
}

type toleranceSpec struct {
	Absolute string `yaml:"absolute"`
	Percent  string `yaml:"percent"`
}

type catalogFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

// LoadRuleCatalog reads and validates the registry file.
func LoadRuleCatalog(path string) (*RuleCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule registry %s: %w", path, err)
	}
	return ParseRuleCatalog(data)
}

// ParseRuleCatalog builds a catalogue from raw registry YAML.
func ParseRuleCatalog(data []byte) (*RuleCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule registry: %w", err)
	}

	rules := make([]models.Rule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		rule, err := spec.toRule()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, spec.RuleID, err)
		}
		rules = append(rules, rule)
	}

	return NewRuleCatalog(rules)
}

func (s *ruleSpec) toRule() (models.Rule, error) {
	rule := models.Rule{
		RuleID:       s.RuleID,
		Name:         s.Name,
		Category:     s.Category,
		DocumentType: s.DocumentType,
		Formula:      s.Formula,
		Severity:     s.Severity,
		Active:       s.Active,
		Requires:     s.Requires,
		CovenantType: s.CovenantType,
		Operator:     s.Operator,
		Source:       s.Source,
		Target:       s.Target,
		Numerator:    s.Numerator,
		Denominator:  s.Denominator,
	}

	var err error
	if rule.Tolerance.Absolute, err = parseDecimal(s.Tolerance.Absolute); err != nil {
		return rule, fmt.Errorf("invalid absolute tolerance %q: %w", s.Tolerance.Absolute, err)
	}
	if rule.Tolerance.Percent, err = parseDecimal(s.Tolerance.Percent); err != nil {
		return rule, fmt.Errorf("invalid percent tolerance %q: %w", s.Tolerance.Percent, err)
	}
	if rule.Threshold, err = parseDecimal(s.Threshold); err != nil {
		return rule, fmt.Errorf("invalid threshold %q: %w", s.Threshold, err)
	}

	return rule, nil
}

func parseDecimal(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// NewRuleCatalog validates the rules and computes the version hash.
func NewRuleCatalog(rules []models.Rule) (*RuleCatalog, error) {
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.RuleID == "" {
			return nil, fmt.Errorf("rule %d has an empty rule_id", i)
		}
		if seen[r.RuleID] {
			return nil, fmt.Errorf("duplicate rule_id %q: a rule_id is never reused", r.RuleID)
		}
		seen[r.RuleID] = true

		switch r.Severity {
		case models.RuleSeverityError, models.RuleSeverityWarning, models.RuleSeverityInfo:
		default:
			return nil, fmt.Errorf("rule %s has unknown severity %q", r.RuleID, r.Severity)
		}
		if r.Category == models.RuleCategoryCovenant && r.CovenantType == "" {
			return nil, fmt.Errorf("covenant rule %s is missing covenant_type", r.RuleID)
		}
	}

	return &RuleCatalog{
		rules:       rules,
		versionHash: computeVersionHash(rules),
	}, nil
}

// computeVersionHash fingerprints the catalogue: a stable SHA-256 over the
// ordered rule_id|formula|severity tuples. Two runs against the same hash are
// byte-comparable.
func computeVersionHash(rules []models.Rule) string {
	h := sha256.New()
	for _, r := range rules {
		fmt.Fprintf(h, "%s|%s|%s\n", r.RuleID, r.Formula, r.Severity)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// VersionHash returns the catalogue fingerprint.
func (c *RuleCatalog) VersionHash() string {
	return c.versionHash
}

// Rules returns all rules in registry order.
func (c *RuleCatalog) Rules() []models.Rule {
	return c.rules
}

// ActiveRules returns active rules in registry order.
func (c *RuleCatalog) ActiveRules() []models.Rule {
	var active []models.Rule
	for _, r := range c.rules {
		if r.Active {
			active = append(active, r)
		}
	}
	return active
}

// Size returns the total number of registered rules.
func (c *RuleCatalog) Size() int {
	return len(c.rules)
}
