package services

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/jinzhu/inflection"

	"github.com/clearstate-inc/recon-engine/pkg/config"
	"github.com/clearstate-inc/recon-engine/pkg/models"
)

// MatchContext carries per-line hints into the cascade.
type MatchContext struct {
	// LegacyCode is a pre-resolved code carried over from a prior system.
	// When set and still valid against the chart, the cascade short-circuits
	// with a legacy_match (re-validation only).
	LegacyCode string
}

// AccountMatcher resolves a raw extracted label/code to a canonical
// chart-of-accounts entry using an ordered strategy cascade. Matching has no
// side effects; persisting the result alongside its line item is the caller's
// responsibility.
type AccountMatcher interface {
	Match(rawLabel, accountCode, documentType string, mctx MatchContext) models.MatchResult
}

type accountMatcher struct {
	cfg config.MatcherConfig

	byCode    map[string]*models.ChartOfAccountsEntry
	byName    map[string]*models.ChartOfAccountsEntry
	canonical []*models.ChartOfAccountsEntry // chart order: sorted by code
	codeWidth int
}

// NewAccountMatcher creates an AccountMatcher over the given chart. The chart
// is read-only reference data; the matcher indexes it once.
func NewAccountMatcher(cfg config.MatcherConfig, chart []*models.ChartOfAccountsEntry) AccountMatcher {
	m := &accountMatcher{
		cfg:    cfg,
		byCode: make(map[string]*models.ChartOfAccountsEntry, len(chart)),
		byName: make(map[string]*models.ChartOfAccountsEntry, len(chart)),
	}

	m.canonical = make([]*models.ChartOfAccountsEntry, len(chart))
	copy(m.canonical, chart)
	sort.Slice(m.canonical, func(i, j int) bool { return m.canonical[i].Code < m.canonical[j].Code })

	widths := make(map[int]int)
	for _, e := range m.canonical {
		code := normalizeCode(e.Code)
		m.byCode[code] = e
		widths[len(code)]++
		name := NormalizeAccountName(e.Name)
		if _, exists := m.byName[name]; !exists {
			m.byName[name] = e
		}
	}

	// The dominant code width drives parent-stem extraction for fuzzy codes.
	for w, n := range widths {
		if n > widths[m.codeWidth] || (n == widths[m.codeWidth] && w > m.codeWidth) {
			m.codeWidth = w
		}
	}

	return m
}

var _ AccountMatcher = (*accountMatcher)(nil)

// Match evaluates the strategy cascade in fixed order; first success wins.
func (m *accountMatcher) Match(rawLabel, accountCode, documentType string, mctx MatchContext) models.MatchResult {
	// Legacy pre-resolved codes are re-validated, not trusted blindly.
	if mctx.LegacyCode != "" {
		if entry, ok := m.byCode[normalizeCode(mctx.LegacyCode)]; ok {
			return models.MatchResult{
				MatchedCode:   entry.Code,
				MatchStrategy: models.MatchStrategyLegacyMatch,
				Confidence:    1.0,
			}
		}
	}

	// 1. exact_code
	code := normalizeCode(accountCode)
	if code != "" {
		if entry, ok := m.byCode[code]; ok {
			return models.MatchResult{
				MatchedCode:   entry.Code,
				MatchStrategy: models.MatchStrategyExactCode,
				Confidence:    1.0,
			}
		}

		// 2. fuzzy_code: hierarchical normalization to a parent stem
		if entry, ok := m.parentEntry(code); ok {
			return models.MatchResult{
				MatchedCode:   entry.Code,
				MatchStrategy: models.MatchStrategyFuzzyCode,
				Confidence:    0.9,
			}
		}
	}

	// 3. exact_name
	name := NormalizeAccountName(rawLabel)
	if name != "" {
		if entry, ok := m.byName[name]; ok {
			return models.MatchResult{
				MatchedCode:   entry.Code,
				MatchStrategy: models.MatchStrategyExactName,
				Confidence:    0.95,
			}
		}

		// 4. fuzzy_name
		if entry, similarity, ok := m.closestName(name); ok {
			return models.MatchResult{
				MatchedCode:   entry.Code,
				MatchStrategy: models.MatchStrategyFuzzyName,
				Confidence:    similarity,
			}
		}
	}

	// 5. unmatched: the item is retained and flagged for manual review,
	// never dropped.
	return models.MatchResult{MatchStrategy: models.MatchStrategyUnmatched}
}

// parentEntry strips trailing sub-segments from a hierarchical code and walks
// shortening stems zero-filled to the chart's code width until one exists.
// "4010-0000" strips to "4010", then "40100", "40000"... first hit wins.
func (m *accountMatcher) parentEntry(code string) (*models.ChartOfAccountsEntry, bool) {
	stem := code
	if i := strings.IndexAny(stem, "-."); i > 0 {
		stem = stem[:i]
	}

	if entry, ok := m.byCode[stem]; ok {
		return entry, true
	}

	if m.codeWidth == 0 || len(stem) == 0 {
		return nil, false
	}

	for n := len(stem); n >= 1; n-- {
		candidate := stem[:n]
		if len(candidate) < m.codeWidth {
			candidate += strings.Repeat("0", m.codeWidth-len(candidate))
		} else if len(candidate) > m.codeWidth {
			continue
		}
		if candidate == code {
			continue
		}
		if entry, ok := m.byCode[candidate]; ok {
			return entry, true
		}
	}

	return nil, false
}

// closestName finds the canonical name with the highest normalized similarity.
// Ties prefer the smaller edit distance, then the first entry in canonical
// (code) ordering, which the iteration order already guarantees.
func (m *accountMatcher) closestName(name string) (*models.ChartOfAccountsEntry, float64, bool) {
	var best *models.ChartOfAccountsEntry
	bestSimilarity := -1.0
	bestDistance := 0

	for _, entry := range m.canonical {
		candidate := NormalizeAccountName(entry.Name)
		distance := levenshtein.ComputeDistance(name, candidate)
		longest := len([]rune(name))
		if l := len([]rune(candidate)); l > longest {
			longest = l
		}
		if longest == 0 {
			continue
		}
		similarity := 1.0 - float64(distance)/float64(longest)

		if similarity > bestSimilarity || (similarity == bestSimilarity && distance < bestDistance) {
			best = entry
			bestSimilarity = similarity
			bestDistance = distance
		}
	}

	if best == nil || bestSimilarity < m.cfg.SimilarityThreshold || bestSimilarity < m.cfg.ConfidenceFloor {
		return nil, 0, false
	}
	return best, bestSimilarity, true
}

// normalizeCode canonicalizes an account code for lookup: trimmed, uppercased,
// interior whitespace removed.
func normalizeCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// NormalizeAccountName canonicalizes an account label for comparison:
// lowercase, punctuation stripped, whitespace collapsed, tokens singularized.
func NormalizeAccountName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '/' || r == '&':
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	for i, f := range fields {
		fields[i] = inflection.Singular(f)
	}
	return strings.Join(fields, " ")
}
