package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
	"github.com/clearstate-inc/recon-engine/pkg/database"
	"github.com/clearstate-inc/recon-engine/pkg/models"
	"github.com/clearstate-inc/recon-engine/pkg/repositories"
)

// ratioScale is the decimal precision ratios are computed to.
const ratioScale = 6

// RuleEngine executes the full versioned rule catalogue against the matched
// values of a property/period. Execution is deterministic: identical inputs
// and catalogue version always yield the same rules_version_hash and the same
// ordered verdict sequence. The engine holds no mutable state, so concurrent
// runs for different keys are safe.
type RuleEngine interface {
	// ExecuteAllRules runs every active rule in catalogue order inside one
	// transaction: the ValidationRun row, every verdict row, and all covenant
	// compliance rows commit together or not at all. It returns one verdict
	// per active rule - coverage is never silently reduced. periodEnd anchors
	// covenant threshold resolution.
	ExecuteAllRules(ctx context.Context, propertyID, periodID uuid.UUID, periodEnd time.Time) (*models.RunSummary, []models.RuleVerdict, error)
}

type ruleEngine struct {
	db           *database.DB
	catalog      *RuleCatalog
	capabilities *CapabilityDescriptor
	resolver     CovenantResolver
	recorder     ComplianceRecorder
	lineItemRepo repositories.LineItemRepository
	chartRepo    repositories.ChartRepository
	runRepo      repositories.ValidationRunRepository
	logger       *zap.Logger
}

// NewRuleEngine creates a RuleEngine. The capability descriptor is computed
// once at startup by the SchemaGuard and injected here; rules never probe the
// data layout during a run.
func NewRuleEngine(
	db *database.DB,
	catalog *RuleCatalog,
	capabilities *CapabilityDescriptor,
	resolver CovenantResolver,
	recorder ComplianceRecorder,
	lineItemRepo repositories.LineItemRepository,
	chartRepo repositories.ChartRepository,
	runRepo repositories.ValidationRunRepository,
	logger *zap.Logger,
) RuleEngine {
	return &ruleEngine{
		db:           db,
		catalog:      catalog,
		capabilities: capabilities,
		resolver:     resolver,
		recorder:     recorder,
		lineItemRepo: lineItemRepo,
		chartRepo:    chartRepo,
		runRepo:      runRepo,
		logger:       logger,
	}
}

var _ RuleEngine = (*ruleEngine)(nil)

func (e *ruleEngine) ExecuteAllRules(ctx context.Context, propertyID, periodID uuid.UUID, periodEnd time.Time) (*models.RunSummary, []models.RuleVerdict, error) {
	var summary *models.RunSummary
	var verdicts []models.RuleVerdict

	err := e.db.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		summary, verdicts, err = e.executeInTx(txCtx, propertyID, periodID, periodEnd)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The rolled-back attempt left nothing behind; record it as
			// abandoned so the history shows the cancellation. Prior runs are
			// untouched.
			e.markAbandoned(propertyID, periodID)
			return nil, nil, fmt.Errorf("run cancelled: %w", apperrors.ErrRunAbandoned)
		}
		return nil, nil, err
	}

	return summary, verdicts, nil
}

func (e *ruleEngine) executeInTx(ctx context.Context, propertyID, periodID uuid.UUID, periodEnd time.Time) (*models.RunSummary, []models.RuleVerdict, error) {
	chart, err := e.chartRepo.ListAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	items, err := e.lineItemRepo.ListForPeriod(ctx, propertyID, periodID)
	if err != nil {
		return nil, nil, err
	}
	index := NewValueIndex(items, chart)

	rules := e.catalog.ActiveRules()

	// The run row is created before any rule executes so the snapshot captures
	// exactly what this attempt will evaluate.
	run := &models.ValidationRun{
		PropertyID:       propertyID,
		PeriodID:         periodID,
		RulesVersionHash: e.catalog.VersionHash(),
		TotalRules:       len(rules),
		RulesSnapshot:    rules,
	}
	if err := e.runRepo.Create(ctx, run); err != nil {
		return nil, nil, err
	}

	e.logger.Info("executing rule catalogue",
		zap.String("property_id", propertyID.String()),
		zap.String("period_id", periodID.String()),
		zap.String("rules_version_hash", run.RulesVersionHash),
		zap.Int("active_rules", len(rules)),
		zap.Int("line_items", index.ItemCount()))

	verdicts := make([]models.RuleVerdict, 0, len(rules))
	for i := range rules {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		verdict, err := e.evaluate(ctx, &rules[i], index, propertyID, periodID, periodEnd)
		if err != nil {
			return nil, nil, fmt.Errorf("rule %s: %w", rules[i].RuleID, err)
		}
		verdicts = append(verdicts, verdict)

		switch verdict.Status {
		case models.VerdictPass:
			run.PassedCount++
		case models.VerdictFail:
			run.FailedCount++
		case models.VerdictWarning:
			run.WarningCount++
		case models.VerdictSkip:
			run.SkippedCount++
		}
	}

	if err := e.runRepo.InsertVerdicts(ctx, run.ID, verdicts); err != nil {
		return nil, nil, err
	}
	if err := e.runRepo.Complete(ctx, run); err != nil {
		return nil, nil, err
	}

	summary := &models.RunSummary{
		RunID:            run.ID,
		TotalRules:       run.TotalRules,
		Passed:           run.PassedCount,
		Failed:           run.FailedCount,
		Warnings:         run.WarningCount,
		Skipped:          run.SkippedCount,
		RulesVersionHash: run.RulesVersionHash,
		CompletedAt:      *run.CompletedAt,
	}
	return summary, verdicts, nil
}

// evaluate produces exactly one verdict for one rule. Evaluation errors that
// are configuration or data gaps degrade to SKIP; only persistence errors
// propagate and abort the run.
func (e *ruleEngine) evaluate(ctx context.Context, rule *models.Rule, index *ValueIndex, propertyID, periodID uuid.UUID, periodEnd time.Time) (models.RuleVerdict, error) {
	verdict := models.RuleVerdict{
		RuleID:   rule.RuleID,
		RuleName: rule.Name,
		Category: rule.Category,
		Severity: rule.Severity,
	}

	for _, feature := range rule.Requires {
		if !e.capabilities.Has(feature) {
			verdict.Status = models.VerdictSkip
			if def, ok := e.capabilities.DefaultFor(feature); ok {
				verdict.Details = fmt.Sprintf("capability %q unavailable in this deployment; default %q assumed", feature, def)
			} else {
				verdict.Details = fmt.Sprintf("capability %q unavailable in this deployment", feature)
			}
			return verdict, nil
		}
	}

	switch rule.Category {
	case models.RuleCategoryBalanceIdentity, models.RuleCategoryCrossDocument:
		e.evaluateDifference(rule, index, &verdict)
	case models.RuleCategoryRatioThreshold, models.RuleCategoryDataQuality:
		e.evaluateRatio(rule, index, rule.Threshold, rule.Operator, &verdict)
	case models.RuleCategoryCovenant:
		if err := e.evaluateCovenant(ctx, rule, index, propertyID, periodID, periodEnd, &verdict); err != nil {
			return verdict, err
		}
	case models.RuleCategoryInformational:
		e.evaluateInformational(rule, index, &verdict)
	default:
		verdict.Status = models.VerdictSkip
		verdict.Details = fmt.Sprintf("unknown rule category %q", rule.Category)
	}

	return verdict, nil
}

// evaluateDifference checks source vs target within the rule's tolerance.
func (e *ruleEngine) evaluateDifference(rule *models.Rule, index *ValueIndex, verdict *models.RuleVerdict) {
	source, sourceOK := index.Resolve(rule.Source)
	target, targetOK := index.Resolve(rule.Target)
	if !sourceOK || !targetOK {
		verdict.Status = models.VerdictSkip
		verdict.Details = missingInputDetail(rule, sourceOK, targetOK)
		return
	}

	difference := source.Sub(target)
	variancePct := variancePercent(difference, source, target)

	verdict.SourceValue = &source
	verdict.TargetValue = &target
	verdict.Difference = &difference
	verdict.VariancePct = &variancePct

	if withinTolerance(difference, variancePct, rule.Tolerance) {
		verdict.Status = models.VerdictPass
		return
	}

	verdict.Status = failureStatus(rule.Severity)
	verdict.Details = fmt.Sprintf("difference %s exceeds tolerance", difference.String())
}

// evaluateRatio computes numerator/denominator and compares against a static
// threshold with the rule's operator.
func (e *ruleEngine) evaluateRatio(rule *models.Rule, index *ValueIndex, threshold *decimal.Decimal, operator string, verdict *models.RuleVerdict) {
	if threshold == nil || operator == "" {
		verdict.Status = models.VerdictSkip
		verdict.Details = "rule has no threshold configured"
		return
	}

	ratio, ok := e.computeRatio(rule, index, verdict)
	if !ok {
		return
	}

	compliant, err := models.Compare(ratio, *threshold, operator)
	if err != nil {
		verdict.Status = models.VerdictSkip
		verdict.Details = err.Error()
		return
	}

	difference := ratio.Sub(*threshold)
	verdict.SourceValue = &ratio
	verdict.TargetValue = threshold
	verdict.Difference = &difference

	if compliant {
		verdict.Status = models.VerdictPass
		return
	}
	verdict.Status = failureStatus(rule.Severity)
	verdict.Details = fmt.Sprintf("ratio %s violates %s %s", ratio.String(), operator, threshold.String())
}

// evaluateCovenant resolves the effective threshold (property override over
// global default) and records the compliance history row in the same
// transaction as the verdict.
func (e *ruleEngine) evaluateCovenant(ctx context.Context, rule *models.Rule, index *ValueIndex, propertyID, periodID uuid.UUID, periodEnd time.Time, verdict *models.RuleVerdict) error {
	resolved, err := e.resolver.Resolve(ctx, propertyID, rule.CovenantType, periodEnd)
	if err != nil {
		if errors.Is(err, apperrors.ErrConfiguration) {
			// Fatal to this one rule only, reported as SKIP.
			verdict.Status = models.VerdictSkip
			verdict.Details = fmt.Sprintf("no threshold configured for covenant %q", rule.CovenantType)
			return nil
		}
		return err
	}

	ratio, ok := e.computeRatio(rule, index, verdict)
	if !ok {
		return nil
	}

	compliant, err := models.Compare(ratio, resolved.Value, resolved.Operator)
	if err != nil {
		verdict.Status = models.VerdictSkip
		verdict.Details = err.Error()
		return nil
	}

	difference := ratio.Sub(resolved.Value)
	verdict.SourceValue = &ratio
	verdict.TargetValue = &resolved.Value
	verdict.Difference = &difference
	verdict.Details = fmt.Sprintf("threshold from %s", resolved.Source)

	if compliant {
		verdict.Status = models.VerdictPass
	} else {
		verdict.Status = failureStatus(rule.Severity)
	}

	if _, err := e.recorder.RecordCovenantCheck(ctx, propertyID, periodID, rule.CovenantType, rule.RuleID, ratio, resolved.Value, compliant); err != nil {
		return err
	}
	return nil
}

func (e *ruleEngine) evaluateInformational(rule *models.Rule, index *ValueIndex, verdict *models.RuleVerdict) {
	verdict.Status = models.VerdictInfo
	if source, ok := index.Resolve(rule.Source); ok {
		verdict.SourceValue = &source
	}
	if target, ok := index.Resolve(rule.Target); ok {
		verdict.TargetValue = &target
	}
	if verdict.SourceValue == nil && verdict.TargetValue == nil {
		verdict.Status = models.VerdictSkip
		verdict.Details = "required inputs missing"
	}
}

// computeRatio resolves numerator/denominator for ratio-style rules. A missing
// input or zero denominator sets a SKIP verdict and returns false.
func (e *ruleEngine) computeRatio(rule *models.Rule, index *ValueIndex, verdict *models.RuleVerdict) (decimal.Decimal, bool) {
	numerator, numOK := index.Resolve(rule.Numerator)
	denominator, denOK := index.Resolve(rule.Denominator)
	if !numOK || !denOK {
		verdict.Status = models.VerdictSkip
		verdict.Details = "required inputs missing for ratio"
		return decimal.Zero, false
	}
	if denominator.IsZero() {
		verdict.Status = models.VerdictSkip
		verdict.Details = "ratio denominator is zero"
		return decimal.Zero, false
	}
	return numerator.DivRound(denominator, ratioScale), true
}

// markAbandoned records a cancelled attempt in its own short transaction so
// the audit trail shows the abandonment without touching prior runs.
func (e *ruleEngine) markAbandoned(propertyID, periodID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := e.db.WithTransaction(ctx, func(txCtx context.Context) error {
		run := &models.ValidationRun{
			PropertyID:       propertyID,
			PeriodID:         periodID,
			RulesVersionHash: e.catalog.VersionHash(),
		}
		if err := e.runRepo.Create(txCtx, run); err != nil {
			return err
		}
		return e.runRepo.Abandon(txCtx, run.ID)
	})
	if err != nil {
		e.logger.Warn("failed to record abandoned run",
			zap.String("property_id", propertyID.String()),
			zap.String("period_id", periodID.String()),
			zap.Error(err))
	}
}

// withinTolerance applies the inclusive tolerance bounds: a difference exactly
// at the bound is a PASS. Satisfying either bound suffices when both are set;
// a rule with no tolerance requires exact equality.
func withinTolerance(difference, variancePct decimal.Decimal, tol models.Tolerance) bool {
	abs := difference.Abs()
	if tol.Absolute == nil && tol.Percent == nil {
		return abs.IsZero()
	}
	if tol.Absolute != nil && abs.LessThanOrEqual(*tol.Absolute) {
		return true
	}
	if tol.Percent != nil && variancePct.Abs().LessThanOrEqual(*tol.Percent) {
		return true
	}
	return false
}

// variancePercent expresses the difference as a percentage of the base value
// (the larger magnitude side, so direction does not change the variance).
func variancePercent(difference, source, target decimal.Decimal) decimal.Decimal {
	base := source.Abs()
	if t := target.Abs(); t.GreaterThan(base) {
		base = t
	}
	if base.IsZero() {
		if difference.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(100)
	}
	return difference.Abs().DivRound(base, ratioScale).Mul(decimal.NewFromInt(100))
}

func failureStatus(severity string) string {
	if severity == models.RuleSeverityWarning {
		return models.VerdictWarning
	}
	return models.VerdictFail
}

func missingInputDetail(rule *models.Rule, sourceOK, targetOK bool) string {
	switch {
	case !sourceOK && !targetOK:
		return "source and target inputs missing"
	case !sourceOK:
		return fmt.Sprintf("no %s line items for source", selectorDoc(rule.Source))
	default:
		return fmt.Sprintf("no %s line items for target", selectorDoc(rule.Target))
	}
}

func selectorDoc(sel *models.ValueSelector) string {
	if sel == nil {
		return "required"
	}
	return sel.DocumentType
}
