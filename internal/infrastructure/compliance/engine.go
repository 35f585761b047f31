package compliance

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

type Rule struct {
	Ruleset  domain.Ruleset
	Evaluate Evaluator
}

// DefaultRules returns the five rulesets in reporting order.
func DefaultRules() []Rule {
	return []Rule{
		{Ruleset: domain.RulesetDataProtection, Evaluate: DataProtection},
		{Ruleset: domain.RulesetNumbering, Evaluate: Numbering},
		{Ruleset: domain.RulesetNetworkOperator, Evaluate: NetworkOperator},
		{Ruleset: domain.RulesetRetention, Evaluate: Retention},
		{Ruleset: domain.RulesetSecurity, Evaluate: Security},
	}
}

type Engine struct {
	rules []Rule
}

func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{rules: rules}
}

// Evaluate runs every rule concurrently and merges the results in rule order.
// A panicking rule surfaces as an error rather than a partial report.
func (e *Engine) Evaluate(ctx context.Context, in domain.ComplianceInput) (domain.ComplianceReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.ComplianceReport{}, err
	}

	results := make([]domain.RulesetResult, len(e.rules))
	g, _ := errgroup.WithContext(ctx)
	for i, rule := range e.rules {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("ruleset %s panicked: %v", rule.Ruleset, r)
				}
			}()
			res := rule.Evaluate(in)
			res.Ruleset = rule.Ruleset
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.ComplianceReport{}, err
	}
	return Merge(results), nil
}

// Merge aggregates ruleset results; the report is compliant only when every
// ruleset is.
func Merge(results []domain.RulesetResult) domain.ComplianceReport {
	report := domain.ComplianceReport{
		Compliant: true,
		Rulesets:  make(map[domain.Ruleset]bool, len(results)),
		Results:   results,
	}
	var errs, warnings, recs []string
	for _, res := range results {
		report.Rulesets[res.Ruleset] = res.Compliant
		report.Compliant = report.Compliant && res.Compliant
		errs = append(errs, res.Errors...)
		warnings = append(warnings, res.Warnings...)
		recs = append(recs, res.Recommendations...)
	}
	report.Errors = nonNil(domain.Dedupe(errs))
	report.Warnings = nonNil(domain.Dedupe(warnings))
	report.Recommendations = nonNil(domain.Dedupe(recs))
	return report
}
