package compliance

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

// Evaluator is a pure ruleset check over the shared input.
type Evaluator func(in domain.ComplianceInput) domain.RulesetResult

type result struct {
	ruleset         domain.Ruleset
	errors          []string
	warnings        []string
	recommendations []string
}

func (r *result) fail(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *result) warn(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *result) recommend(text string) {
	r.recommendations = append(r.recommendations, text)
}

func (r *result) done() domain.RulesetResult {
	errs := domain.Dedupe(r.errors)
	return domain.RulesetResult{
		Ruleset:         r.ruleset,
		Compliant:       len(errs) == 0,
		Errors:          nonNil(errs),
		Warnings:        nonNil(domain.Dedupe(r.warnings)),
		Recommendations: nonNil(domain.Dedupe(r.recommendations)),
	}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func hasField(fields *domain.FieldSet, name string) bool {
	return fields.Has(name) || slices.Contains(fields.Names(), name)
}

func presentFields(fields *domain.FieldSet, names []string) []string {
	var out []string
	for _, name := range names {
		if hasField(fields, name) {
			out = append(out, name)
		}
	}
	return out
}

func missingFields(fields *domain.FieldSet, names []string) []string {
	var out []string
	for _, name := range names {
		if !hasField(fields, name) {
			out = append(out, name)
		}
	}
	return out
}

func personalData(fields *domain.FieldSet) []string {
	return presentFields(fields, personalDataFields)
}

func DataProtection(in domain.ComplianceInput) domain.RulesetResult {
	r := result{ruleset: domain.RulesetDataProtection}
	cls := in.Classification

	if personal := personalData(in.Fields); len(personal) > 0 && !in.Fields.HasNameContaining(consentMarkers...) {
		r.fail("personal data (%s) present without a consent or agreement marker", strings.Join(personal, ", "))
	}
	if n := len(in.Fields.Names()); n > maxFieldsBeforeReview {
		r.warn("data minimization: %d fields extracted, collect only what the processing purpose requires", n)
	}
	if cls.IsUnknown() {
		r.warn("purpose limitation: document type could not be determined")
	}
	if in.Fields.HasNameContaining(sensitiveFieldFragments...) || cls.Category == categoryFinancial {
		r.warn("sensitive personal information detected, enhanced protection required")
	}
	r.recommend(retentionRecommendation(cls.Category))
	return r.done()
}

func Numbering(in domain.ComplianceInput) domain.RulesetResult {
	r := result{ruleset: domain.RulesetNumbering}

	for _, v := range in.Fields.Get("phone_number") {
		if !nationalPhoneFormat.MatchString(numberSeparators.ReplaceAllString(v, "")) {
			r.fail("invalid phone number format: %s", v)
		}
	}
	for _, v := range in.Fields.Get("msisdn") {
		if !nationalMSISDNFormat.MatchString(numberSeparators.ReplaceAllString(v, "")) {
			r.fail("invalid MSISDN format: %s", v)
		}
	}

	switch in.Classification.Category {
	case categoryActivation:
		if missing := missingFields(in.Fields, activationRequired); len(missing) > 0 {
			r.fail("service activation missing mandatory fields: %s", strings.Join(missing, ", "))
		}
	case categoryOnboarding:
		if !in.Fields.HasNameContaining(locationMarkers...) {
			r.warn("onboarding record lacks emergency services location consent indicator")
		}
	}
	return r.done()
}

func NetworkOperator(in domain.ComplianceInput) domain.RulesetResult {
	r := result{ruleset: domain.RulesetNetworkOperator}

	switch in.Classification.Category {
	case categoryBilling:
		if missing := missingFields(in.Fields, billingRequired); len(missing) > 0 {
			r.fail("billing document missing required fields: %s", strings.Join(missing, ", "))
		}
		if !localCurrencyEvident(in.Fields) {
			r.warn("currency is not explicitly %s", localCurrency)
		}
	case categoryNetworkMetrics:
		if !in.Fields.HasNameContaining(qosMarkers...) {
			r.warn("network report lacks quality of service metrics")
		}
	case categoryOnboarding, categoryActivation:
		if !in.Fields.HasNameContaining(fraudMarkers...) {
			r.warn("no fraud prevention or identity verification indicator")
		}
	}
	return r.done()
}

// localCurrencyEvident accepts an explicit currency field or rand-prefixed amounts.
func localCurrencyEvident(fields *domain.FieldSet) bool {
	for _, v := range fields.Get("currency") {
		u := strings.ToUpper(strings.TrimSpace(v))
		if strings.Contains(u, localCurrency) || u == "R" || strings.Contains(u, "RAND") {
			return true
		}
	}
	amounts := fields.Get("amount")
	if len(amounts) == 0 {
		return false
	}
	for _, v := range amounts {
		if !strings.HasPrefix(strings.TrimSpace(v), "R") {
			return false
		}
	}
	return true
}

func Retention(in domain.ComplianceInput) domain.RulesetResult {
	r := result{ruleset: domain.RulesetRetention}

	if !in.Fields.HasNameContaining(retentionMarkers...) {
		r.warn("no retention, expiry or deletion date field present")
	}
	r.recommend(retentionRecommendation(in.Classification.Category))
	if in.Records() > automationRecordThreshold && !in.Fields.HasNameContaining(automationMarkers...) {
		r.warn("%d projected records without evidence of automated retention enforcement", in.Records())
	}
	return r.done()
}

func Security(in domain.ComplianceInput) domain.RulesetResult {
	r := result{ruleset: domain.RulesetSecurity}
	high := in.RiskLevel == domain.RiskHigh

	if high {
		r.recommend("encrypt the document at rest and in transit")
		r.recommend("require multi-factor authentication for access")
		r.recommend("enable enhanced audit logging")
	}
	if unsafeFilename.MatchString(in.Filename) {
		r.fail("filename contains unsafe characters: %q", in.Filename)
	}
	if high && !in.Fields.HasNameContaining(protectionMarkers...) {
		r.warn("high-risk data without encryption, hash or signature fields")
	}
	if restrictedCategories[in.Classification.Category] {
		r.recommend("restrict access with role-based access control")
		r.recommend("require approval before release")
	}
	if in.Records() > bulkRecordThreshold && len(personalData(in.Fields)) > 0 {
		r.recommend("anonymize or pseudonymize personal data in bulk exports")
	}
	return r.done()
}
