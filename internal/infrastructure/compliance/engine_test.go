package compliance

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

func fields(kv ...string) *domain.FieldSet {
	fs := domain.NewFieldSet()
	for i := 0; i+1 < len(kv); i += 2 {
		fs.Fields[kv[i]] = domain.ListValue([]string{kv[i+1]})
	}
	return fs
}

func input(category string, risk domain.RiskLevel, fs *domain.FieldSet) domain.ComplianceInput {
	return domain.ComplianceInput{
		Classification: domain.ClassificationResult{DocumentType: category, Category: category, Confidence: 1},
		Fields:         fs,
		RiskLevel:      risk,
		Filename:       "document.pdf",
	}
}

func intPtr(v int) *int { return &v }

func TestInvoiceIsCompliant(t *testing.T) {
	in := input(categoryBilling, domain.RiskMedium, fields("amount", "R150.00", "date", "2024-01-15", "customer", "ABC Corp"))
	in.Filename = "invoice_2024.pdf"

	report, err := NewEngine().Evaluate(context.Background(), in)

	require.NoError(t, err)
	assert.True(t, report.Compliant)
	assert.Empty(t, report.Errors)
	assert.Contains(t, report.Warnings, "no retention, expiry or deletion date field present")
	assert.Len(t, report.Rulesets, len(domain.Rulesets))
	for _, rs := range domain.Rulesets {
		assert.True(t, report.Rulesets[rs], rs)
	}
}

func TestPersonalDataRequiresConsent(t *testing.T) {
	withoutConsent := DataProtection(input("customer_onboarding", domain.RiskHigh, fields("id_number", "8001015009087")))
	require.False(t, withoutConsent.Compliant)
	assert.Equal(t, []string{"personal data (id_number) present without a consent or agreement marker"}, withoutConsent.Errors)

	withConsent := DataProtection(input("customer_onboarding", domain.RiskHigh, fields("id_number", "8001015009087", "consent_given", "yes")))
	assert.True(t, withConsent.Compliant)
	assert.Empty(t, withConsent.Errors)
}

func TestConsentMarkerFromHeaders(t *testing.T) {
	fs := fields("email", "a@b.co")
	fs.Headers = []string{"Email", "Opt In"}
	assert.True(t, DataProtection(input("customer_onboarding", domain.RiskHigh, fs)).Compliant)
}

func TestDataProtectionWarnings(t *testing.T) {
	fs := domain.NewFieldSet()
	for i := 0; i < 21; i++ {
		fs.Fields[fmt.Sprintf("f%02d", i)] = domain.ScalarValue("x")
	}
	fs.Fields["bank_account"] = domain.ScalarValue("123")
	in := input("", domain.RiskMedium, fs)
	in.Classification = domain.ClassificationResult{DocumentType: domain.UnknownDocumentType}

	res := DataProtection(in)

	assert.True(t, res.Compliant)
	assert.Len(t, res.Warnings, 3)
	assert.Contains(t, res.Warnings, "purpose limitation: document type could not be determined")
	assert.Equal(t, []string{retentionRecommendation("")}, res.Recommendations)
}

func TestNumberingFormats(t *testing.T) {
	fs := domain.NewFieldSet()
	fs.Fields["phone_number"] = domain.ListValue([]string{"0821234567", "+27821234567", "0012345678"})
	fs.Fields["msisdn"] = domain.ListValue([]string{"27821234567", "27021234567"})

	res := Numbering(input("usage_record", domain.RiskMedium, fs))

	assert.False(t, res.Compliant)
	assert.Equal(t, []string{
		"invalid phone number format: 0012345678",
		"invalid MSISDN format: 27021234567",
	}, res.Errors)
}

func TestActivationMandatoryFields(t *testing.T) {
	res := Numbering(input(categoryActivation, domain.RiskMedium, fields("msisdn", "27821234567", "id_number", "8001015009087")))
	assert.Equal(t, []string{"service activation missing mandatory fields: iccid, activation_date"}, res.Errors)

	complete := fields("msisdn", "27821234567", "id_number", "8001015009087", "iccid", "8927000000000000001", "activation_date", "2024-02-01")
	assert.True(t, Numbering(input(categoryActivation, domain.RiskMedium, complete)).Compliant)
}

func TestOnboardingIndicators(t *testing.T) {
	in := input(categoryOnboarding, domain.RiskHigh, fields("full_name", "Jane"))
	assert.Equal(t, []string{"onboarding record lacks emergency services location consent indicator"}, Numbering(in).Warnings)
	assert.Equal(t, []string{"no fraud prevention or identity verification indicator"}, NetworkOperator(in).Warnings)

	in.Fields = fields("full_name", "Jane", "location_consent", "yes", "kyc_status", "verified")
	assert.Empty(t, Numbering(in).Warnings)
	assert.Empty(t, NetworkOperator(in).Warnings)
}

func TestBillingRequirements(t *testing.T) {
	res := NetworkOperator(input(categoryBilling, domain.RiskMedium, fields("amount", "150.00", "date", "2024-01-15")))
	assert.Equal(t, []string{"billing document missing required fields: customer"}, res.Errors)
	assert.Equal(t, []string{"currency is not explicitly ZAR"}, res.Warnings)

	explicit := fields("amount", "150.00", "date", "2024-01-15", "customer", "ABC", "currency", "zar")
	assert.Empty(t, NetworkOperator(input(categoryBilling, domain.RiskMedium, explicit)).Warnings)
}

func TestNetworkReportNeedsQoS(t *testing.T) {
	res := NetworkOperator(input(categoryNetworkMetrics, domain.RiskLow, fields("cell_id", "C1")))
	assert.Equal(t, []string{"network report lacks quality of service metrics"}, res.Warnings)
	assert.Empty(t, NetworkOperator(input(categoryNetworkMetrics, domain.RiskLow, fields("latency", "20ms"))).Warnings)
}

func TestRetention(t *testing.T) {
	in := input("usage_record", domain.RiskMedium, fields("msisdn", "27821234567"))
	in.RecordCount = intPtr(2000)

	res := Retention(in)

	assert.True(t, res.Compliant)
	assert.Len(t, res.Warnings, 2)
	assert.Equal(t, []string{"Retain for 3 years from the call date, then delete or anonymize"}, res.Recommendations)

	in.Fields = fields("retention_date", "2027-01-01", "auto_purge", "yes")
	assert.Empty(t, Retention(in).Warnings)
}

func TestSecurity(t *testing.T) {
	in := input(categoryFinancial, domain.RiskHigh, fields("revenue", "100", "email", "a@b.co"))
	in.Filename = "report<1>.xlsx"
	in.RecordCount = intPtr(500)

	res := Security(in)

	assert.False(t, res.Compliant)
	assert.Equal(t, []string{`filename contains unsafe characters: "report<1>.xlsx"`}, res.Errors)
	assert.Equal(t, []string{"high-risk data without encryption, hash or signature fields"}, res.Warnings)
	assert.Len(t, res.Recommendations, 6)
	assert.Contains(t, res.Recommendations, "anonymize or pseudonymize personal data in bulk exports")
}

func TestSecurityLowRiskIsQuiet(t *testing.T) {
	res := Security(input("legal", domain.RiskLow, fields("party_name", "ACME")))
	assert.True(t, res.Compliant)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.Recommendations)
}

func TestMergeDedupesAcrossRulesets(t *testing.T) {
	report, err := NewEngine().Evaluate(context.Background(), input(categoryBilling, domain.RiskMedium, fields("amount", "R1.00", "date", "2024-01-01", "customer", "A")))
	require.NoError(t, err)

	count := 0
	for _, rec := range report.Recommendations {
		if rec == retentionRecommendation(categoryBilling) {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, report.Results, len(domain.Rulesets))
}

func TestEngineAggregatesFailure(t *testing.T) {
	failing := Rule{Ruleset: domain.RulesetSecurity, Evaluate: func(domain.ComplianceInput) domain.RulesetResult {
		return domain.RulesetResult{Compliant: false, Errors: []string{"blocked"}}
	}}
	passing := Rule{Ruleset: domain.RulesetRetention, Evaluate: Retention}

	report, err := NewEngine(passing, failing).Evaluate(context.Background(), input("", domain.RiskLow, nil))

	require.NoError(t, err)
	assert.False(t, report.Compliant)
	assert.Equal(t, []string{"blocked"}, report.Errors)
	assert.True(t, report.Rulesets[domain.RulesetRetention])
	assert.False(t, report.Rulesets[domain.RulesetSecurity])
}

func TestEngineRecoversPanickingRule(t *testing.T) {
	broken := Rule{Ruleset: domain.RulesetNumbering, Evaluate: func(domain.ComplianceInput) domain.RulesetResult {
		panic("boom")
	}}
	_, err := NewEngine(broken).Evaluate(context.Background(), input("", domain.RiskLow, nil))
	assert.ErrorContains(t, err, "ruleset numbering panicked")
}

func TestEvaluatorsAreDeterministic(t *testing.T) {
	in := input(categoryOnboarding, domain.RiskHigh, fields("id_number", "8001015009087", "phone_number", "0821234567"))
	for _, rule := range DefaultRules() {
		assert.Equal(t, rule.Evaluate(in), rule.Evaluate(in), rule.Ruleset)
	}
}
