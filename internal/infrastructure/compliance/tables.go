package compliance

import "regexp"

var (
	nationalPhoneFormat  = regexp.MustCompile(`^(?:\+27|0)[1-9]\d{8}$`)
	nationalMSISDNFormat = regexp.MustCompile(`^27[1-9]\d{8}$`)
	unsafeFilename       = regexp.MustCompile(`[^A-Za-z0-9 _.\-]`)
	numberSeparators     = regexp.MustCompile(`[\s\-()]`)
)

// Document categories with dedicated rules.
const (
	categoryBilling        = "billing"
	categoryActivation     = "service_activation"
	categoryOnboarding     = "customer_onboarding"
	categoryNetworkMetrics = "network_metrics"
	categoryCompliance     = "compliance"
	categoryVerification   = "compliance_verification"
	categoryFinancial      = "financial"
)

const (
	localCurrency             = "ZAR"
	maxFieldsBeforeReview     = 20
	bulkRecordThreshold       = 100
	automationRecordThreshold = 1000
)

var personalDataFields = []string{
	"id_number", "phone_number", "email", "msisdn", "full_name",
	"address", "date_of_birth", "passport_number",
}

var sensitiveFieldFragments = []string{
	"id_number", "passport", "biometric", "fingerprint", "health", "medical",
	"bank", "account_number", "card_number", "salary", "income",
}

var (
	consentMarkers     = []string{"consent", "agreement", "opt_in", "permission"}
	locationMarkers    = []string{"emergency", "location"}
	fraudMarkers       = []string{"fraud", "verification", "verified", "kyc"}
	qosMarkers         = []string{"qos", "latency", "jitter", "packet_loss", "throughput"}
	retentionMarkers   = []string{"retention", "expiry", "expiration", "deletion", "delete_by", "destroy"}
	automationMarkers  = []string{"automat", "scheduled", "purge", "ttl", "lifecycle"}
	protectionMarkers  = []string{"encrypt", "hash", "signature", "signed", "checksum"}
	activationRequired = []string{"msisdn", "iccid", "id_number", "activation_date"}
	billingRequired    = []string{"amount", "date", "customer"}
)

var restrictedCategories = map[string]bool{
	categoryCompliance:   true,
	categoryVerification: true,
	categoryFinancial:    true,
}

// retentionPeriods maps document categories to their recommended retention.
var retentionPeriods = map[string]string{
	categoryBilling:        "5 years from invoice date (tax records)",
	categoryVerification:   "5 years after the subscriber relationship ends (RICA)",
	categoryActivation:     "5 years after deactivation",
	categoryOnboarding:     "5 years after the customer relationship ends",
	"usage_record":         "3 years from the call date",
	categoryNetworkMetrics: "2 years for capacity planning",
	categoryCompliance:     "7 years from the report date",
	categoryFinancial:      "7 years from the end of the financial year",
	"legal":                "7 years after contract expiry",
}

const defaultRetention = "a documented period no longer than the processing purpose requires"

func retentionRecommendation(category string) string {
	period, ok := retentionPeriods[category]
	if !ok {
		period = defaultRetention
	}
	return "Retain for " + period + ", then delete or anonymize"
}
