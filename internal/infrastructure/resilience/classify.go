package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

// TransientClassifier builds a classifier for an outbound adapter. Cancellation
// is neither retried nor counted against the breaker; an open circuit, an
// ErrTemporary kind and anything isTransient accepts are retried.
func TransientClassifier(isTransient func(error) bool) ErrorClassifier {
	return func(err error) ErrorClassification {
		if err == nil {
			return ErrorClassification{}
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ErrorClassification{Retryable: false, RecordFailure: false}
		}
		if IsCircuitOpen(err) || domain.IsKind(err, domain.ErrTemporary) {
			return ErrorClassification{Retryable: true, RecordFailure: true}
		}
		if isTransient != nil && isTransient(err) {
			return ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
}

// WrapTemporary tags retryable failures with domain.ErrTemporary once the
// executor gave up, so the HTTP layer can answer 503.
func WrapTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
