// internal/usecase/validate.go
package usecase

import "mpesa-gateway/internal/domain"

// Predicate is pluggable verification logic for C2B validation and
// confirmation callbacks. Passed explicitly at call time, never resolved
// by name.
type Predicate func(payload *domain.ConfirmationPayload) bool

// ValidationAck computes the acknowledgment for a C2B validation leg.
// Without a predicate the provider gets an immediate success, as it
// requires a fast ack; a failing predicate rejects the transaction.
func ValidationAck(pred Predicate, payload *domain.ConfirmationPayload) domain.Ack {
	if pred == nil {
		return domain.AckSuccess
	}
	if !pred(payload) {
		return domain.AckFailed
	}
	return domain.AckSuccess
}
