/**
 * @description
 * Validation for monetary amounts, currency codes, and payout settings.
 *
 * Validation runs as an ordered sequence of pure functions over an immutable
 * value; every failing check contributes a FieldError and the aggregate is
 * returned once, so a caller sees all problems in a single round trip instead
 * of fixing them one at a time.
 */

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownGatewayStatus is returned when the gateway reports a status string
// outside the documented payment-intent lifecycle.
var ErrUnknownGatewayStatus = errors.New("unknown gateway payment status")

// FieldError describes one failed validation check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every failed check for one value.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ErrOrNil returns the aggregate as an error, or nil when every check passed.
func (e ValidationErrors) ErrOrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// ValidateAmount checks a monetary amount in minor units.
func ValidateAmount(field string, amount int64) *FieldError {
	if amount <= 0 {
		return &FieldError{Field: field, Message: fmt.Sprintf("must be a positive amount in minor units, got %d", amount)}
	}
	return nil
}

// ValidateCurrency checks a 3-letter uppercase currency code.
func ValidateCurrency(field string, currency string) *FieldError {
	if len(currency) != 3 {
		return &FieldError{Field: field, Message: fmt.Sprintf("must be a 3-letter currency code, got %q", currency)}
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return &FieldError{Field: field, Message: fmt.Sprintf("must be uppercase letters only, got %q", currency)}
		}
	}
	return nil
}

// ValidateDayOfMonth checks a 1-31 day-of-month setting.
func ValidateDayOfMonth(field string, day int) *FieldError {
	if day < 1 || day > 31 {
		return &FieldError{Field: field, Message: fmt.Sprintf("must be between 1 and 31, got %d", day)}
	}
	return nil
}

// Validate runs every payout-settings check and returns the aggregate.
func (s PayoutSettings) Validate() error {
	var errs ValidationErrors
	checks := []*FieldError{
		ValidateDayOfMonth("cutoff_day", s.CutoffDay),
		ValidateDayOfMonth("processing_day", s.ProcessingDay),
		ValidateCurrency("default_currency", s.DefaultCurrency),
	}
	for _, fe := range checks {
		if fe != nil {
			errs = append(errs, *fe)
		}
	}
	if s.MinimumPayoutAmount < 0 {
		errs = append(errs, FieldError{Field: "minimum_payout_amount", Message: fmt.Sprintf("must be >= 0, got %d", s.MinimumPayoutAmount)})
	}
	return errs.ErrOrNil()
}
