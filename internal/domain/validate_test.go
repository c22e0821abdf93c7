package domain

import (
	"strings"
	"testing"
)

func TestValidateAmount_RejectsNonPositive(t *testing.T) {
	if fe := ValidateAmount("amount", 0); fe == nil {
		t.Fatal("expected error for zero amount")
	}
	if fe := ValidateAmount("amount", -150); fe == nil {
		t.Fatal("expected error for negative amount")
	}
	if fe := ValidateAmount("amount", 150000); fe != nil {
		t.Fatalf("unexpected error for positive amount: %v", fe)
	}
}

func TestValidateCurrency(t *testing.T) {
	if fe := ValidateCurrency("currency", "USD"); fe != nil {
		t.Fatalf("unexpected error for USD: %v", fe)
	}
	for _, bad := range []string{"", "US", "usd", "USDT", "U1D"} {
		if fe := ValidateCurrency("currency", bad); fe == nil {
			t.Fatalf("expected error for currency %q", bad)
		}
	}
}

func TestPayoutSettingsValidate_AggregatesAllFailures(t *testing.T) {
	settings := PayoutSettings{
		CutoffDay:           0,
		ProcessingDay:       32,
		DefaultCurrency:     "dollars",
		MinimumPayoutAmount: -1,
	}

	err := settings.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}

	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 4 {
		t.Fatalf("expected 4 field errors, got %d: %v", len(verrs), verrs)
	}
	for _, field := range []string{"cutoff_day", "processing_day", "default_currency", "minimum_payout_amount"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("expected aggregate error to mention %s, got %q", field, err.Error())
		}
	}
}

func TestPayoutSettingsValidate_AcceptsDefaults(t *testing.T) {
	settings := PayoutSettings{
		CutoffDay:           1,
		ProcessingDay:       5,
		DefaultCurrency:     "USD",
		MinimumPayoutAmount: 10000,
	}
	if err := settings.Validate(); err != nil {
		t.Fatalf("unexpected validation error for defaults: %v", err)
	}
}
