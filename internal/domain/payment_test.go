package domain

import (
	"errors"
	"testing"
)

func TestPaymentStatusFromGateway_CoversDocumentedLifecycle(t *testing.T) {
	cases := map[string]PaymentStatus{
		"requires_payment_method": PaymentStatusRequiresPaymentMethod,
		"requires_confirmation":   PaymentStatusRequiresConfirmation,
		"requires_action":         PaymentStatusRequiresAction,
		"processing":              PaymentStatusProcessing,
		"requires_capture":        PaymentStatusRequiresCapture,
		"succeeded":               PaymentStatusSucceeded,
		"canceled":                PaymentStatusCancelled,
		"cancelled":               PaymentStatusCancelled,
	}

	for gatewayStatus, want := range cases {
		got, err := PaymentStatusFromGateway(gatewayStatus)
		if err != nil {
			t.Fatalf("PaymentStatusFromGateway(%q) returned error: %v", gatewayStatus, err)
		}
		if got != want {
			t.Fatalf("PaymentStatusFromGateway(%q) = %q, want %q", gatewayStatus, got, want)
		}
	}
}

func TestPaymentStatusFromGateway_FailsLoudlyOnUnknownStatus(t *testing.T) {
	_, err := PaymentStatusFromGateway("definitely_not_a_status")
	if err == nil {
		t.Fatal("expected error for unknown gateway status")
	}
	if !errors.Is(err, ErrUnknownGatewayStatus) {
		t.Fatalf("expected ErrUnknownGatewayStatus, got %v", err)
	}
}

func TestPaymentStatus_CanAdvanceTo_OnlyMovesForward(t *testing.T) {
	forward := []PaymentStatus{
		PaymentStatusRequiresPaymentMethod,
		PaymentStatusRequiresConfirmation,
		PaymentStatusRequiresAction,
		PaymentStatusProcessing,
		PaymentStatusRequiresCapture,
		PaymentStatusSucceeded,
	}

	for i, from := range forward {
		for j, to := range forward {
			got := from.CanAdvanceTo(to)
			want := i < j
			if got != want {
				t.Fatalf("CanAdvanceTo(%q -> %q) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestPaymentStatus_CancellationReachableOnlyBeforeTerminal(t *testing.T) {
	if !PaymentStatusProcessing.CanAdvanceTo(PaymentStatusCancelled) {
		t.Fatal("expected processing payment to be cancellable")
	}
	if PaymentStatusSucceeded.CanAdvanceTo(PaymentStatusCancelled) {
		t.Fatal("succeeded payment must not be cancellable")
	}
	if PaymentStatusCancelled.CanAdvanceTo(PaymentStatusCancelled) {
		t.Fatal("cancelled payment must not transition again")
	}
	if PaymentStatusCancelled.CanAdvanceTo(PaymentStatusSucceeded) {
		t.Fatal("cancelled payment must never become succeeded")
	}
}

func TestStatusesBelow_ExcludesSelfAndHigher(t *testing.T) {
	below := StatusesBelow(PaymentStatusProcessing)
	if len(below) != 3 {
		t.Fatalf("expected 3 statuses below processing, got %d: %v", len(below), below)
	}
	for _, s := range below {
		if s.Rank() >= PaymentStatusProcessing.Rank() {
			t.Fatalf("status %q is not below processing", s)
		}
	}
}
