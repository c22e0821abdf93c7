package app

import (
	"context"
	"errors"
	"testing"

	"github.com/rentfolio/payments-service/internal/domain"
	"github.com/rentfolio/payments-service/internal/store"
)

type settingsRepoStub struct {
	store.Repository

	current domain.PayoutSettings
	updated *domain.PayoutSettings
}

func (s *settingsRepoStub) GetPayoutSettings(ctx context.Context) (*domain.PayoutSettings, error) {
	settings := s.current
	return &settings, nil
}

func (s *settingsRepoStub) UpdatePayoutSettings(ctx context.Context, settings *domain.PayoutSettings) (*domain.PayoutSettings, error) {
	s.updated = settings
	return settings, nil
}

func TestUpdatePayoutSettings_RejectsInvalidFieldsAggregated(t *testing.T) {
	repo := &settingsRepoStub{current: domain.DefaultPayoutSettings()}
	svc, _ := newTestService(repo, "http://gateway.invalid")

	_, err := svc.UpdatePayoutSettings(context.Background(), domain.PayoutSettings{
		CutoffDay:           0,
		ProcessingDay:       40,
		DefaultCurrency:     "usd",
		MinimumPayoutAmount: -5,
	})
	var verrs domain.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(verrs) != 4 {
		t.Fatalf("expected all 4 field failures reported together, got %d: %v", len(verrs), verrs)
	}
	if repo.updated != nil {
		t.Fatal("invalid settings must not be persisted")
	}
}

func TestUpdatePayoutSettings_FullReplacement(t *testing.T) {
	repo := &settingsRepoStub{current: domain.DefaultPayoutSettings()}
	svc, _ := newTestService(repo, "http://gateway.invalid")

	updated, err := svc.UpdatePayoutSettings(context.Background(), domain.PayoutSettings{
		CutoffDay:           28,
		ProcessingDay:       3,
		DefaultCurrency:     "GBP",
		MinimumPayoutAmount: 50000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.CutoffDay != 28 || updated.ProcessingDay != 3 || updated.DefaultCurrency != "GBP" || updated.MinimumPayoutAmount != 50000 {
		t.Fatalf("settings were not replaced in full: %+v", updated)
	}
}
