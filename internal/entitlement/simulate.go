package entitlement

import (
	"context"
	"log/slog"
)

// Simulations force the persisted record into a given tier for manual QA.
// They write through Update so the persisted shape is identical to what a
// real verification produces; nothing downstream can tell simulated data
// apart.

// SimulateProUpgrade forces a pro license
func (s *Store) SimulateProUpgrade(ctx context.Context) error {
	now := s.now()
	status := StatusPro
	email := "test@example.com"

	s.logger.Info("simulating pro upgrade", slog.String("email", email))
	return s.Update(ctx, RecordPatch{
		Status:       &status,
		UserEmail:    &email,
		PurchaseDate: &now,
	})
}

// SimulateTrialStart forces a 7-day trial
func (s *Store) SimulateTrialStart(ctx context.Context) error {
	now := s.now()
	trialEnd := now.AddDate(0, 0, 7)
	status := StatusTrial
	email := "trial@example.com"

	s.logger.Info("simulating trial start", slog.Time("trial_end", trialEnd))
	return s.Update(ctx, RecordPatch{
		Status:       &status,
		UserEmail:    &email,
		TrialEnd:     &trialEnd,
		PurchaseDate: &now,
	})
}

// SimulateFreeReset clears the license record back to the free tier
func (s *Store) SimulateFreeReset(ctx context.Context) error {
	s.logger.Info("simulating free reset")
	return s.Reset(ctx)
}
