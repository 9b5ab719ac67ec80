// Package notify mails a summary of ledger cycles nobody has reviewed yet
// and marks them verified.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/trace"
	"llm-rebalancer/internal/types"
)

const DefaultSubject = "Daily Trade Verification Report"

// Outcome describes one verification pass.
type Outcome struct {
	Sent         bool
	Records      int
	Cycles       int
	VerifiedUpTo string
}

type Verifier struct {
	store   interfaces.LedgerStore
	sender  interfaces.Sender
	subject string
	now     func() time.Time
}

func NewVerifier(store interfaces.LedgerStore, sender interfaces.Sender) *Verifier {
	return &Verifier{
		store:   store,
		sender:  sender,
		subject: DefaultSubject,
		now:     time.Now,
	}
}

// RunOnce sends one summary of all unverified records, then marks every
// record up to the highest id in it verified. Nothing is marked when the
// send fails, so the next pass retries the same cycles.
func (v *Verifier) RunOnce(ctx context.Context) (Outcome, error) {
	ctx, span := trace.StartSpan(ctx, "notify.RunOnce")
	defer span.End()

	records, err := v.store.Unverified(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to read unverified trades: %w", err)
	}
	if len(records) == 0 {
		logger.Info(ctx, "No new trades to verify")
		return Outcome{}, nil
	}

	report := BuildReport(records, v.now())
	upTo := report.MaxTransactionID()
	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("verified_up_to", upTo),
	)

	html, err := report.HTML()
	if err != nil {
		return Outcome{}, err
	}
	if err := v.sender.Send(ctx, v.subject, report.Text(), html); err != nil {
		return Outcome{}, fmt.Errorf("failed to send verification report: %w", err)
	}

	n, err := v.store.MarkVerified(ctx, upTo)
	if err != nil {
		return Outcome{Sent: true}, fmt.Errorf("report sent but marking failed: %w", err)
	}

	out := Outcome{
		Sent:         true,
		Records:      n,
		Cycles:       len(report.Cycles),
		VerifiedUpTo: types.FormatTransactionID(upTo),
	}
	logger.Info(ctx, "Verification report sent",
		"cycles", out.Cycles,
		"records", out.Records,
		"verified_up_to", out.VerifiedUpTo,
	)
	return out, nil
}

// Loop runs a pass immediately and then every interval until ctx is done.
func (v *Verifier) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	logger.Info(ctx, "Starting verification loop", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := v.RunOnce(ctx); err != nil {
			logger.ErrorWithErr(ctx, "Verification pass failed", err)
		}
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Verification loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}
