package service

import (
	"context"
	"fmt"

	"autorenta-escrow-backend/internal/logger"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// sendgridNotifier emails the operations inbox. Every Notify* method is
// fire-and-forget from the caller's perspective: money paths log delivery
// failures and move on.
type sendgridNotifier struct {
	client   *sendgrid.Client
	from     *mail.Email
	opsEmail string
}

func NewSendGridNotifier(apiKey, fromEmail, fromName, opsEmail string) NotifierService {
	return &sendgridNotifier{
		client:   sendgrid.NewSendClient(apiKey),
		from:     mail.NewEmail(fromName, fromEmail),
		opsEmail: opsEmail,
	}
}

func (n *sendgridNotifier) NotifyClaimSettled(ctx context.Context, s *ClaimSettlement) error {
	subject := fmt.Sprintf("Claim %s settled", s.ClaimID)
	body := fmt.Sprintf(
		"Claim %s for booking %s has been settled.\n\n"+
			"Claim amount: %d cents\n"+
			"Recovered from deposit: %d cents\n"+
			"Covered by guarantee fund: %d cents\n"+
			"Unrecovered: %d cents\n",
		s.ClaimID, s.BookingID, s.Allocation.ClaimCents,
		s.Allocation.FromDepositCents, s.Allocation.FromFGOCents, s.Allocation.UnrecoveredCents)
	return n.send(subject, body)
}

func (n *sendgridNotifier) NotifyRewardsDistributed(ctx context.Context, r *DistributionResult) error {
	subject := fmt.Sprintf("Rewards distributed for %s", r.Period)
	body := fmt.Sprintf(
		"The network reward pool for %s has been distributed.\n\n"+
			"Total paid: %d cents across %d owners\n",
		r.Period, r.PaidCents, len(r.PerOwnerCents))
	return n.send(subject, body)
}

func (n *sendgridNotifier) NotifyIntegrityAlert(ctx context.Context, accountID string, cachedCents, derivedCents int64) error {
	subject := fmt.Sprintf("ACTION REQUIRED: balance mismatch on account %s", accountID)
	body := fmt.Sprintf(
		"Reconciliation found a balance mismatch on account %s.\n\n"+
			"Cached balance: %d cents\n"+
			"Derived from entries: %d cents\n\n"+
			"The account has been placed on integrity hold. No further postings "+
			"will be accepted until the ledger is manually reconciled.\n",
		accountID, cachedCents, derivedCents)
	return n.send(subject, body)
}

func (n *sendgridNotifier) NotifyFundExhausted(ctx context.Context, bookingRef string, requestedCents int64) error {
	subject := "ACTION REQUIRED: guarantee fund exhausted"
	body := fmt.Sprintf(
		"A claim settlement for booking %s could not draw %d cents from the "+
			"guarantee fund because the period balance would go negative.\n\n"+
			"The settlement was rejected and must be retried after the fund is "+
			"replenished.\n",
		bookingRef, requestedCents)
	return n.send(subject, body)
}

func (n *sendgridNotifier) send(subject, body string) error {
	if n.opsEmail == "" {
		logger.Warn("Ops email not configured, dropping notification", "subject", subject)
		return nil
	}
	to := mail.NewEmail("Operations", n.opsEmail)
	message := mail.NewSingleEmail(n.from, subject, to, body, "")
	resp, err := n.client.Send(message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// noopNotifier is used when no SendGrid key is configured.
type noopNotifier struct{}

func NewNoopNotifier() NotifierService { return noopNotifier{} }

func (noopNotifier) NotifyClaimSettled(context.Context, *ClaimSettlement) error       { return nil }
func (noopNotifier) NotifyRewardsDistributed(context.Context, *DistributionResult) error { return nil }
func (noopNotifier) NotifyIntegrityAlert(context.Context, string, int64, int64) error { return nil }
func (noopNotifier) NotifyFundExhausted(context.Context, string, int64) error         { return nil }
