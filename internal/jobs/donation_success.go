package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/donorhub/notify-pipeline/internal/broker"
	"github.com/donorhub/notify-pipeline/internal/domain"
	"github.com/donorhub/notify-pipeline/internal/mailer"
	"github.com/donorhub/notify-pipeline/internal/repository"
)

// donationSuccessPayload is the expected shape of a DONATION_SUCCESS job payload.
type donationSuccessPayload struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	DonationID string `json:"donationId"`
}

// currencySymbols maps ISO currency codes to display symbols for the
// notification body. Unmapped codes fall back to "<amount> <code>".
var currencySymbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

const donationSubject = "Donation Successful"

// DonationSuccessHandler turns a completed donation into a durable
// notification record, a best-effort email, and a best-effort broadcast.
//
// Ordering is correctness-critical: the record write comes first and is the
// only step allowed to fail the job. Everything after it is best-effort,
// because a retry at that point would re-run side effects for a notification
// that is already durable.
type DonationSuccessHandler struct {
	repo   repository.NotificationRepository
	broker *broker.Broker
	mail   mailer.Mailer
	logger *zap.Logger
}

func NewDonationSuccessHandler(
	repo repository.NotificationRepository,
	b *broker.Broker,
	mail mailer.Mailer,
	logger *zap.Logger,
) *DonationSuccessHandler {
	return &DonationSuccessHandler{repo: repo, broker: b, mail: mail, logger: logger}
}

func (h *DonationSuccessHandler) Type() string {
	return domain.JobTypeDonationSuccess
}

func (h *DonationSuccessHandler) Handle(ctx context.Context, job *domain.Job) error {
	p, err := decodePayload(job.Payload)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	message := formatAmount(p.Amount, p.Currency) + " donated"

	// The record id is the job id: redelivery after a crash between the
	// record write and the ack re-runs this insert as a no-op.
	n := &domain.Notification{
		ID:        job.ID,
		Recipient: p.UserID,
		Subject:   donationSubject,
		Body:      fmt.Sprintf("Your donation of %s was received. Thank you!", formatAmount(p.Amount, p.Currency)),
		Category:  domain.CategoryDonationSuccess,
		Context: map[string]any{
			"donationId": p.DonationID,
			"amount":     p.Amount,
			"currency":   p.Currency,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	log := h.logger.With(
		zap.String("job_id", job.ID),
		zap.String("donation_id", p.DonationID),
	)

	// Best-effort from here on: the record is durable, so neither a mail
	// nor a publish failure may force a redelivery.
	if err := h.mail.Send(ctx, mailer.Email{
		To:      p.Email,
		Subject: n.Subject,
		Body:    n.Body,
	}); err != nil {
		log.Warn("donation email not sent", zap.Error(err))
	} else if err := h.repo.MarkDelivered(ctx, n.ID); err != nil {
		log.Warn("failed to mark notification delivered", zap.Error(err))
	}

	if err := h.broker.Publish(broker.TopicNotifications, domain.BroadcastEvent{
		Recipient: p.UserID,
		Title:     donationSubject,
		Message:   message,
	}); err != nil {
		log.Warn("broadcast publish failed", zap.Error(err))
	}

	return nil
}

// decodePayload converts the job's opaque payload map into the typed form.
// Round-tripping through JSON mirrors how the payload was stored and keeps
// numeric coercion (float64 map values → int64 field) in one place.
func decodePayload(payload map[string]any) (donationSuccessPayload, error) {
	var p donationSuccessPayload
	raw, err := json.Marshal(payload)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	if p.UserID == "" {
		return p, fmt.Errorf("missing userId")
	}
	if p.Amount <= 0 {
		return p, fmt.Errorf("amount must be positive, got %d", p.Amount)
	}
	return p, nil
}

func formatAmount(amount int64, currency string) string {
	if sym, ok := currencySymbols[currency]; ok {
		return fmt.Sprintf("%s%d", sym, amount)
	}
	return fmt.Sprintf("%d %s", amount, currency)
}

var _ Handler = (*DonationSuccessHandler)(nil)
