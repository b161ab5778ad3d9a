package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Romainl01/photobooth-backend/internal/pay"
	"github.com/Romainl01/photobooth-backend/internal/repository"
)

const (
	eventCheckoutCompleted = "checkout.session.completed"
	eventPaymentFailed     = "payment_intent.payment_failed"
)

var (
	// ErrBadSignature means the delivery is not provably from the payment
	// processor. Nothing else about it is inspected.
	ErrBadSignature = errors.New("invalid webhook signature")

	// ErrBadEvent covers malformed payloads and metadata that would lead to
	// granting zero, negative, or unattributable credits.
	ErrBadEvent = errors.New("invalid webhook event")
)

// GrantLedger is the atomic, idempotent grant procedure.
type GrantLedger interface {
	GrantCredit(ctx context.Context, profileID string, amount int, paymentIntentID, packageName string) error
}

// PaymentService reconciles payment processor webhook deliveries into credit
// grants. It holds no per-event state: at-least-once delivery is absorbed by
// the grant procedure's idempotency key, not fought here.
type PaymentService struct {
	secret string
	log    *slog.Logger
	ledger GrantLedger
}

// WebhookOutcome tells the HTTP layer how to answer, because the response
// status is what steers the sender's retry loop.
type WebhookOutcome struct {
	Duplicate bool
	Ignored   bool
}

func NewPaymentService(secret string, log *slog.Logger, ledger GrantLedger) *PaymentService {
	return &PaymentService{secret: secret, log: log, ledger: ledger}
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"`
			Metadata      struct {
				AccountID   string `json:"account_id"`
				Credits     string `json:"credits"`
				PackageName string `json:"package_name"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// HandleEvent verifies the signature over the exact raw bytes, dispatches on
// the event type, and applies the grant. Only a completed checkout mutates
// the ledger.
func (s *PaymentService) HandleEvent(ctx context.Context, rawBody []byte, signature string) (*WebhookOutcome, error) {
	if !pay.VerifyHMAC(rawBody, signature, s.secret) {
		return nil, ErrBadSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("%w: parse payload: %v", ErrBadEvent, err)
	}

	switch event.Type {
	case eventCheckoutCompleted:
		return s.applyGrant(ctx, event)
	case eventPaymentFailed:
		s.log.Warn("payment failed event received",
			"event_id", event.ID,
			"session_id", event.Data.Object.ID,
			"payment_intent", event.Data.Object.PaymentIntent,
		)
		return &WebhookOutcome{Ignored: true}, nil
	default:
		// Acknowledge everything else so the sender stops retrying.
		s.log.Debug("ignoring webhook event", "type", event.Type, "event_id", event.ID)
		return &WebhookOutcome{Ignored: true}, nil
	}
}

func (s *PaymentService) applyGrant(ctx context.Context, event webhookEvent) (*WebhookOutcome, error) {
	object := event.Data.Object
	accountID := object.Metadata.AccountID
	if accountID == "" {
		return nil, fmt.Errorf("%w: missing account_id in metadata", ErrBadEvent)
	}
	amount, err := strconv.Atoi(object.Metadata.Credits)
	if err != nil || amount <= 0 {
		return nil, fmt.Errorf("%w: credits metadata %q is not a positive integer", ErrBadEvent, object.Metadata.Credits)
	}
	paymentIntentID := object.PaymentIntent
	if paymentIntentID == "" {
		return nil, fmt.Errorf("%w: missing payment_intent", ErrBadEvent)
	}

	err = s.ledger.GrantCredit(ctx, accountID, amount, paymentIntentID, object.Metadata.PackageName)
	if errors.Is(err, repository.ErrDuplicateGrant) {
		// The money was credited on a prior delivery of this same payment.
		s.log.Info("duplicate payment delivery acknowledged",
			"payment_intent", paymentIntentID,
			"account_id", accountID,
		)
		return &WebhookOutcome{Duplicate: true}, nil
	}
	if err != nil {
		// Bubbling up yields a 500, which invites the sender to retry; the
		// idempotency key makes that retry safe.
		return nil, fmt.Errorf("grant credit: %w", err)
	}

	s.log.Info("credits granted",
		"payment_intent", paymentIntentID,
		"account_id", accountID,
		"credits", amount,
		"package", object.Metadata.PackageName,
	)
	return &WebhookOutcome{}, nil
}
