package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Romainl01/photobooth-backend/internal/models"
	"github.com/Romainl01/photobooth-backend/internal/pay"
)

const webhookSecret = "whsec_test"

func checkoutCompletedBody(paymentIntent, accountID, credits, pkg string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"payment_intent": %q,
			"metadata": {"account_id": %q, "credits": %q, "package_name": %q}
		}}
	}`, paymentIntent, accountID, credits, pkg))
}

func signedCall(t *testing.T, svc *PaymentService, body []byte) (*WebhookOutcome, error) {
	t.Helper()
	return svc.HandleEvent(context.Background(), body, pay.Sign(body, webhookSecret))
}

func TestWebhookGrantsCredits(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 0}
	svc := NewPaymentService(webhookSecret, testLogger(), store)

	outcome, err := signedCall(t, svc, checkoutCompletedBody("pi_1", "user-1", "30", "standard"))
	require.NoError(t, err)
	assert.False(t, outcome.Duplicate)
	assert.Equal(t, 30, store.profiles["user-1"].Credits)
}

func TestWebhookDuplicateDeliveryGrantsOnce(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 0}
	svc := NewPaymentService(webhookSecret, testLogger(), store)
	body := checkoutCompletedBody("pi_1", "user-1", "30", "standard")

	first, err := signedCall(t, svc, body)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := signedCall(t, svc, body)
	require.NoError(t, err, "a duplicate delivery must be acknowledged, not failed")
	assert.True(t, second.Duplicate)

	third, err := signedCall(t, svc, body)
	require.NoError(t, err)
	assert.True(t, third.Duplicate)

	assert.Equal(t, 30, store.profiles["user-1"].Credits, "balance unchanged after replays")
}

func TestWebhookMissingSignature(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 0}
	svc := NewPaymentService(webhookSecret, testLogger(), store)
	body := checkoutCompletedBody("pi_1", "user-1", "30", "standard")

	_, err := svc.HandleEvent(context.Background(), body, "")
	require.ErrorIs(t, err, ErrBadSignature)
	assert.Equal(t, 0, store.profiles["user-1"].Credits, "no grant without a signature")
}

func TestWebhookTamperedBody(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 0}
	svc := NewPaymentService(webhookSecret, testLogger(), store)
	body := checkoutCompletedBody("pi_1", "user-1", "30", "standard")
	signature := pay.Sign(body, webhookSecret)
	tampered := checkoutCompletedBody("pi_1", "user-1", "9000", "standard")

	_, err := svc.HandleEvent(context.Background(), tampered, signature)
	require.ErrorIs(t, err, ErrBadSignature)
	assert.Equal(t, 0, store.profiles["user-1"].Credits)
}

func TestWebhookBadMetadata(t *testing.T) {
	cases := []struct {
		name string
		body []byte
	}{
		{"missing account", checkoutCompletedBody("pi_1", "", "30", "standard")},
		{"zero credits", checkoutCompletedBody("pi_1", "user-1", "0", "standard")},
		{"negative credits", checkoutCompletedBody("pi_1", "user-1", "-5", "standard")},
		{"non-numeric credits", checkoutCompletedBody("pi_1", "user-1", "lots", "standard")},
		{"missing payment intent", checkoutCompletedBody("", "user-1", "30", "standard")},
		{"garbage payload", []byte(`{]`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMockStore()
			store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 0}
			svc := NewPaymentService(webhookSecret, testLogger(), store)

			_, err := signedCall(t, svc, tc.body)
			require.ErrorIs(t, err, ErrBadEvent)
			assert.Equal(t, 0, store.profiles["user-1"].Credits)
			assert.Empty(t, store.grants)
		})
	}
}

func TestWebhookPaymentFailedIsLoggedOnly(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 0}
	svc := NewPaymentService(webhookSecret, testLogger(), store)
	body := []byte(`{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_9"}}}`)

	outcome, err := signedCall(t, svc, body)
	require.NoError(t, err)
	assert.True(t, outcome.Ignored)
	assert.Empty(t, store.grants)
}

func TestWebhookUnknownTypeAcknowledged(t *testing.T) {
	store := newMockStore()
	svc := NewPaymentService(webhookSecret, testLogger(), store)
	body := []byte(`{"id":"evt_3","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	outcome, err := signedCall(t, svc, body)
	require.NoError(t, err, "unknown types must be acknowledged so the sender stops retrying")
	assert.True(t, outcome.Ignored)
}

func TestWebhookGrantFailureBubblesForRetry(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 0}
	store.grantErr = fmt.Errorf("store unreachable")
	svc := NewPaymentService(webhookSecret, testLogger(), store)

	_, err := signedCall(t, svc, checkoutCompletedBody("pi_1", "user-1", "30", "standard"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadSignature)
	assert.NotErrorIs(t, err, ErrBadEvent)
	assert.Equal(t, 0, store.profiles["user-1"].Credits)
}
