package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func sign(t *testing.T, secret string, payload []byte, at time.Time) string {
	t.Helper()
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func completedPayload(meta string) []byte {
	return []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{` +
		`"id":"cs_test_1","object":"checkout.session","payment_intent":"pi_123","amount_total":2500,"currency":"sgd",` +
		`"metadata":` + meta + `}}}`)
}

func TestStripe_ParseCheckoutCompleted(t *testing.T) {
	s := NewStripe(StripeConfig{WebhookSecret: testWebhookSecret})
	payload := completedPayload(`{"workshopId":"3","sessionId":"7","userId":"42"}`)

	ev, err := s.ParseEvent(payload, sign(t, testWebhookSecret, payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, KindCheckoutCompleted, ev.Kind)
	require.NotNil(t, ev.Checkout)
	assert.Equal(t, CheckoutCompleted{
		ProviderSessionID: "cs_test_1",
		PaymentRef:        "pi_123",
		AmountCents:       2500,
		Currency:          "SGD",
		WorkshopID:        3,
		SessionID:         7,
		UserID:            42,
	}, *ev.Checkout)
}

func TestStripe_ParseRejectsBadSignature(t *testing.T) {
	s := NewStripe(StripeConfig{WebhookSecret: testWebhookSecret})
	payload := completedPayload(`{"workshopId":"3","sessionId":"7","userId":"42"}`)

	_, err := s.ParseEvent(payload, sign(t, "whsec_other", payload, time.Now()))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = s.ParseEvent(payload, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// valid signature over a different body
	sig := sign(t, testWebhookSecret, payload, time.Now())
	_, err = s.ParseEvent(append(payload, ' '), sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripe_ParseRejectsStaleTimestamp(t *testing.T) {
	s := NewStripe(StripeConfig{WebhookSecret: testWebhookSecret})
	payload := completedPayload(`{"workshopId":"3","sessionId":"7","userId":"42"}`)

	_, err := s.ParseEvent(payload, sign(t, testWebhookSecret, payload, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripe_ParseUnhandledType(t *testing.T) {
	s := NewStripe(StripeConfig{WebhookSecret: testWebhookSecret})
	payload := []byte(`{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)

	ev, err := s.ParseEvent(payload, sign(t, testWebhookSecret, payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, KindUnhandled, ev.Kind)
	assert.Equal(t, "charge.refunded", ev.Type)
	assert.Nil(t, ev.Checkout)
}

func TestStripe_ParseMissingMetadata(t *testing.T) {
	s := NewStripe(StripeConfig{WebhookSecret: testWebhookSecret})
	payload := completedPayload(`{"workshopId":"3"}`)

	_, err := s.ParseEvent(payload, sign(t, testWebhookSecret, payload, time.Now()))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestStripe_PaymentRefFallsBackToSession(t *testing.T) {
	s := NewStripe(StripeConfig{WebhookSecret: testWebhookSecret})
	payload := []byte(`{"id":"evt_3","object":"event","type":"checkout.session.completed","data":{"object":{` +
		`"id":"cs_test_9","object":"checkout.session","amount_total":1000,"currency":"sgd",` +
		`"metadata":{"workshopId":"1","sessionId":"2","userId":"3"}}}}`)

	ev, err := s.ParseEvent(payload, sign(t, testWebhookSecret, payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "cs_test_9", ev.Checkout.PaymentRef)
}

func TestClampExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, clampExpiry(time.Time{}, now).IsZero())
	assert.Equal(t, now.Add(31*time.Minute), clampExpiry(now.Add(5*time.Minute), now))
	assert.Equal(t, now.Add(2*time.Hour), clampExpiry(now.Add(2*time.Hour), now))
	assert.Equal(t, now.Add(24*time.Hour-time.Minute), clampExpiry(now.Add(48*time.Hour), now))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "checkout_completed", KindCheckoutCompleted.String())
	assert.Equal(t, "unhandled", KindUnhandled.String())
}

func TestCheckoutExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 500, time.UTC)
	assert.True(t, CheckoutExpiry(now, 0).IsZero())
	assert.Equal(t, now.Add(31*time.Minute).Truncate(time.Second), CheckoutExpiry(now, 30*time.Minute))
	assert.Equal(t, now.Add(24*time.Hour-time.Minute).Truncate(time.Second), CheckoutExpiry(now, 48*time.Hour))
}
