package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/inkwell/paywall/pkg/config"
)

const testWebhookSecret = "whsec_test_secret"

func testConfig(secretKey, webhookSecret string) *cfgpkg.Config {
	return &cfgpkg.Config{Stripe: cfgpkg.StripeConfig{
		SecretKey:     secretKey,
		WebhookSecret: webhookSecret,
		SiteURL:       "http://localhost:3000",
	}}
}

func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestNew_ValidConfig(t *testing.T) {
	p := New(testConfig("sk_test_abc", testWebhookSecret), zap.NewNop().Sugar())
	require.NoError(t, p.ConfigError())
}

func TestNew_RecordsConfigErrorInsteadOfFailing(t *testing.T) {
	cases := []struct {
		name          string
		secretKey     string
		webhookSecret string
	}{
		{"empty key", "", testWebhookSecret},
		{"bad key prefix", "pk_test_abc", testWebhookSecret},
		{"bad webhook secret prefix", "sk_test_abc", "nothex"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := New(testConfig(tc.secretKey, tc.webhookSecret), zap.NewNop().Sugar())
			require.NotNil(t, p)
			require.ErrorIs(t, p.ConfigError(), ErrNotConfigured)

			_, err := p.ConstructEvent([]byte("{}"), "t=1,v1=deadbeef")
			require.ErrorIs(t, err, ErrNotConfigured)
		})
	}
}

func TestConstructEvent_ValidSignature(t *testing.T) {
	p := New(testConfig("sk_test_abc", testWebhookSecret), zap.NewNop().Sugar())
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated","created":1735689600,"data":{"object":{"id":"sub_1"}}}`)

	event, err := p.ConstructEvent(payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.ID)
	require.Equal(t, "customer.subscription.updated", event.Type)
}

func TestConstructEvent_AcceptsNewerAPIVersion(t *testing.T) {
	p := New(testConfig("sk_test_abc", testWebhookSecret), zap.NewNop().Sugar())
	payload := []byte(`{"id":"evt_2","api_version":"2023-10-16","type":"invoice.payment_succeeded","created":1735689600,"data":{"object":{"id":"in_1"}}}`)

	event, err := p.ConstructEvent(payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	require.Equal(t, "evt_2", event.ID)
}

func TestConstructEvent_WrongSecretRejected(t *testing.T) {
	p := New(testConfig("sk_test_abc", testWebhookSecret), zap.NewNop().Sugar())
	payload := []byte(`{"id":"evt_1"}`)

	_, err := p.ConstructEvent(payload, signPayload(payload, "whsec_other_secret", time.Now()))
	require.Error(t, err)
}

func TestConstructEvent_TamperedPayloadRejected(t *testing.T) {
	p := New(testConfig("sk_test_abc", testWebhookSecret), zap.NewNop().Sugar())
	payload := []byte(`{"id":"evt_1"}`)
	sig := signPayload(payload, testWebhookSecret, time.Now())

	_, err := p.ConstructEvent([]byte(`{"id":"evt_2"}`), sig)
	require.Error(t, err)
}

func TestConstructEvent_MissingWebhookSecret(t *testing.T) {
	p := New(testConfig("sk_test_abc", ""), zap.NewNop().Sugar())
	require.NoError(t, p.ConfigError())

	_, err := p.ConstructEvent([]byte("{}"), "t=1,v1=deadbeef")
	require.ErrorIs(t, err, ErrNotConfigured)
}
