package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeURL_TrimsTrailingSlash(t *testing.T) {
	c := &Config{Stripe: StripeConfig{SiteURL: "https://example.com/"}}
	require.Equal(t, "https://example.com/subscribe", c.SubscribeURL())

	c.Stripe.SiteURL = "https://example.com"
	require.Equal(t, "https://example.com/subscribe", c.SubscribeURL())
}

func TestGateConfig_RetryDelay(t *testing.T) {
	g := GateConfig{RetryDelayMS: 500}
	require.Equal(t, 500*time.Millisecond, g.RetryDelay())
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "testdata/nonexistent.yaml")

	c, err := New()
	require.NoError(t, err)
	require.Equal(t, EnvDev, c.Env)
	require.Equal(t, 8888, c.Server.Port)
	require.Equal(t, 3, c.Gate.MaxAttempts)
	require.Equal(t, 500, c.Gate.RetryDelayMS)
	require.Equal(t, "http://localhost:3000", c.Stripe.SiteURL)
}
