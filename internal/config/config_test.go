package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setRequired(t *testing.T) {
	t.Setenv("MONGOURI", "mongodb://localhost:27017/?replicaSet=rs0")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("XENDIT_WEBHOOK_TOKEN", "token")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "1", cfg.Limits.RechargeMin.String())
	assert.Equal(t, "5000", cfg.Limits.RechargeMax.String())
	assert.Equal(t, 30*time.Minute, cfg.PendingOrderTTL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "http://localhost:8080/api/payment/webhook", cfg.NotifyURL())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("RECHARGE_MAX", "200.50")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PUBLIC_BASE_URL", "https://pay.example/")

	cfg, err := Load(zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "200.5", cfg.Limits.RechargeMax.String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "https://pay.example/payment/result", cfg.ReturnURL())
}

func TestLoadRejectsBadLimits(t *testing.T) {
	setRequired(t)
	t.Setenv("RECHARGE_MIN", "100")
	t.Setenv("RECHARGE_MAX", "10")

	_, err := Load(zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestLoadRequiresMongoURI(t *testing.T) {
	setRequired(t)
	t.Setenv("MONGOURI", "")

	_, err := Load(zaptest.NewLogger(t))
	require.Error(t, err)
}
