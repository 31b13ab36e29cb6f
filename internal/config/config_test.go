package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envFrom(map[string]string{"DB_DSN": "postgres://localhost/clinic"}))
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, DMProviderWhatsApp, cfg.DirectMessage.Provider)
	assert.Equal(t, ":8080", cfg.API.Port)
	assert.Equal(t, "/api/v0", cfg.API.BasePath)
	assert.Equal(t, 500, cfg.Notification.QueueSize)
	assert.Equal(t, 10, cfg.Notification.MaxWorkers)
	assert.Equal(t, time.Second, cfg.Escalation.BatchDelay)
	assert.False(t, cfg.Escalation.AutoEscalateCritical)
	assert.Equal(t, "critical_alerts", cfg.Kafka.Topic)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestFromEnvMissingDSN(t *testing.T) {
	_, err := FromEnv(envFrom(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
}

func TestFromEnvMemoryDriverNeedsNoDSN(t *testing.T) {
	cfg, err := FromEnv(envFrom(map[string]string{
		"STORE_DRIVER":           "memory",
		"ESCALATION_BATCH_DELAY": "250ms",
		"AUTO_ESCALATE_CRITICAL": "true",
		"EMAIL_SMTP_PORT":        "587",
		"EMAIL_USERNAME":         "alerts@clinic.test",
	}))
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.Escalation.BatchDelay)
	assert.True(t, cfg.Escalation.AutoEscalateCritical)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, "alerts@clinic.test", cfg.Email.FromAddress)
}

func TestFromEnvProviderRequirements(t *testing.T) {
	_, err := FromEnv(envFrom(map[string]string{
		"STORE_DRIVER": "memory",
		"DM_PROVIDER":  "twilio",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWILIO_ACCOUNT_SID")

	_, err = FromEnv(envFrom(map[string]string{
		"STORE_DRIVER": "memory",
		"DM_PROVIDER":  "pager",
	}))
	require.Error(t, err)
}

func TestFromEnvInvalidDelay(t *testing.T) {
	_, err := FromEnv(envFrom(map[string]string{
		"STORE_DRIVER":           "memory",
		"ESCALATION_BATCH_DELAY": "soon",
	}))
	require.Error(t, err)
}

func TestFromEnvTelegramRateLimit(t *testing.T) {
	base := map[string]string{"STORE_DRIVER": "memory"}
	cfg, err := FromEnv(envFrom(base))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Telegram.RateLimit)

	for _, v := range []string{"0", "-3", "fast"} {
		env := map[string]string{"STORE_DRIVER": "memory", "TELEGRAM_RATE_LIMIT": v}
		_, err := FromEnv(envFrom(env))
		require.Error(t, err, v)
		assert.Contains(t, err.Error(), "TELEGRAM_RATE_LIMIT")
	}

	cfg, err = FromEnv(envFrom(map[string]string{"STORE_DRIVER": "memory", "TELEGRAM_RATE_LIMIT": "5"}))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Telegram.RateLimit)
}
