package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 8, cfg.FulfillmentWorkers)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9000"
kafka_brokers: ["k1:9092", "k2:9092"]
auto_migrate: true
razorpay:
  key_id: rzp_test
  key_secret: from-file
fulfillment_workers: 2
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RAZORPAY_KEY_SECRET", "from-env")
	t.Setenv("KAFKA_BROKERS", " a:1, ,b:2 ")
	t.Setenv("FULFILLMENT_WORKERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "rzp_test", cfg.Razorpay.KeyID)
	assert.Equal(t, "from-env", cfg.Razorpay.KeySecret)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.KafkaBrokers)
	assert.Equal(t, 2, cfg.FulfillmentWorkers)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BadValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("FULFILLMENT_WORKERS", "many")
	_, err := Load()
	assert.ErrorContains(t, err, "FULFILLMENT_WORKERS")

	t.Setenv("FULFILLMENT_WORKERS", "")
	t.Setenv("AUTO_MIGRATE", "maybe")
	_, err = Load()
	assert.ErrorContains(t, err, "AUTO_MIGRATE")
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	err := cfg.Validate()
	assert.ErrorContains(t, err, "RAZORPAY_KEY_SECRET")

	cfg.Razorpay.KeySecret = "s"
	assert.NoError(t, cfg.Validate())
	cfg.KafkaBrokers = nil
	assert.ErrorContains(t, cfg.Validate(), "KAFKA_BROKERS")
}

func TestValidateWorker(t *testing.T) {
	cfg := defaults()
	assert.NoError(t, cfg.ValidateWorker())

	cfg.FulfillmentWorkers = 0
	cfg.RedisAddr = ""
	err := cfg.ValidateWorker()
	assert.ErrorContains(t, err, "FULFILLMENT_WORKERS")
	assert.ErrorContains(t, err, "REDIS_ADDR")
}
