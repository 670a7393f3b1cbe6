package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoad_RequiresEncryptionKey(t *testing.T) {
	clearEnv(t, "ENCRYPTION_KEY")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsEncryptionKeyOfWrongLength(t *testing.T) {
	clearEnv(t, "ENCRYPTION_KEY")
	os.Setenv("ENCRYPTION_KEY", "too-short")
	t.Cleanup(func() { os.Unsetenv("ENCRYPTION_KEY") })

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_PopulatesDefaultsWithValidEncryptionKey(t *testing.T) {
	clearEnv(t, "ENCRYPTION_KEY", "SERVER_PORT", "LOG_LEVEL")
	os.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901")
	t.Cleanup(func() { os.Unsetenv("ENCRYPTION_KEY") })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "progressive", cfg.Execution.Strategy)
	assert.Equal(t, []float64{0, 0.5, 1.0, 1.5}, cfg.Execution.LimitOffsetsPct)
	assert.Contains(t, cfg.Risk.Instruments, "BANK_NIFTY")
	assert.Contains(t, cfg.Risk.Instruments, "GOLDM")
}

func TestGetEnv_FallsBackToDefaultWhenUnset(t *testing.T) {
	clearEnv(t, "TEST_STR_KEY")
	assert.Equal(t, "fallback", getEnv("TEST_STR_KEY", "fallback"))

	os.Setenv("TEST_STR_KEY", "actual")
	t.Cleanup(func() { os.Unsetenv("TEST_STR_KEY") })
	assert.Equal(t, "actual", getEnv("TEST_STR_KEY", "fallback"))
}

func TestGetEnvAsInt_FallsBackOnParseError(t *testing.T) {
	os.Setenv("TEST_INT_KEY", "not-an-int")
	t.Cleanup(func() { os.Unsetenv("TEST_INT_KEY") })
	assert.Equal(t, 42, getEnvAsInt("TEST_INT_KEY", 42))
}

func TestGetEnvAsFloat_ParsesValidValue(t *testing.T) {
	os.Setenv("TEST_FLOAT_KEY", "3.25")
	t.Cleanup(func() { os.Unsetenv("TEST_FLOAT_KEY") })
	assert.Equal(t, 3.25, getEnvAsFloat("TEST_FLOAT_KEY", 0))
}

func TestGetEnvAsBool_ParsesValidValue(t *testing.T) {
	os.Setenv("TEST_BOOL_KEY", "false")
	t.Cleanup(func() { os.Unsetenv("TEST_BOOL_KEY") })
	assert.Equal(t, false, getEnvAsBool("TEST_BOOL_KEY", true))
}

func TestGetEnvAsDuration_ParsesValidValue(t *testing.T) {
	os.Setenv("TEST_DURATION_KEY", "5s")
	t.Cleanup(func() { os.Unsetenv("TEST_DURATION_KEY") })
	assert.Equal(t, 5*time.Second, getEnvAsDuration("TEST_DURATION_KEY", time.Second))
}

func TestDefaultInstruments_BankNiftyIsTwoLegAndGoldmIsSingleLeg(t *testing.T) {
	instruments := defaultInstruments()
	assert.True(t, instruments["BANK_NIFTY"].IsTwoLeg)
	assert.False(t, instruments["GOLDM"].IsTwoLeg)
}

const testEncryptionKey = "01234567890123456789012345678901"

func TestLoadBrokerAPIKey_PlaintextFallbackWhenNoEncryptedValueSet(t *testing.T) {
	clearEnv(t, "BROKER_API_KEY_ENCRYPTED", "BROKER_API_KEY")
	os.Setenv("BROKER_API_KEY", "plain-secret")
	t.Cleanup(func() { os.Unsetenv("BROKER_API_KEY") })

	key, err := loadBrokerAPIKey(testEncryptionKey)
	require.NoError(t, err)
	assert.Equal(t, "plain-secret", key)
}

func TestLoadBrokerAPIKey_DecryptsEncryptedValue(t *testing.T) {
	clearEnv(t, "BROKER_API_KEY_ENCRYPTED", "BROKER_API_KEY")

	ciphertext, err := EncryptBrokerAPIKey("super-secret", testEncryptionKey)
	require.NoError(t, err)

	os.Setenv("BROKER_API_KEY_ENCRYPTED", ciphertext)
	t.Cleanup(func() { os.Unsetenv("BROKER_API_KEY_ENCRYPTED") })

	key, err := loadBrokerAPIKey(testEncryptionKey)
	require.NoError(t, err)
	assert.Equal(t, "super-secret", key)
}

func TestLoadBrokerAPIKey_InvalidCiphertextErrors(t *testing.T) {
	clearEnv(t, "BROKER_API_KEY_ENCRYPTED", "BROKER_API_KEY")
	os.Setenv("BROKER_API_KEY_ENCRYPTED", "not-valid-ciphertext")
	t.Cleanup(func() { os.Unsetenv("BROKER_API_KEY_ENCRYPTED") })

	_, err := loadBrokerAPIKey(testEncryptionKey)
	assert.Error(t, err)
}

func TestEncryptBrokerAPIKey_RejectsWrongKeyLength(t *testing.T) {
	_, err := EncryptBrokerAPIKey("secret", "too-short")
	assert.Error(t, err)
}

func TestLoad_DecryptsBrokerAPIKeyFromEncryptedEnv(t *testing.T) {
	clearEnv(t, "ENCRYPTION_KEY", "BROKER_API_KEY_ENCRYPTED", "BROKER_API_KEY")
	os.Setenv("ENCRYPTION_KEY", testEncryptionKey)
	t.Cleanup(func() { os.Unsetenv("ENCRYPTION_KEY") })

	ciphertext, err := EncryptBrokerAPIKey("live-broker-secret", testEncryptionKey)
	require.NoError(t, err)
	os.Setenv("BROKER_API_KEY_ENCRYPTED", ciphertext)
	t.Cleanup(func() { os.Unsetenv("BROKER_API_KEY_ENCRYPTED") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "live-broker-secret", cfg.Broker.APIKey)
}
