package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"arbitrage/pkg/crypto"

	"github.com/joho/godotenv"
)

// Config holds the full application configuration, struct-of-structs per
// subsystem.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Security     SecurityConfig
	Broker       BrokerConfig
	Coordinator  CoordinatorConfig
	Risk         RiskConfig
	Execution    ExecutionConfig
	Rollover     RolloverConfig
	EOD          EODConfig
	Confirmation ConfirmationConfig
	Logging      LoggingConfig
}

type ServerConfig struct {
	Port int
	Host string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type SecurityConfig struct {
	JWTSecret     string
	EncryptionKey string
}

// BrokerConfig describes the outbound brokerage HTTP gateway.
type BrokerConfig struct {
	BaseURL         string
	APIKey          string
	RequestTimeout  time.Duration
	QuoteTimeout    time.Duration
	QuoteRetries    int
	RateLimitPerSec float64
	RateLimitBurst  float64
}

// InstrumentConfig carries the per-instrument sizing/contract parameters.
type InstrumentConfig struct {
	LotSize             int
	MarginPerLot        float64
	StrikeInterval      float64
	UseMonthlyExpiry    bool
	IsTwoLeg            bool
	RolloverDays        int
	CloseTime           string // "HH:MM" local instrument close time
}

// CoordinatorConfig configures leader election.
type CoordinatorConfig struct {
	Enabled                  bool
	LeaderTTLSeconds         int
	HeartbeatRenewalRatio    float64 // TTL * ratio = renewal interval while leader
	ElectionIntervalSeconds  float64 // poll interval while follower
	SplitBrainCheckEvery     int     // every Nth heartbeat iteration
	HeartbeatStaleWarningSec int
	HeartbeatStaleCriticalSec int
	DBSyncFailureWarningPct  float64
	DBSyncFailureCriticalPct float64
	LeaderChangeWarningPerHr int
	LeaderChangeCriticalPerHr int
	InstanceIDFile           string
}

// RiskConfig configures position sizing and portfolio-level risk gating.
type RiskConfig struct {
	RiskPercent               float64
	VolatilityPercent         float64
	UseVolatilityConstraint   bool
	PortfolioRiskCeilingPct   float64
	PortfolioVolCeilingPct    float64
	BaseEntryDivergencePct    float64
	PyramidDivergencePct      float64
	PyramidMinATRAdvance      float64
	PyramidMaxLevel           int
	Instruments               map[string]InstrumentConfig
}

// ExecutionConfig configures order execution strategy.
type ExecutionConfig struct {
	Strategy             string // simple_limit|progressive
	PartialFillStrategy  string // cancel|wait|reattempt
	HardSlippageLimitPct float64
	LimitOffsetsPct      []float64 // cumulative offsets, e.g. 0,0.5,1.0,1.5
	PollInterval         time.Duration
	AttemptTimeout       time.Duration
	WaitFillWindow       time.Duration
	ReattemptAggressivePct float64
	MarketConfirmWindow  time.Duration
	SignalValidationEnabled bool
	MaxSignalAgeSeconds  int
}

// RolloverConfig configures contract rollover behavior.
type RolloverConfig struct {
	Enabled              bool
	InitialBufferPct     float64
	IncrementPct         float64
	MaxRetries           int
	RetryIntervalSeconds int
}

// EODConfig configures the end-of-day scheduler.
type EODConfig struct {
	Enabled               bool
	InstrumentsEnabled    map[string]bool
	ConditionCheckSeconds int
	ExecutionSeconds      int
	TrackingSeconds       int
	MisfireGraceSeconds   int
	Workers               int
}

// ConfirmationConfig configures the dual-channel confirmation race.
type ConfirmationConfig struct {
	TimeoutSeconds     int
	DialogBinary       string
	TelegramBotToken   string
	TelegramChatID     int64
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the full configuration from the environment, optionally
// preceded by a `.env` file if one is present in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	encryptionKey, err := loadEncryptionKey()
	if err != nil {
		return nil, err
	}

	apiKey, err := loadBrokerAPIKey(encryptionKey)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "portfolio_manager"),
			User:            getEnv("DB_USER", "user"),
			Password:        getEnv("DB_PASSWORD", "password"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 50),
		},
		Security: SecurityConfig{
			JWTSecret:     getEnv("JWT_SECRET", "change-me-in-production"),
			EncryptionKey: encryptionKey,
		},
		Broker: BrokerConfig{
			BaseURL:         getEnv("BROKER_BASE_URL", "http://localhost:5000"),
			APIKey:          apiKey,
			RequestTimeout:  getEnvAsDuration("BROKER_REQUEST_TIMEOUT", 10*time.Second),
			QuoteTimeout:    getEnvAsDuration("BROKER_QUOTE_TIMEOUT", 2*time.Second),
			QuoteRetries:    getEnvAsInt("BROKER_QUOTE_RETRIES", 3),
			RateLimitPerSec: getEnvAsFloat("BROKER_RATE_LIMIT_PER_SEC", 10),
			RateLimitBurst:  getEnvAsFloat("BROKER_RATE_LIMIT_BURST", 20),
		},
		Coordinator: CoordinatorConfig{
			Enabled:                   getEnvAsBool("ENABLE_REDIS", true),
			LeaderTTLSeconds:          getEnvAsInt("LEADER_TTL_SECONDS", 10),
			HeartbeatRenewalRatio:     getEnvAsFloat("HEARTBEAT_RENEWAL_RATIO", 0.5),
			ElectionIntervalSeconds:   getEnvAsFloat("ELECTION_INTERVAL_SECONDS", 2.5),
			SplitBrainCheckEvery:      getEnvAsInt("SPLIT_BRAIN_CHECK_EVERY", 10),
			HeartbeatStaleWarningSec:  getEnvAsInt("HEARTBEAT_STALE_WARNING_SECONDS", 30),
			HeartbeatStaleCriticalSec: getEnvAsInt("HEARTBEAT_STALE_CRITICAL_SECONDS", 60),
			DBSyncFailureWarningPct:   getEnvAsFloat("DB_SYNC_FAILURE_WARNING_PCT", 5.0),
			DBSyncFailureCriticalPct:  getEnvAsFloat("DB_SYNC_FAILURE_CRITICAL_PCT", 10.0),
			LeaderChangeWarningPerHr:  getEnvAsInt("LEADER_CHANGE_WARNING_PER_HOUR", 3),
			LeaderChangeCriticalPerHr: getEnvAsInt("LEADER_CHANGE_CRITICAL_PER_HOUR", 10),
			InstanceIDFile:            getEnv("INSTANCE_ID_FILE", ".redis_instance_id"),
		},
		Risk: RiskConfig{
			RiskPercent:             getEnvAsFloat("RISK_PERCENT", 1.5),
			VolatilityPercent:       getEnvAsFloat("VOLATILITY_PERCENT", 1.0),
			UseVolatilityConstraint: getEnvAsBool("USE_VOLATILITY_CONSTRAINT", false),
			PortfolioRiskCeilingPct: getEnvAsFloat("PORTFOLIO_RISK_CEILING_PCT", 6.0),
			PortfolioVolCeilingPct:  getEnvAsFloat("PORTFOLIO_VOL_CEILING_PCT", 8.0),
			BaseEntryDivergencePct:  getEnvAsFloat("BASE_ENTRY_DIVERGENCE_THRESHOLD", 2.0),
			PyramidDivergencePct:    getEnvAsFloat("PYRAMID_DIVERGENCE_THRESHOLD", 1.0),
			PyramidMinATRAdvance:    getEnvAsFloat("PYRAMID_MIN_ATR_ADVANCE", 1.0),
			PyramidMaxLevel:         getEnvAsInt("PYRAMID_MAX_LEVEL", 6),
			Instruments:             defaultInstruments(),
		},
		Execution: ExecutionConfig{
			Strategy:                getEnv("EXECUTION_STRATEGY", "progressive"),
			PartialFillStrategy:     getEnv("PARTIAL_FILL_STRATEGY", "cancel"),
			HardSlippageLimitPct:    getEnvAsFloat("HARD_SLIPPAGE_LIMIT", 2.0),
			LimitOffsetsPct:         []float64{0, 0.5, 1.0, 1.5},
			PollInterval:            getEnvAsDuration("ORDER_POLL_INTERVAL", 2*time.Second),
			AttemptTimeout:          getEnvAsDuration("ORDER_ATTEMPT_TIMEOUT", 10*time.Second),
			WaitFillWindow:          getEnvAsDuration("PARTIAL_FILL_WAIT_WINDOW", 30*time.Second),
			ReattemptAggressivePct:  getEnvAsFloat("REATTEMPT_AGGRESSIVE_PCT", 0.1),
			MarketConfirmWindow:     getEnvAsDuration("MARKET_CONFIRM_WINDOW", 2*time.Second),
			SignalValidationEnabled: getEnvAsBool("SIGNAL_VALIDATION_ENABLED", true),
			MaxSignalAgeSeconds:     getEnvAsInt("MAX_SIGNAL_AGE_SECONDS", 60),
		},
		Rollover: RolloverConfig{
			Enabled:              getEnvAsBool("ENABLE_AUTO_ROLLOVER", true),
			InitialBufferPct:     getEnvAsFloat("ROLLOVER_INITIAL_BUFFER_PCT", 0.25),
			IncrementPct:         getEnvAsFloat("ROLLOVER_INCREMENT_PCT", 0.05),
			MaxRetries:           getEnvAsInt("ROLLOVER_MAX_RETRIES", 5),
			RetryIntervalSeconds: getEnvAsInt("ROLLOVER_RETRY_INTERVAL_SEC", 3),
		},
		EOD: EODConfig{
			Enabled:               getEnvAsBool("EOD_ENABLED", true),
			InstrumentsEnabled:    map[string]bool{"BANK_NIFTY": true, "GOLDM": true},
			ConditionCheckSeconds: getEnvAsInt("EOD_CONDITION_CHECK_SECONDS", 45),
			ExecutionSeconds:      getEnvAsInt("EOD_EXECUTION_SECONDS", 30),
			TrackingSeconds:       getEnvAsInt("EOD_TRACKING_SECONDS", 15),
			MisfireGraceSeconds:   getEnvAsInt("EOD_MISFIRE_GRACE_SECONDS", 10),
			Workers:               getEnvAsInt("EOD_WORKERS", 4),
		},
		Confirmation: ConfirmationConfig{
			TimeoutSeconds:   getEnvAsInt("CONFIRMATION_TIMEOUT_SECONDS", 30),
			DialogBinary:     getEnv("CONFIRMATION_DIALOG_BINARY", "zenity"),
			TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:   int64(getEnvAsInt("TELEGRAM_CHAT_ID", 0)),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	for name, instr := range cfg.Risk.Instruments {
		if instr.LotSize <= 0 || instr.MarginPerLot <= 0 {
			return nil, fmt.Errorf("instrument %s: lot_size and margin_per_lot must be positive", name)
		}
	}

	return cfg, nil
}

// loadEncryptionKey reads and validates ENCRYPTION_KEY, the AES-256 key
// used to keep the broker API secret encrypted at rest.
func loadEncryptionKey() (string, error) {
	key := getEnv("ENCRYPTION_KEY", "")
	if key == "" {
		return "", fmt.Errorf("ENCRYPTION_KEY is required for encrypting the broker API secret")
	}
	if len(key) != 32 {
		return "", fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	return key, nil
}

// loadBrokerAPIKey resolves the broker API secret. BROKER_API_KEY_ENCRYPTED
// holds the AES-256-GCM ciphertext produced by EncryptBrokerAPIKey, the form
// operators should store in .env/secrets managers; BROKER_API_KEY is a
// plaintext fallback for local development only.
func loadBrokerAPIKey(encryptionKey string) (string, error) {
	if encrypted := getEnv("BROKER_API_KEY_ENCRYPTED", ""); encrypted != "" {
		plaintext, err := crypto.DecryptWithKeyString(encrypted, encryptionKey)
		if err != nil {
			return "", fmt.Errorf("decrypt BROKER_API_KEY_ENCRYPTED: %w", err)
		}
		return plaintext, nil
	}
	return getEnv("BROKER_API_KEY", ""), nil
}

// EncryptBrokerAPIKey encrypts plaintext with the given ENCRYPTION_KEY,
// producing the ciphertext operators set as BROKER_API_KEY_ENCRYPTED.
func EncryptBrokerAPIKey(plaintext, encryptionKey string) (string, error) {
	if err := crypto.ValidateKey([]byte(encryptionKey)); err != nil {
		return "", err
	}
	return crypto.EncryptWithKeyString(plaintext, encryptionKey)
}

// defaultInstruments seeds the two instrument families this system
// trades: index options as a synthetic future, and a single-leg metals
// future.
func defaultInstruments() map[string]InstrumentConfig {
	return map[string]InstrumentConfig{
		"BANK_NIFTY": {
			LotSize:          25,
			MarginPerLot:     120000,
			StrikeInterval:   100,
			UseMonthlyExpiry: true,
			IsTwoLeg:         true,
			RolloverDays:     7,
			CloseTime:        "15:30",
		},
		"GOLDM": {
			LotSize:          10,
			MarginPerLot:     55000,
			StrikeInterval:   0,
			UseMonthlyExpiry: true,
			IsTwoLeg:         false,
			RolloverDays:     8,
			CloseTime:        "23:30",
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
