package config

import (
	"fmt"
	"os"
	"time"
)

// DatabaseConfig PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// FeeConfig fee schedule constants, minor units unless noted.
type FeeConfig struct {
	BankFlatFee        int64   // minimum fee for bank transfers
	BankPercentRate    float64 // e.g. 0.0075
	BankFeeCap         int64   // maximum fee for bank transfers
	CardPercentRate    float64 // e.g. 0.029
	CardFixedFee       int64   // e.g. 30
	BankSettlementDays int     // business days until settlement
	CardSettlementDays int
}

// RiskConfig scoring weights and thresholds. Policy is tuned here, not in code.
type RiskConfig struct {
	// Velocity
	HourlyTxLimit     int
	HourlyTxWeight    int
	HourlyVolumeLimit int64
	HourlyVolWeight   int
	DailyVolumeLimit  int64
	DailyVolWeight    int

	// Behavior
	OffHoursStart      int // start of the quiet window, hour of day
	OffHoursEnd        int // end of the quiet window, hour of day
	OffHoursWeight     int
	AvgAmountMultiple  float64
	AvgAmountWeight    int
	InstrumentLimit24h int
	InstrumentWeight   int

	// Network / threat intel
	CriticalOriginWeight int
	HighOriginWeight     int
	MediumOriginWeight   int
	ProxyWeight          int
	BlocklistWeight      int

	// Device fingerprint
	SuspiciousAgentWeight int
	MissingPrintWeight    int
	MalformedPrintWeight  int
	MinFingerprintLen     int

	// Amount pattern
	RoundAmountFloor   int64
	RoundAmountWeight  int
	ReportingThreshold int64
	ReportingMargin    int64
	StructuringWeight  int
	EscalationWeight   int

	// Time pattern
	LateNightWeight     int
	HourDeviationLimit  int
	HourDeviationWeight int

	// Action thresholds on the summed score
	BlockThreshold     int
	ReviewThreshold    int
	ChallengeThreshold int
	ManualReviewScore  int

	DenyListTTL time.Duration
}

// ComplianceConfig deduction weights and the compliant floor.
type ComplianceConfig struct {
	StorageDeduction      int
	TransmissionDeduction int
	AccessDeduction       int
	AuthDeduction         int
	LoggingDeduction      int
	CompliantFloor        int
	MinTLSVersion         string
}

// SchedulerConfig batch sweep settings.
type SchedulerConfig struct {
	SweepInterval     time.Duration
	DispatchBatchSize int
	DispatchWorkers   int // bounded fan-out within a batch
	TenantLeaseTTL    time.Duration
	SettlementSLA     time.Duration // processing older than this goes to manual review
}

// RateLimitConfig sliding-window limiter settings.
type RateLimitConfig struct {
	Window    time.Duration
	MaxEvents int
	Retention time.Duration // entries older than this are GC'd
}

// ProvidersConfig external service endpoints.
type ProvidersConfig struct {
	BankLinkBaseURL    string
	BankLinkAPIKey     string
	ACHBaseURL         string
	ACHAPIKey          string
	ThreatIntelBaseURL string
	ThreatIntelTTL     time.Duration
}

// MQTTConfig push-notification broker settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Topic    string // base topic for tenant push notifications
}

// Config top-level engine configuration.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Fees       FeeConfig
	Risk       RiskConfig
	Compliance ComplianceConfig
	Scheduler  SchedulerConfig
	RateLimit  RateLimitConfig
	Providers  ProvidersConfig
	MQTT       MQTTConfig

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "rentpay")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Fees.BankFlatFee = getEnvInt64("FEE_BANK_FLAT", 75)
	cfg.Fees.BankPercentRate = getEnvFloat("FEE_BANK_RATE", 0.0075)
	cfg.Fees.BankFeeCap = getEnvInt64("FEE_BANK_CAP", 500)
	cfg.Fees.CardPercentRate = getEnvFloat("FEE_CARD_RATE", 0.029)
	cfg.Fees.CardFixedFee = getEnvInt64("FEE_CARD_FIXED", 30)
	cfg.Fees.BankSettlementDays = getEnvInt("FEE_BANK_SETTLE_DAYS", 2)
	cfg.Fees.CardSettlementDays = getEnvInt("FEE_CARD_SETTLE_DAYS", 1)

	cfg.Risk.HourlyTxLimit = getEnvInt("RISK_HOURLY_TX_LIMIT", 5)
	cfg.Risk.HourlyTxWeight = getEnvInt("RISK_HOURLY_TX_WEIGHT", 30)
	cfg.Risk.HourlyVolumeLimit = getEnvInt64("RISK_HOURLY_VOLUME_LIMIT", 500000)
	cfg.Risk.HourlyVolWeight = getEnvInt("RISK_HOURLY_VOL_WEIGHT", 25)
	cfg.Risk.DailyVolumeLimit = getEnvInt64("RISK_DAILY_VOLUME_LIMIT", 2000000)
	cfg.Risk.DailyVolWeight = getEnvInt("RISK_DAILY_VOL_WEIGHT", 20)
	cfg.Risk.OffHoursStart = getEnvInt("RISK_OFF_HOURS_START", 22)
	cfg.Risk.OffHoursEnd = getEnvInt("RISK_OFF_HOURS_END", 6)
	cfg.Risk.OffHoursWeight = getEnvInt("RISK_OFF_HOURS_WEIGHT", 10)
	cfg.Risk.AvgAmountMultiple = getEnvFloat("RISK_AVG_AMOUNT_MULTIPLE", 5.0)
	cfg.Risk.AvgAmountWeight = getEnvInt("RISK_AVG_AMOUNT_WEIGHT", 25)
	cfg.Risk.InstrumentLimit24h = getEnvInt("RISK_INSTRUMENT_LIMIT_24H", 3)
	cfg.Risk.InstrumentWeight = getEnvInt("RISK_INSTRUMENT_WEIGHT", 20)
	cfg.Risk.CriticalOriginWeight = getEnvInt("RISK_CRITICAL_ORIGIN_WEIGHT", 50)
	cfg.Risk.HighOriginWeight = getEnvInt("RISK_HIGH_ORIGIN_WEIGHT", 35)
	cfg.Risk.MediumOriginWeight = getEnvInt("RISK_MEDIUM_ORIGIN_WEIGHT", 20)
	cfg.Risk.ProxyWeight = getEnvInt("RISK_PROXY_WEIGHT", 15)
	cfg.Risk.BlocklistWeight = getEnvInt("RISK_BLOCKLIST_WEIGHT", 100)
	cfg.Risk.SuspiciousAgentWeight = getEnvInt("RISK_SUSPICIOUS_AGENT_WEIGHT", 40)
	cfg.Risk.MissingPrintWeight = getEnvInt("RISK_MISSING_PRINT_WEIGHT", 15)
	cfg.Risk.MalformedPrintWeight = getEnvInt("RISK_MALFORMED_PRINT_WEIGHT", 25)
	cfg.Risk.MinFingerprintLen = getEnvInt("RISK_MIN_FINGERPRINT_LEN", 16)
	cfg.Risk.RoundAmountFloor = getEnvInt64("RISK_ROUND_AMOUNT_FLOOR", 100000)
	cfg.Risk.RoundAmountWeight = getEnvInt("RISK_ROUND_AMOUNT_WEIGHT", 15)
	cfg.Risk.ReportingThreshold = getEnvInt64("RISK_REPORTING_THRESHOLD", 1000000)
	cfg.Risk.ReportingMargin = getEnvInt64("RISK_REPORTING_MARGIN", 50000)
	cfg.Risk.StructuringWeight = getEnvInt("RISK_STRUCTURING_WEIGHT", 20)
	cfg.Risk.EscalationWeight = getEnvInt("RISK_ESCALATION_WEIGHT", 15)
	cfg.Risk.LateNightWeight = getEnvInt("RISK_LATE_NIGHT_WEIGHT", 15)
	cfg.Risk.HourDeviationLimit = getEnvInt("RISK_HOUR_DEVIATION_LIMIT", 8)
	cfg.Risk.HourDeviationWeight = getEnvInt("RISK_HOUR_DEVIATION_WEIGHT", 10)
	cfg.Risk.BlockThreshold = getEnvInt("RISK_BLOCK_THRESHOLD", 80)
	cfg.Risk.ReviewThreshold = getEnvInt("RISK_REVIEW_THRESHOLD", 60)
	cfg.Risk.ChallengeThreshold = getEnvInt("RISK_CHALLENGE_THRESHOLD", 40)
	cfg.Risk.ManualReviewScore = getEnvInt("RISK_MANUAL_REVIEW_SCORE", 70)
	cfg.Risk.DenyListTTL = getEnvDuration("RISK_DENYLIST_TTL", 24*time.Hour)

	cfg.Compliance.StorageDeduction = getEnvInt("COMPLIANCE_STORAGE_DEDUCTION", 10)
	cfg.Compliance.TransmissionDeduction = getEnvInt("COMPLIANCE_TRANSMISSION_DEDUCTION", 15)
	cfg.Compliance.AccessDeduction = getEnvInt("COMPLIANCE_ACCESS_DEDUCTION", 12)
	cfg.Compliance.AuthDeduction = getEnvInt("COMPLIANCE_AUTH_DEDUCTION", 8)
	cfg.Compliance.LoggingDeduction = getEnvInt("COMPLIANCE_LOGGING_DEDUCTION", 5)
	cfg.Compliance.CompliantFloor = getEnvInt("COMPLIANCE_FLOOR", 80)
	cfg.Compliance.MinTLSVersion = getEnv("COMPLIANCE_MIN_TLS", "1.2")

	cfg.Scheduler.SweepInterval = getEnvDuration("SCHEDULER_SWEEP_INTERVAL", 5*time.Minute)
	cfg.Scheduler.DispatchBatchSize = getEnvInt("SCHEDULER_DISPATCH_BATCH", 50)
	cfg.Scheduler.DispatchWorkers = getEnvInt("SCHEDULER_DISPATCH_WORKERS", 8)
	cfg.Scheduler.TenantLeaseTTL = getEnvDuration("SCHEDULER_TENANT_LEASE_TTL", 2*time.Minute)
	cfg.Scheduler.SettlementSLA = getEnvDuration("SETTLEMENT_SLA", 120*time.Hour)

	cfg.RateLimit.Window = getEnvDuration("RATELIMIT_WINDOW", time.Minute)
	cfg.RateLimit.MaxEvents = getEnvInt("RATELIMIT_MAX_EVENTS", 30)
	cfg.RateLimit.Retention = getEnvDuration("RATELIMIT_RETENTION", time.Hour)

	cfg.Providers.BankLinkBaseURL = getEnv("BANKLINK_BASE_URL", "https://banklink.example.com")
	cfg.Providers.BankLinkAPIKey = getEnv("BANKLINK_API_KEY", "")
	cfg.Providers.ACHBaseURL = getEnv("ACH_BASE_URL", "https://ach.example.com")
	cfg.Providers.ACHAPIKey = getEnv("ACH_API_KEY", "")
	cfg.Providers.ThreatIntelBaseURL = getEnv("THREAT_INTEL_BASE_URL", "https://intel.example.com")
	cfg.Providers.ThreatIntelTTL = getEnvDuration("THREAT_INTEL_TTL", 15*time.Minute)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "rentpay-engine")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))
	cfg.MQTT.Topic = getEnv("MQTT_PUSH_TOPIC", "rentpay/notify")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		var result int64
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
