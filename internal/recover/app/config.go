package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/varden/recover/internal/recover/domain"
	"github.com/varden/recover/internal/recover/idm"
)

type Config struct {
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-key sweep interval (default: 1h)

	TokenSecret     string        // Optional: signing secret literal; SecretFile wins when unset
	TokenSecretFile string        // Optional: path to file holding the signing secret
	TokenIssuer     string        // Optional: issuer claim on minted tokens (default: recover)
	AuthScheme      string        // Optional: Authorization header scheme (default: JWT)
	TokenExpiry     time.Duration // Optional: capability token lifetime (default: 10m)
	TokenLeeway     time.Duration // Optional: clock-skew allowance on verification (default: 5s)

	NonceLength int           // Optional: one-time code length (default: 6)
	NonceTTL    time.Duration // Optional: one-time code lifetime (default: 10m)

	RateLimitDisabled bool // Optional: bypass the exponential limiter (local runs only)

	StoreDriver  string // Store driver (memory, sqlite) (default: memory)
	DatabaseFile string // Path to SQLite database file (default: ./recover.db)

	IDMDriver       string        // Directory driver (mock, cerebrum) (default: mock)
	CerebrumURL     string        // Required for cerebrum: API base URL
	CerebrumAPIKey  string        // Required for cerebrum: X-API-Key value
	CerebrumTimeout time.Duration // Optional: directory request timeout (default: 10s)

	SMSDriver      string        // SMS driver (null, gateway) (default: null)
	GatewayURL     string        // Required for gateway: dispatch endpoint
	GatewaySystem  string        // Required for gateway: system credential
	GatewayUser    string        // Required for gateway: account credential
	GatewayPass    string        // Required for gateway: password credential
	GatewayTimeout time.Duration // Optional: gateway request timeout (default: 10s)

	SMSDefaultRegion    string   // Region resolving bare national numbers (default: NO)
	SMSWhitelistRegions []string // Optional: restrict sends to these regions
	SMSWhitelistNumbers []string // Optional: restrict sends to these numbers

	NonceMessage     string // Template for the one-time-code SMS, one %s
	UsernamesMessage string // Template for the username-listing SMS, one %s

	Eligibility idm.Config // Directory eligibility rule set
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),

		TokenSecret:     os.Getenv("RECOVER_TOKEN_SECRET"),
		TokenSecretFile: os.Getenv("RECOVER_TOKEN_SECRET_FILE"),
		TokenIssuer:     getEnvOrDefault("RECOVER_TOKEN_ISSUER", "recover"),
		AuthScheme:      getEnvOrDefault("RECOVER_AUTH_SCHEME", "JWT"),
		TokenExpiry:     getEnvDurationOrDefault("RECOVER_TOKEN_EXPIRY", 10*time.Minute),
		TokenLeeway:     getEnvDurationOrDefault("RECOVER_TOKEN_LEEWAY", 5*time.Second),

		NonceLength: getEnvIntOrDefault("RECOVER_NONCE_LENGTH", 6),
		NonceTTL:    getEnvDurationOrDefault("RECOVER_NONCE_TTL", 10*time.Minute),

		RateLimitDisabled: getEnvBoolOrDefault("RECOVER_RATE_LIMIT_DISABLED", false),

		StoreDriver:  getEnvOrDefault("RECOVER_STORE_DRIVER", "memory"),
		DatabaseFile: getEnvOrDefault("RECOVER_DATABASE_FILE", "recover.db"),

		IDMDriver:       getEnvOrDefault("RECOVER_IDM_DRIVER", "mock"),
		CerebrumURL:     os.Getenv("RECOVER_CEREBRUM_URL"),
		CerebrumAPIKey:  os.Getenv("RECOVER_CEREBRUM_API_KEY"),
		CerebrumTimeout: getEnvDurationOrDefault("RECOVER_CEREBRUM_TIMEOUT", 10*time.Second),

		SMSDriver:      getEnvOrDefault("RECOVER_SMS_DRIVER", "null"),
		GatewayURL:     os.Getenv("RECOVER_GATEWAY_URL"),
		GatewaySystem:  os.Getenv("RECOVER_GATEWAY_SYSTEM"),
		GatewayUser:    os.Getenv("RECOVER_GATEWAY_USER"),
		GatewayPass:    os.Getenv("RECOVER_GATEWAY_PASSWORD"),
		GatewayTimeout: getEnvDurationOrDefault("RECOVER_GATEWAY_TIMEOUT", 10*time.Second),

		SMSDefaultRegion:    getEnvOrDefault("RECOVER_SMS_DEFAULT_REGION", "NO"),
		SMSWhitelistRegions: getEnvList("RECOVER_SMS_WHITELIST_REGIONS"),
		SMSWhitelistNumbers: getEnvList("RECOVER_SMS_WHITELIST_NUMBERS"),

		NonceMessage: getEnvOrDefault("RECOVER_NONCE_MESSAGE",
			"Your one-time code: %s"),
		UsernamesMessage: getEnvOrDefault("RECOVER_USERNAMES_MESSAGE",
			"Your usernames: %s"),
	}

	rules, err := parseContactRules(getEnvList("RECOVER_CONTACT_RULES"))
	if err != nil {
		return Config{}, err
	}
	if len(rules) == 0 {
		rules = []domain.ContactRule{
			{System: "FS", Type: "MOBILE", DelayDays: 0},
			{System: "SAP", Type: "MOBILE", DelayDays: 0},
		}
	}

	idTypes := getEnvList("RECOVER_PERSON_ID_TYPES")
	if len(idTypes) == 0 {
		idTypes = []string{"national-id-number", "student-number"}
	}

	cfg.Eligibility = idm.Config{
		PersonIDTypes:          idTypes,
		ReservedGroups:         getEnvList("RECOVER_RESERVED_GROUPS"),
		ContactRules:           rules,
		FreshDays:              getEnvIntOrDefault("RECOVER_FRESH_DAYS", 10),
		AffiliationGraceDays:   getEnvIntOrDefault("RECOVER_AFFILIATION_GRACE_DAYS", 0),
		SourceSystemPriorities: getEnvList("RECOVER_SOURCE_SYSTEM_PRIORITIES"),
		AcceptedQuarantines:    getEnvList("RECOVER_ACCEPTED_QUARANTINES"),
	}

	return cfg, nil
}

// parseContactRules reads "<system>:<type>[:<delay-days>]" entries.
func parseContactRules(entries []string) ([]domain.ContactRule, error) {
	rules := make([]domain.ContactRule, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("app: malformed contact rule %q", entry)
		}

		rule := domain.ContactRule{System: parts[0], Type: parts[1]}
		if len(parts) == 3 {
			delay, err := strconv.Atoi(parts[2])
			if err != nil || delay < 0 {
				return nil, fmt.Errorf("app: malformed contact rule delay %q", entry)
			}
			rule.DelayDays = delay
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are read as minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvList splits a comma-separated variable, trimming blanks.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
