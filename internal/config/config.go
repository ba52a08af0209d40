package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgnsrekt/bankfill/internal/autofill"
)

// Config holds all configuration for bankfill.
type Config struct {
	// CDP connection settings
	CDPAddress    string
	CDPPort       int
	TabURLFilter  string
	EvalTimeoutMS int

	// Control API
	BindAddr         string
	PortAutoFallback bool
	PortCandidates   []string

	// Logging and storage
	LogLevel    string
	LogFile     string
	SnapshotDir string
	JournalDir  string

	NtfyEndpoint string

	TriggerDebounceMS int

	// Autofill engine
	SelectorTimeoutMS     int
	PollIntervalMS        int
	KeystrokeDelayMS      int
	SettleDelayMS         int
	AutocompleteTimeoutMS int
	BalanceTimeoutMS      int
	BalancePhrase         string
	BalancePolicy         string
	PointerFocus          bool
	InputMode             string
	VariantsFile          string

	// Optional browser launch
	BrowserLaunch     bool
	BrowserStartURL   string
	BrowserProfileDir string
	BrowserPath       string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	defaults := autofill.DefaultConfig()
	cfg := &Config{
		CDPAddress:    getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:       getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		TabURLFilter:  getEnvOrDefault("CONTROLLER_TAB_URL_FILTER", "torn.com/factions.php"),
		EvalTimeoutMS: getEnvIntOrDefault("CONTROLLER_EVAL_TIMEOUT_MS", 5000),

		BindAddr:         getEnvOrDefault("CONTROLLER_BIND_ADDR", "127.0.0.1:8190"),
		PortAutoFallback: getEnvBoolOrDefault("CONTROLLER_PORT_AUTO_FALLBACK", true),
		PortCandidates:   getEnvListOrDefault("CONTROLLER_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),

		LogLevel:    strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFile:     getEnvOrDefault("LOG_FILE", "logs/bankfill.log"),
		SnapshotDir: getEnvOrDefault("SNAPSHOT_DIR", "./snapshots"),
		JournalDir:  getEnvOrDefault("JOURNAL_DIR", "./journal"),

		NtfyEndpoint: getEnvOrDefault("NTFY_ENDPOINT", ""),

		TriggerDebounceMS: getEnvIntOrDefault("TRIGGER_DEBOUNCE_MS", 1500),

		SelectorTimeoutMS:     getEnvIntOrDefault("AUTOFILL_SELECTOR_TIMEOUT_MS", millis(defaults.SelectorTimeout)),
		PollIntervalMS:        getEnvIntOrDefault("AUTOFILL_POLL_INTERVAL_MS", millis(defaults.PollInterval)),
		KeystrokeDelayMS:      getEnvIntOrDefault("AUTOFILL_KEYSTROKE_DELAY_MS", millis(defaults.KeystrokeDelay)),
		SettleDelayMS:         getEnvIntOrDefault("AUTOFILL_SETTLE_DELAY_MS", millis(defaults.SettleDelay)),
		AutocompleteTimeoutMS: getEnvIntOrDefault("AUTOFILL_AUTOCOMPLETE_TIMEOUT_MS", millis(defaults.AutocompleteTimeout)),
		BalanceTimeoutMS:      getEnvIntOrDefault("AUTOFILL_BALANCE_TIMEOUT_MS", millis(defaults.BalancePollTimeout)),
		BalancePhrase:         getEnvOrDefault("AUTOFILL_BALANCE_PHRASE", defaults.BalancePhrase),
		BalancePolicy:         strings.ToLower(getEnvOrDefault("AUTOFILL_BALANCE_POLICY", string(defaults.BalancePolicy))),
		PointerFocus:          getEnvBoolOrDefault("AUTOFILL_POINTER_FOCUS", defaults.PointerFocus),
		InputMode:             strings.ToLower(getEnvOrDefault("AUTOFILL_INPUT_MODE", "synthetic")),
		VariantsFile:          getEnvOrDefault("AUTOFILL_VARIANTS_FILE", ""),

		BrowserLaunch:     getEnvBoolOrDefault("BROWSER_LAUNCH", false),
		BrowserStartURL:   getEnvOrDefault("BROWSER_START_URL", "https://www.torn.com/factions.php?step=your#/tab=controls"),
		BrowserProfileDir: getEnvOrDefault("BROWSER_PROFILE_DIR", "./chrome-profile"),
		BrowserPath:       getEnvOrDefault("BROWSER_PATH", ""),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.TriggerDebounceMS < 0 {
		cfg.TriggerDebounceMS = 0
	}
	return cfg, nil
}

// CDPURL returns the DevTools HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

func (c *Config) TriggerDebounce() time.Duration {
	return time.Duration(c.TriggerDebounceMS) * time.Millisecond
}

// Autofill builds the engine configuration. Locators come from the variants
// file when one is set, otherwise from the built-in variants.
func (c *Config) Autofill() (autofill.Config, error) {
	out := autofill.Config{
		SelectorTimeout:     ms(c.SelectorTimeoutMS),
		PollInterval:        ms(c.PollIntervalMS),
		KeystrokeDelay:      ms(c.KeystrokeDelayMS),
		SettleDelay:         ms(c.SettleDelayMS),
		AutocompleteTimeout: ms(c.AutocompleteTimeoutMS),
		BalancePollTimeout:  ms(c.BalanceTimeoutMS),
		BalancePhrase:       c.BalancePhrase,
		BalancePolicy:       autofill.BalancePolicy(c.BalancePolicy),
		PointerFocus:        c.PointerFocus,
	}

	variants, err := c.Variants()
	if err != nil {
		return autofill.Config{}, err
	}
	out.Locators = autofill.Candidates(variants)

	if err := out.Validate(); err != nil {
		return autofill.Config{}, fmt.Errorf("autofill config: %w", err)
	}
	return out, nil
}

// Variants returns the UI variants from the variants file, or the built-in
// ones when no file is configured.
func (c *Config) Variants() ([]autofill.Variant, error) {
	if c.VariantsFile == "" {
		return autofill.DefaultVariants(), nil
	}
	return LoadVariants(c.VariantsFile)
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func millis(d time.Duration) int { return int(d / time.Millisecond) }

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		slog.Warn("ignoring non-integer env value", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		slog.Warn("ignoring non-boolean env value", "key", key, "value", val)
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma-separated value, dropping empty items.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
