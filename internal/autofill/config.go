package autofill

import (
	"errors"
	"fmt"
	"time"
)

// BalancePolicy decides which reading wins when several balance-shaped
// texts are on the page at once.
type BalancePolicy string

const (
	// BalanceFirst uses the first text in document order that yields a figure.
	BalanceFirst BalancePolicy = "first"
	// BalanceMax uses the largest figure among all matching texts.
	BalanceMax BalancePolicy = "max"
)

// Config holds every timing and locator setting of the engine.
type Config struct {
	SelectorTimeout     time.Duration
	PollInterval        time.Duration
	KeystrokeDelay      time.Duration
	SettleDelay         time.Duration
	AutocompleteTimeout time.Duration
	BalancePollTimeout  time.Duration
	BalancePhrase       string
	BalancePolicy       BalancePolicy
	PointerFocus        bool
	Locators            map[Field][]Locator
}

func DefaultConfig() Config {
	return Config{
		SelectorTimeout:     8 * time.Second,
		PollInterval:        250 * time.Millisecond,
		KeystrokeDelay:      60 * time.Millisecond,
		SettleDelay:         300 * time.Millisecond,
		AutocompleteTimeout: 6 * time.Second,
		BalancePollTimeout:  8 * time.Second,
		BalancePhrase:       "balance",
		BalancePolicy:       BalanceFirst,
		PointerFocus:        true,
		Locators:            Candidates(DefaultVariants()),
	}
}

func (c Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"selector timeout":     c.SelectorTimeout,
		"poll interval":        c.PollInterval,
		"autocomplete timeout": c.AutocompleteTimeout,
		"balance poll timeout": c.BalancePollTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.KeystrokeDelay < 0 || c.SettleDelay < 0 {
		errs = append(errs, errors.New("keystroke and settle delays must not be negative"))
	}
	if c.BalancePhrase == "" {
		errs = append(errs, errors.New("balance phrase is required"))
	}
	switch c.BalancePolicy {
	case BalanceFirst, BalanceMax:
	default:
		errs = append(errs, fmt.Errorf("unknown balance policy %q", c.BalancePolicy))
	}
	for _, f := range Fields {
		locs := c.Locators[f]
		if len(locs) == 0 {
			errs = append(errs, fmt.Errorf("no locator candidates for %s", f))
			continue
		}
		for _, loc := range locs {
			if _, _, err := loc.Query(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", f, err))
			}
		}
	}
	return errors.Join(errs...)
}
