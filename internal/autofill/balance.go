package autofill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// An optional "$", then either comma-grouped thousands or a bare run of
// digits. The grouped form is tried first so "1,000,000" is read whole.
var balancePattern = regexp.MustCompile(`\$?\s?(\d{1,3}(?:,\d{3})+|\d+)`)

// ParseBalance extracts the first currency figure from text.
func ParseBalance(text string) (int64, bool) {
	m := balancePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ReadBalance polls the page for text containing phrase and returns the
// figure it carries.
func ReadBalance(ctx context.Context, doc Document, phrase string, policy BalancePolicy, timeout, interval time.Duration) (int64, error) {
	balance, err := pollUntil(ctx, timeout, interval, func(ctx context.Context) (int64, bool) {
		texts, err := doc.FindText(ctx, phrase)
		if err != nil {
			slog.Debug("autofill balance probe failed", "phrase", phrase, "error", err)
			return 0, false
		}
		return pickBalance(texts, policy)
	})
	if err != nil {
		if errors.Is(err, errPollTimeout) {
			return 0, newError(KindBalanceUnresolved, fmt.Sprintf("could not read the %s within %s", phrase, timeout), nil)
		}
		return 0, err
	}
	return balance, nil
}

func pickBalance(texts []string, policy BalancePolicy) (int64, bool) {
	var (
		best  int64
		found bool
	)
	for _, t := range texts {
		v, ok := ParseBalance(t)
		if !ok {
			continue
		}
		if policy != BalanceMax {
			return v, true
		}
		if !found || v > best {
			best = v
		}
		found = true
	}
	return best, found
}

// Guard refuses requests larger than the available balance. Equal amounts pass.
func Guard(requested, available int64) error {
	if available < 0 {
		return newError(KindBalanceUnresolved, "balance reading is negative", nil)
	}
	if requested > available {
		return newError(KindInsufficientBalance, fmt.Sprintf(
			"requested $%s exceeds available balance $%s",
			humanize.Comma(requested), humanize.Comma(available)), nil)
	}
	return nil
}
