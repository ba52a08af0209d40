package autofill

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Request is what one run tries to fill in. It is parsed once from the
// navigation fragment and never mutated.
type Request struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// ParseRequest extracts name and amount from the navigation fragment of
// source, which may be a full URL or just "#name=OgBob&amount=1000000". Only
// the part after '#' is read; a URL without one carries no request. Leading
// slashes are skipped, and a route before the first '?' is dropped when it
// does not itself set name or amount, so "#/tab=controls?name=x&amount=1"
// works and "#name=a?b&amount=1" keeps the name "a?b".
func ParseRequest(source string) (Request, error) {
	i := strings.Index(source, "#")
	if i < 0 {
		return Request{}, newError(KindParamsMissing, "no navigation fragment to read name and amount from", nil)
	}
	frag := strings.TrimLeft(strings.TrimSpace(source[i+1:]), "/")
	if route, params, ok := strings.Cut(frag, "?"); ok && !setsRequest(route) {
		frag = params
	}

	// ParseQuery keeps every well-formed pair even when it reports an error
	// for a malformed one.
	values, _ := url.ParseQuery(frag)

	name := strings.TrimSpace(values.Get("name"))
	if name == "" {
		return Request{}, newError(KindParamsMissing, "recipient name is missing", nil)
	}

	rawAmount := strings.TrimSpace(values.Get("amount"))
	if rawAmount == "" {
		return Request{}, newError(KindParamsMissing, "amount is missing", nil)
	}
	if !isDigits(rawAmount) {
		return Request{}, newError(KindParamsMissing, fmt.Sprintf("amount %q is not a positive integer", rawAmount), nil)
	}
	amount, err := strconv.ParseInt(rawAmount, 10, 64)
	if err != nil || amount <= 0 {
		return Request{}, newError(KindParamsMissing, fmt.Sprintf("amount %q is not a positive integer", rawAmount), err)
	}

	return Request{Recipient: name, Amount: amount}, nil
}

// Fragment renders the request back into the fragment form ParseRequest reads.
func (r Request) Fragment() string {
	v := url.Values{}
	v.Set("name", r.Recipient)
	v.Set("amount", strconv.FormatInt(r.Amount, 10))
	return "#" + v.Encode()
}

// AsFragment marks s as a fragment when a caller passed the key/value part
// alone, e.g. "name=OgBob&amount=5". URLs are returned unchanged.
func AsFragment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "#") || strings.Contains(s, "://") {
		return s
	}
	return "#" + s
}

func setsRequest(query string) bool {
	values, _ := url.ParseQuery(query)
	return values.Has("name") || values.Has("amount")
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
