package cdpcontrol

import (
	"fmt"
	"strings"
)

const (
	CodeValidation     = "VALIDATION"
	CodePageNotFound   = "PAGE_NOT_FOUND"
	CodeEvalFailure    = "EVAL_FAILURE"
	CodeEvalTimeout    = "EVAL_TIMEOUT"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"
	CodeStaleElement   = "STALE_ELEMENT"
	CodeBusy           = "BUSY"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// PageInfo describes a browser tab that matched the tab filter.
type PageInfo struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

// InputMode selects how text and clicks reach the page.
type InputMode string

const (
	// InputSynthetic builds DOM events in page script.
	InputSynthetic InputMode = "synthetic"
	// InputTrusted goes through CDP Input.* so events carry isTrusted.
	InputTrusted InputMode = "trusted"
)

// ParseInputMode accepts the names above, case-insensitively.
func ParseInputMode(s string) (InputMode, error) {
	switch InputMode(strings.ToLower(strings.TrimSpace(s))) {
	case InputSynthetic, "":
		return InputSynthetic, nil
	case InputTrusted:
		return InputTrusted, nil
	}
	return "", newError(CodeValidation, fmt.Sprintf("unknown input mode %q", s), nil)
}
