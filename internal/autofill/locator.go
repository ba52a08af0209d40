package autofill

import (
	"fmt"
	"strings"
)

// Field names a logical form input the engine needs to find.
type Field string

const (
	FieldRecipient   Field = "recipient"
	FieldAmount      Field = "amount"
	FieldSuggestions Field = "suggestions"
)

// Fields lists every field a complete locator set must cover.
var Fields = []Field{FieldRecipient, FieldAmount, FieldSuggestions}

// LocatorKind selects how a locator value is interpreted.
type LocatorKind string

const (
	LocatorCSS         LocatorKind = "css"
	LocatorXPath       LocatorKind = "xpath"
	LocatorPlaceholder LocatorKind = "placeholder"
	LocatorLabel       LocatorKind = "label"
)

// Locator is one way of finding an element.
type Locator struct {
	Kind  LocatorKind `json:"kind" yaml:"kind"`
	Value string      `json:"value" yaml:"value"`
}

func CSS(selector string) Locator { return Locator{Kind: LocatorCSS, Value: selector} }
func XPath(expr string) Locator { return Locator{Kind: LocatorXPath, Value: expr} }
func Placeholder(text string) Locator { return Locator{Kind: LocatorPlaceholder, Value: text} }
func Label(text string) Locator { return Locator{Kind: LocatorLabel, Value: text} }

func (l Locator) String() string {
	return string(l.Kind) + ":" + l.Value
}

// Query compiles the locator into something the page can evaluate: either a
// CSS selector list or an XPath expression. The returned kind is "css" or
// "xpath".
func (l Locator) Query() (kind string, expr string, err error) {
	value := strings.TrimSpace(l.Value)
	if value == "" {
		return "", "", fmt.Errorf("locator %s has an empty value", l.Kind)
	}
	switch l.Kind {
	case LocatorCSS, "":
		return "css", value, nil
	case LocatorXPath:
		return "xpath", value, nil
	case LocatorPlaceholder:
		q := cssString(value)
		return "css", fmt.Sprintf("input[placeholder*=%s i], textarea[placeholder*=%s i]", q, q), nil
	case LocatorLabel:
		return "css", fmt.Sprintf("[aria-label*=%s i]", cssString(value)), nil
	default:
		return "", "", fmt.Errorf("unknown locator kind %q", l.Kind)
	}
}

func cssString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\a `)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Variant is a UI skin with its own candidates for each field.
type Variant struct {
	Name        string    `json:"name" yaml:"name"`
	Recipient   []Locator `json:"recipient" yaml:"recipient"`
	Amount      []Locator `json:"amount" yaml:"amount"`
	Suggestions []Locator `json:"suggestions" yaml:"suggestions"`
}

func (v Variant) locators(f Field) []Locator {
	switch f {
	case FieldRecipient:
		return v.Recipient
	case FieldAmount:
		return v.Amount
	case FieldSuggestions:
		return v.Suggestions
	}
	return nil
}

// DefaultVariants returns the built-in skins in preference order.
func DefaultVariants() []Variant {
	return []Variant{
		{
			Name: "desktop",
			Recipient: []Locator{
				CSS(`input[aria-label="Give money or change balance"]`),
				Label("give money"),
			},
			Amount: []Locator{
				CSS(`.give-money-form input[type="text"].input-money`),
				CSS(`input[type="text"]:not([aria-label])`),
			},
			Suggestions: []Locator{
				CSS(`ul.ui-autocomplete li.ui-menu-item`),
			},
		},
		{
			Name: "mobile",
			Recipient: []Locator{
				Placeholder("name"),
				Placeholder("search"),
			},
			Amount: []Locator{
				Placeholder("amount"),
				CSS(`input[inputmode="numeric"]`),
			},
			Suggestions: []Locator{
				CSS(`[role="listbox"] [role="option"]`),
			},
		},
		{
			Name: "legacy",
			Recipient: []Locator{
				CSS(`input.ac-search`),
			},
			Amount: []Locator{
				CSS(`input.input-money`),
				XPath(`//form//input[@type="text" and not(@aria-label)]`),
			},
			Suggestions: []Locator{
				CSS(`.autocomplete-suggestions .autocomplete-suggestion`),
				CSS(`.dropdown-list li`),
			},
		},
	}
}

// Candidates flattens variants into ordered per-field candidate lists.
// Variant order is preserved and repeated locators keep their first position.
func Candidates(variants []Variant) map[Field][]Locator {
	out := make(map[Field][]Locator, len(Fields))
	for _, f := range Fields {
		seen := make(map[Locator]struct{})
		for _, v := range variants {
			for _, loc := range v.locators(f) {
				if _, ok := seen[loc]; ok {
					continue
				}
				seen[loc] = struct{}{}
				out[f] = append(out[f], loc)
			}
		}
	}
	return out
}
