package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/bankfill/internal/autofill"
)

// VariantsFile is the YAML layout of AUTOFILL_VARIANTS_FILE:
//
//	variants:
//	  - name: desktop
//	    recipient:
//	      - {kind: label, value: "Give money"}
//	    amount:
//	      - {kind: css, value: "input.input-money"}
//	    suggestions:
//	      - {kind: css, value: "ul.ui-autocomplete li"}
//
// Variants are tried in file order.
type VariantsFile struct {
	Variants []autofill.Variant `yaml:"variants"`
}

// LoadVariants reads and validates a variants YAML file.
func LoadVariants(path string) ([]autofill.Variant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("variants config: %w", err)
	}
	var file VariantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("variants config: %w", err)
	}
	if len(file.Variants) == 0 {
		return nil, fmt.Errorf("variants config: at least one variant is required")
	}
	for i, v := range file.Variants {
		if v.Name == "" {
			return nil, fmt.Errorf("variants config: variants[%d] missing name", i)
		}
		for field, locs := range map[autofill.Field][]autofill.Locator{
			autofill.FieldRecipient:   v.Recipient,
			autofill.FieldAmount:      v.Amount,
			autofill.FieldSuggestions: v.Suggestions,
		} {
			for j, loc := range locs {
				if _, _, err := loc.Query(); err != nil {
					return nil, fmt.Errorf("variants config: %s.%s[%d]: %w", v.Name, field, j, err)
				}
			}
		}
	}
	return file.Variants, nil
}

// MarshalVariants renders variants in the same layout LoadVariants reads.
func MarshalVariants(variants []autofill.Variant) ([]byte, error) {
	return yaml.Marshal(VariantsFile{Variants: variants})
}
