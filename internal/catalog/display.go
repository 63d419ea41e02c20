package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func (d DisplayGroup) metadataKey(group string) string {
	if key := strings.TrimSpace(d.MetadataKey); key != "" {
		return key
	}
	return group
}

// Label renders the option key selected for group. Keys missing from the display table
// render as the group fallback; groups without a table fall back to a title-cased key,
// e.g. "setup-service" becomes "Setup Service".
func (p PackageDefinition) Label(group, key string) string {
	if display, ok := p.Display[group]; ok {
		if label, ok := display.Labels[key]; ok && label != "" {
			return label
		}
		if display.Fallback != "" {
			return display.Fallback
		}
	}
	return HumanizeKey(key)
}

// DisplayFields renders every display group of the package against the selected options,
// keyed by metadata key. Unknown or absent selections never fail; they use the fallback.
func (p PackageDefinition) DisplayFields(selected map[string]string) map[string]string {
	if len(p.Display) == 0 {
		return nil
	}
	out := make(map[string]string, len(p.Display))
	for group, display := range p.Display {
		out[display.metadataKey(group)] = p.Label(group, selected[group])
	}
	return out
}

// HumanizeKey turns a slug such as "full-setup" into "Full Setup".
func HumanizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	// Casers carry state and must not be shared between goroutines.
	return cases.Title(language.AmericanEnglish).String(strings.Join(words, " "))
}
