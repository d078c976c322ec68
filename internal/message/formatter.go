package message

import (
	"fmt"
	"strings"
)

// DefaultTemplateKey is the fallback template selected when a program has no
// template of its own. It must exist in every template set.
const DefaultTemplateKey = "Default"

const minPhoneDigits = 10

// NormalizePhone converts a raw CRM phone string into a canonical dialable
// number: digits only, leading "+", country prefix added when missing.
// Returns ok=false when the input cannot form a usable number. The function
// is pure and idempotent: normalizing an already normalized number is a no-op.
func NormalizePhone(raw, defaultPrefix string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	hasPlus := strings.HasPrefix(trimmed, "+")

	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() < minPhoneDigits {
		return "", false
	}

	if hasPlus {
		return "+" + digits.String(), true
	}
	prefix := strings.TrimPrefix(defaultPrefix, "+")
	return "+" + prefix + digits.String(), true
}

// Formatter renders outbound texts from per-program templates.
// Construction fails when no Default template exists, so a missing template
// is a startup error rather than a mid-run surprise.
type Formatter struct {
	templates map[string]string
}

func NewFormatter(templates map[string]string) (*Formatter, error) {
	if _, ok := templates[DefaultTemplateKey]; !ok {
		return nil, fmt.Errorf("message templates missing %q entry", DefaultTemplateKey)
	}
	copied := make(map[string]string, len(templates))
	for k, v := range templates {
		copied[k] = v
	}
	return &Formatter{templates: copied}, nil
}

// Format renders the template for program, falling back to Default. The
// phone placeholder is shown without the leading "+".
func (f *Formatter) Format(name, program, phone string) string {
	tmpl, ok := f.templates[program]
	if !ok {
		tmpl = f.templates[DefaultTemplateKey]
	}

	r := strings.NewReplacer(
		"{name}", name,
		"{program}", program,
		"{phone}", strings.TrimPrefix(phone, "+"),
	)
	return r.Replace(tmpl)
}
