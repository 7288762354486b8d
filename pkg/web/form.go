package web

import (
	"strings"
)

// Form declares the required fields of an HTML form plus an optional
// validator for anything beyond "required, non-empty". A Form is stateless
// and reusable across requests.
type Form struct {
	Required []string
	// Validator may return extra field-level messages. It runs only when
	// all required fields are present.
	Validator func(Params) map[string]string
}

// Validate checks params against the form. It returns field-level messages
// keyed by field name and whether the form passed. Validation failures are
// data, not errors; the handler decides how to proceed.
func (f *Form) Validate(params Params) (map[string]string, bool) {
	msgs := map[string]string{}
	for _, field := range f.Required {
		if strings.TrimSpace(params[field]) == "" {
			msgs[field] = "required"
		}
	}
	if len(msgs) == 0 && f.Validator != nil {
		for field, msg := range f.Validator(params) {
			msgs[field] = msg
		}
	}
	return msgs, len(msgs) == 0
}
