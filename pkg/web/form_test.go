package web

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormRequiredFields(t *testing.T) {
	form := &Form{Required: []string{"name", "email"}}

	msgs, ok := form.Validate(Params{"name": "Ada"})
	require.False(t, ok)
	require.Equal(t, map[string]string{"email": "required"}, msgs)

	msgs, ok = form.Validate(Params{"name": "Ada", "email": "  "})
	require.False(t, ok)
	require.Equal(t, map[string]string{"email": "required"}, msgs)

	msgs, ok = form.Validate(Params{"name": "Ada", "email": "ada@example.com"})
	require.True(t, ok)
	require.Empty(t, msgs)
}

func TestFormValidatorRunsAfterRequired(t *testing.T) {
	called := false
	form := &Form{
		Required: []string{"age"},
		Validator: func(p Params) map[string]string {
			called = true
			if p["age"] == "0" {
				return map[string]string{"age": "must be positive"}
			}
			return nil
		},
	}

	_, ok := form.Validate(Params{})
	require.False(t, ok)
	require.False(t, called, "validator must not run with missing required fields")

	msgs, ok := form.Validate(Params{"age": "0"})
	require.False(t, ok)
	require.Equal(t, "must be positive", msgs["age"])

	_, ok = form.Validate(Params{"age": "30"})
	require.True(t, ok)
}
