package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSettings struct {
	Secret    string `validate:"required,min=8"`
	Algorithm string `validate:"oneof=HS256 HS384 HS512"`
	Route     string `validate:"omitempty,startswith=/"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := testSettings{Secret: "abcdefgh", Algorithm: "HS256", Route: "/productos"}

		err := ValidateStruct(&s)
		assert.NoError(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		s := testSettings{Algorithm: "HS256"}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Contains(t, fields, "testSettings.Secret")
		assert.Contains(t, err.Error(), "testSettings.Secret is required")
	})

	t.Run("value outside oneof", func(t *testing.T) {
		s := testSettings{Secret: "abcdefgh", Algorithm: "RS256"}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.Contains(t, GetValidationFields(err)["testSettings.Algorithm"], "must be one of")
	})

	t.Run("startswith", func(t *testing.T) {
		s := testSettings{Secret: "abcdefgh", Algorithm: "HS512", Route: "productos"}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.Contains(t, GetValidationFields(err)["testSettings.Route"], `must start with "/"`)
	})

	t.Run("multiple failures are reported in stable order", func(t *testing.T) {
		s := testSettings{Secret: "short", Algorithm: "none"}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.Len(t, GetValidationFields(err), 2)
		assert.Equal(t, err.Error(), err.Error())
		assert.Regexp(t, `Algorithm.*Secret`, err.Error())
	})
}

func TestIsValidationError(t *testing.T) {
	assert.False(t, IsValidationError(nil))
	assert.False(t, IsValidationError(assert.AnError))
	assert.Nil(t, GetValidationFields(assert.AnError))
}
