package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "medfayda/pkg/domain-errors"
)

type codeRequest struct {
	VerificationSessionID string `validate:"required,notblank,max=64"`
	Code                  string `validate:"required,numeric,len=6"`
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, Validate(codeRequest{VerificationSessionID: "sms-1", Code: "123456"}))
	})

	t.Run("messages name the snake cased field", func(t *testing.T) {
		err := Validate(codeRequest{Code: "123456"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, "verification_session_id is required", err.Error())

		err = Validate(codeRequest{VerificationSessionID: "  ", Code: "123456"})
		assert.Equal(t, "verification_session_id must not be blank", err.Error())

		err = Validate(codeRequest{VerificationSessionID: "sms-1", Code: "12a456"})
		assert.Equal(t, "code must contain only digits", err.Error())

		err = Validate(codeRequest{VerificationSessionID: "sms-1", Code: "1234"})
		assert.Equal(t, "code must be exactly 6 characters", err.Error())
	})
}

func TestFIN(t *testing.T) {
	type search struct {
		FIN string `validate:"required,fin"`
	}
	assert.NoError(t, Validate(search{FIN: "123456789012"}))
	assert.True(t, IsFIN("FAN1234567"))

	err := Validate(search{FIN: "12345"})
	assert.Equal(t, "fin must be 10 to 15 letters or digits", err.Error())
	assert.False(t, IsFIN("1234-5678-9012"))
}
