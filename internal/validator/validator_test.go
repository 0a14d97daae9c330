package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	v := New()

	assert.NoError(t, v.Email("a@example.com"))
	assert.NoError(t, v.Email("first.last+tag@sub.example.org"))

	for _, bad := range []string{"", "a", "a@", "@example.com", "a b@example.com"} {
		assert.Error(t, v.Email(bad), bad)
	}
}

func TestStructMessagesUseJSONNames(t *testing.T) {
	type req struct {
		Email string `json:"email" validate:"required,email"`
		Code  string `json:"code" validate:"required,numeric"`
	}
	err := New().Struct(req{Email: "nope", Code: "12a"})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "email must be a valid email address")
		assert.Contains(t, err.Error(), "code must be numeric")
	}
}
