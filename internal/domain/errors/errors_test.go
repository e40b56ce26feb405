package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorMessage(t *testing.T) {
	var ve ValidationError
	assert.Equal(t, "validation failed", ve.Error())
	assert.False(t, ve.HasAny())

	ve.Add("site.title", "must not be empty")
	ve.Add("", "something else")
	assert.True(t, ve.HasAny())
	msg := ve.Error()
	assert.Contains(t, msg, "site.title: must not be empty")
	assert.Contains(t, msg, "something else")
}

func TestValidationErrorIsInvalid(t *testing.T) {
	var ve ValidationError
	ve.Add("f", "bad")
	assert.True(t, errors.Is(error(ve), ErrInvalid))
	assert.False(t, errors.Is(error(ve), ErrNotFound))
}
