package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("create: %w", ErrOrderCodeConflict)
	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.ErrorIs(t, Wrap(errors.New("pg"), ErrOrderCodeConflict.Code, ErrOrderCodeConflict.Message), ErrOrderCodeConflict)
	assert.NotErrorIs(t, Wrap(errors.New("pg"), ErrCodeConflict, "dup"), ErrOrderCodeConflict)
	assert.True(t, IsConflict(Wrap(errors.New("pg"), ErrCodeConflict, "dup")))

	assert.True(t, IsNotFound(ErrItemNotFoundInOrder))
	assert.False(t, IsConflict(ErrOutOfStock))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestHTTPStatusAndCode(t *testing.T) {
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrOutOfStock))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(ErrAccessDenied))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrConditionNotFit))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, ErrCodeCannotChange, CodeOf(ErrCannotChangeOrderStatus))
}
