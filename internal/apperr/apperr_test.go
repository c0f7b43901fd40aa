package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sfcdb/sfcdb/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestWrap_NilPassesThrough(t *testing.T) {
	assert.Nil(t, apperr.Wrap(apperr.CodeDB, "connect", nil))
}

func TestIs_MatchesCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := apperr.DB(cause, "connect to %s", "host")

	assert.True(t, apperr.Is(err, apperr.CodeDB))
	assert.False(t, apperr.Is(err, apperr.CodeIO))
	assert.True(t, errors.Is(err, err))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := apperr.IO(cause, "reading %s", "file.las")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "IO: reading file.las: boom")
}

func TestDomainAndQuantization_NoWrappedCause(t *testing.T) {
	err := apperr.Domain("x out of range: %d", -1)
	assert.Equal(t, apperr.CodeDomain, err.Code)
	assert.Nil(t, err.Unwrap())

	err2 := apperr.Quantization("negative X for point %d", 7)
	assert.Equal(t, apperr.CodeQuantization, err2.Code)
	assert.Equal(t, fmt.Sprintf("%s: %s", apperr.CodeQuantization, "negative X for point 7"), err2.Error())
}
