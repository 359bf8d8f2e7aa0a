package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeUpstream, "blob upload failed")

	assert.True(t, errors.Is(err, cause))
	assert.True(t, HasCode(err, CodeUpstream))
	assert.Equal(t, "blob upload failed: connection reset", err.Error())
}

func TestHasCodeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("service: %w", New(CodeNotFound, "artefact not found"))
	assert.True(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(err, CodeForbidden))
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestCodeOfUncoded(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	_, ok := As(errors.New("boom"))
	require.False(t, ok)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:   http.StatusBadRequest,
		CodeInvalidState: http.StatusBadRequest,
		CodeUnauthorized: http.StatusUnauthorized,
		CodeForbidden:    http.StatusForbidden,
		CodeNotFound:     http.StatusNotFound,
		CodeConflict:     http.StatusConflict,
		CodeUpstream:     http.StatusInternalServerError,
		CodeInternal:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), string(code))
	}
	assert.True(t, IsServerError(CodeUpstream))
	assert.False(t, IsServerError(CodeConflict))
}
