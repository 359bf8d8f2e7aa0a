package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kvault/pkg/domain-errors"
)

func TestRegisterRequest_Normalize(t *testing.T) {
	req := &RegisterRequest{
		Email:    "  Ada.Lovelace@Example.COM ",
		Password: "pw",
		RegionID: " r1 ",
	}
	req.Normalize()

	assert.Equal(t, "ada.lovelace@example.com", req.Email)
	assert.Equal(t, "Ada Lovelace", req.Name)
	assert.Equal(t, "r1", req.RegionID)
	require.NoError(t, req.Validate())
}

func TestRegisterRequest_KeepsGivenName(t *testing.T) {
	req := &RegisterRequest{Name: " Countess ", Email: "ada@example.com"}
	req.Normalize()
	assert.Equal(t, "Countess", req.Name)
}

func TestRegisterRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing email", RegisterRequest{Password: "pw", RegionID: "r"}},
		{"missing password", RegisterRequest{Email: "a@example.com", RegionID: "r"}},
		{"missing region", RegisterRequest{Email: "a@example.com", Password: "pw"}},
		{"bad email", RegisterRequest{Email: "not-an-email", Password: "pw", RegionID: "r"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Normalize()
			err := req.Validate()
			require.Error(t, err)
			assert.Equal(t, dErrors.CodeValidation, dErrors.CodeOf(err))
		})
	}
}
