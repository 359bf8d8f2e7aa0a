package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"ada.lovelace@example.com", "Ada Lovelace"},
		{"grace@example.com", "Grace"},
		{"alan_m_turing@example.com", "Alan Turing"},
		{"ada+vault@example.com", "Ada"},
		{"...@example.com", "User"},
		{"no-at-sign", "No Sign"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.addr))
		})
	}
}
