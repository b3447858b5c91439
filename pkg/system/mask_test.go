package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "client@example.fr", want: "c*****@example.fr"},
		{in: " a@example.fr ", want: "a@example.fr"},
		{in: "élodie@exemple.fr", want: "é*****@exemple.fr"},
		{in: "no-at-sign", want: "**********"},
		{in: "@example.fr", want: "***********"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskEmail(tt.in))
		})
	}
}
