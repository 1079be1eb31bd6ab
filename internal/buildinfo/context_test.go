package buildinfo

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextGetters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
	}{
		{"nil context", nil, UnknownValue, UnknownValue},
		{"empty fields", &Context{}, UnknownValue, UnknownValue},
		{"populated", NewContext("1.0.0+build.123", "2026-01-01", "sys"), "1.0.0+build.123", "2026-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.GetVersion())
			assert.Equal(t, tt.buildDate, tt.ctx.GetBuildDate())
		})
	}
}

func TestNewContextGeneratesSystemID(t *testing.T) {
	t.Parallel()

	ctx := NewContext("1.0.0", "", "")
	_, err := uuid.Parse(ctx.GetSystemID())
	require.NoError(t, err)

	assert.Equal(t, "fixed", NewContext("", "", "fixed").GetSystemID())
	assert.Equal(t, UnknownValue, (*Context)(nil).GetSystemID())
}
