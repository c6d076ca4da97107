package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotice(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", Validation("unban needs an id, got %q", "abc"), "⚠️ I couldn't make sense of that directive."},
		{"permission", Permission("ban", errors.New("403")), "⛔ I don't have permission to do that."},
		{"not configured", ErrNotConfigured, "⚠️ That system is not configured."},
		{"transient", Transient("kick", errors.New("timeout")), "⚠️ Something went wrong on my end. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Notice(tt.err))
		})
	}
}

func TestWrappersKeepSentinel(t *testing.T) {
	req := require.New(t)
	req.ErrorIs(Validation("x"), ErrValidation)
	req.ErrorIs(Transient("op", errors.New("boom")), ErrTransient)
	req.ErrorIs(Permission("op", errors.New("boom")), ErrPermission)
}
