package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		level     string
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{name: "production defaults to info", env: "prod", wantLevel: zapcore.InfoLevel},
		{name: "development defaults to debug", env: "dev", wantLevel: zapcore.DebugLevel},
		{name: "explicit level wins", env: "production", level: "warn", wantLevel: zapcore.WarnLevel},
		{name: "unknown level", env: "dev", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.env, tt.level)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.wantLevel))
			assert.False(t, logger.Core().Enabled(tt.wantLevel-1))
		})
	}
}
