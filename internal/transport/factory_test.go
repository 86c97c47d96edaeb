package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidup/internal/config"
	"vidup/internal/vidup"
)

const validBotToken = "123456:ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghi"

func TestNewTransportsFromConfig(t *testing.T) {
	t.Run("bot mode", func(t *testing.T) {
		ts, err := NewTransportsFromConfig(config.TelegramConfig{Mode: "bot", BotToken: validBotToken})
		require.NoError(t, err)
		require.Len(t, ts, 1)
		assert.Equal(t, vidup.ModeBot, ts[0].Mode())
	})

	t.Run("auto with only a bot token", func(t *testing.T) {
		ts, err := NewTransportsFromConfig(config.TelegramConfig{BotToken: validBotToken})
		require.NoError(t, err)
		require.Len(t, ts, 1)
		assert.Equal(t, vidup.ModeBot, ts[0].Mode())
	})

	errorCases := []struct {
		name string
		cfg  config.TelegramConfig
	}{
		{"bot mode without token", config.TelegramConfig{Mode: "bot"}},
		{"user mode without api credentials", config.TelegramConfig{Mode: "user", BotToken: validBotToken}},
		{"auto without anything", config.TelegramConfig{Mode: "auto"}},
		{"unknown mode", config.TelegramConfig{Mode: "fax", BotToken: validBotToken}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTransportsFromConfig(tt.cfg)
			assert.Error(t, err)
		})
	}
}
