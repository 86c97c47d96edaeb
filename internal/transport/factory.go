package transport

import (
	"fmt"
	"time"

	"vidup/internal/config"
	"vidup/internal/vidup"
)

// NewTransportsFromConfig builds the transports the configured mode can use.
// auto builds every transport that has credentials.
func NewTransportsFromConfig(cfg config.TelegramConfig) ([]vidup.Transport, error) {
	mode := vidup.TransportMode(cfg.Mode)
	if mode == "" {
		mode = vidup.ModeAuto
	}

	hasBot := cfg.BotToken != ""
	hasUser := cfg.APIID != 0 && cfg.APIHash != ""

	var wantBot, wantUser bool
	switch mode {
	case vidup.ModeBot:
		if !hasBot {
			return nil, fmt.Errorf("bot mode requires a bot token (bot_token or VIDUP_BOT_TOKEN)")
		}
		wantBot = true
	case vidup.ModeUser:
		if !hasUser {
			return nil, fmt.Errorf("user mode requires api_id and api_hash (or VIDUP_API_ID and VIDUP_API_HASH)")
		}
		wantUser = true
	case vidup.ModeAuto:
		if !hasBot && !hasUser {
			return nil, fmt.Errorf("no telegram credentials configured")
		}
		wantBot, wantUser = hasBot, hasUser
	default:
		return nil, fmt.Errorf("unknown transport mode: %q", cfg.Mode)
	}

	var transports []vidup.Transport
	if wantBot {
		bot, err := NewBotTransport(cfg.BotToken, cfg.BotAPIServer)
		if err != nil {
			return nil, err
		}
		transports = append(transports, bot)
	}
	if wantUser {
		user, err := NewUserTransport(UserOptions{
			APIID:       cfg.APIID,
			APIHash:     cfg.APIHash,
			Phone:       cfg.Phone,
			SessionPath: cfg.SessionPath,
			Premium:     cfg.Premium,
		})
		if err != nil {
			closeAll(transports)
			return nil, err
		}
		transports = append(transports, user)
	}
	return transports, nil
}

func closeAll(transports []vidup.Transport) {
	for _, t := range transports {
		t.Close()
	}
}

func secondsDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}
