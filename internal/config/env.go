package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces the environment variables read by ApplyEnv.
const EnvPrefix = "VIDUP"

// Secrets are the credentials that may come from the environment instead of
// the config file, e.g. VIDUP_BOT_TOKEN.
type Secrets struct {
	BotToken          string `envconfig:"BOT_TOKEN"`
	APIID             int32  `envconfig:"API_ID"`
	APIHash           string `envconfig:"API_HASH"`
	Phone             string `envconfig:"PHONE"`
	ChatID            string `envconfig:"CHAT_ID"`
	S3AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
}

// LoadSecrets loads envFile (if it exists) into the process environment,
// without overriding variables already set, and reads the VIDUP_* secrets.
func LoadSecrets(envFile string) (*Secrets, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var s Secrets
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &s, nil
}

// Apply overlays non-empty secrets onto cfg.
func (s *Secrets) Apply(cfg *Config) {
	t := &cfg.Telegram
	if s.BotToken != "" {
		t.BotToken = s.BotToken
	}
	if s.APIID != 0 {
		t.APIID = s.APIID
	}
	if s.APIHash != "" {
		t.APIHash = s.APIHash
	}
	if s.Phone != "" {
		t.Phone = s.Phone
	}
	if s.ChatID != "" {
		t.ChatID = s.ChatID
	}
	for i := range cfg.Vaults {
		v := &cfg.Vaults[i]
		if v.Type != "s3" {
			continue
		}
		if s.S3AccessKeyID != "" {
			v.S3AccessKeyID = s.S3AccessKeyID
		}
		if s.S3SecretAccessKey != "" {
			v.S3SecretAccessKey = s.S3SecretAccessKey
		}
	}
}

// ApplyEnv loads secrets from envFile and the environment into cfg.
func ApplyEnv(cfg *Config, envFile string) error {
	s, err := LoadSecrets(envFile)
	if err != nil {
		return err
	}
	s.Apply(cfg)
	return nil
}
