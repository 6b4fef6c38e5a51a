package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "PLATESPOT"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "platespot.db"
	defaultLogLevel         = "info"
	defaultGameID           = 1
	defaultHashtag          = "#plates"
	defaultSubmissionPoints = 10
	defaultSpottedBonus     = 5
	defaultTokenTTLMinutes  = 60
	defaultSubmitsPerDay    = 100
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	LogLevel         string
	BotToken         string
	SigningSecret    string
	TokenTTL         time.Duration
	GameID           int64
	Hashtag          string
	SubmissionPoints int
	SpottedBonus     int
	AdminIDs         []int64
	OCRURL           string
	OCRAPIKey        string
	SubmitsPerDay    int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("game.id", defaultGameID)
	configViper.SetDefault("game.hashtag", defaultHashtag)
	configViper.SetDefault("game.submission_points", defaultSubmissionPoints)
	configViper.SetDefault("game.spotted_bonus", defaultSpottedBonus)
	configViper.SetDefault("ratelimit.submissions_per_day", defaultSubmitsPerDay)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	adminIDs, err := parseAdminIDs(configViper.GetString("admin.ids"))
	if err != nil {
		return AppConfig{}, err
	}

	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		BotToken:         configViper.GetString("bot.token"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		TokenTTL:         time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		GameID:           configViper.GetInt64("game.id"),
		Hashtag:          configViper.GetString("game.hashtag"),
		SubmissionPoints: configViper.GetInt("game.submission_points"),
		SpottedBonus:     configViper.GetInt("game.spotted_bonus"),
		AdminIDs:         adminIDs,
		OCRURL:           configViper.GetString("ocr.url"),
		OCRAPIKey:        configViper.GetString("ocr.api_key"),
		SubmitsPerDay:    configViper.GetInt("ratelimit.submissions_per_day"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("bot.token is required")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.GameID <= 0 {
		return fmt.Errorf("game.id must be positive")
	}
	if c.SubmissionPoints <= 0 {
		return fmt.Errorf("game.submission_points must be positive")
	}
	if c.SpottedBonus <= 0 {
		return fmt.Errorf("game.spotted_bonus must be positive")
	}
	return nil
}

func parseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("admin.ids contains invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
