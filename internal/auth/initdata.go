package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultInitDataMaxAge = 24 * time.Hour

// Named verification failures, matching the reason codes exposed to clients.
var (
	ErrInitDataMissing    = errors.New("auth: NO_DATA")
	ErrInitDataNoHash     = errors.New("auth: NO_HASH")
	ErrInitDataBadHash    = errors.New("auth: HASH_MISMATCH")
	ErrInitDataExpired    = errors.New("auth: EXPIRED")
	ErrInitDataValidation = errors.New("auth: VALIDATION_ERROR")
)

// WebAppUser is the identity embedded in a verified init data payload.
type WebAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// InitDataVerifierConfig configures Telegram WebApp init data verification.
type InitDataVerifierConfig struct {
	BotToken string
	MaxAge   time.Duration
	Clock    func() time.Time
}

// InitDataVerifier checks the HMAC signature Telegram attaches to WebApp
// launch payloads. The secret key is HMAC-SHA256 of the bot token keyed by
// the literal string "WebAppData"; the data-check-string is every pair
// except hash, sorted by key and joined with newlines.
type InitDataVerifier struct {
	botToken string
	maxAge   time.Duration
	clock    func() time.Time
}

// NewInitDataVerifier constructs a verifier with sane defaults.
func NewInitDataVerifier(cfg InitDataVerifierConfig) (*InitDataVerifier, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("auth: bot token required")
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = defaultInitDataMaxAge
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &InitDataVerifier{botToken: cfg.BotToken, maxAge: maxAge, clock: clock}, nil
}

// Verify validates the raw init data query string and returns the embedded user.
func (v *InitDataVerifier) Verify(raw string) (WebAppUser, error) {
	if strings.TrimSpace(raw) == "" {
		return WebAppUser{}, ErrInitDataMissing
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return WebAppUser{}, fmt.Errorf("%w: %v", ErrInitDataValidation, err)
	}

	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return WebAppUser{}, ErrInitDataNoHash
	}
	values.Del("hash")

	if computeHash(values, v.botToken) != receivedHash {
		return WebAppUser{}, ErrInitDataBadHash
	}

	if rawAuthDate := values.Get("auth_date"); rawAuthDate != "" {
		authDate, err := strconv.ParseInt(rawAuthDate, 10, 64)
		if err == nil && v.clock().Unix()-authDate > int64(v.maxAge.Seconds()) {
			return WebAppUser{}, ErrInitDataExpired
		}
	}

	var user WebAppUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return WebAppUser{}, fmt.Errorf("%w: malformed user payload", ErrInitDataValidation)
	}
	if user.ID == 0 {
		return WebAppUser{}, fmt.Errorf("%w: missing user id", ErrInitDataValidation)
	}
	return user, nil
}

func computeHash(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		entries := values[key]
		pairs = append(pairs, key+"="+entries[len(entries)-1])
	}
	dataCheckString := strings.Join(pairs, "\n")

	secretMAC := hmac.New(sha256.New, []byte("WebAppData"))
	secretMAC.Write([]byte(botToken))
	secretKey := secretMAC.Sum(nil)

	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(dataCheckString))
	return hex.EncodeToString(mac.Sum(nil))
}
