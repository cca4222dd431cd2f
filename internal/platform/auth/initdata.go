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

	domain "github.com/muse-store/miniapp/internal/domain"
)

const (
	webAppDataKey         = "WebAppData"
	defaultInitDataMaxAge = 24 * time.Hour
)

var (
	// ErrInitDataMissing signals that no launch data was supplied.
	ErrInitDataMissing = errors.New("auth: init data missing")
	// ErrInitDataInvalid signals malformed launch data or a missing user.
	ErrInitDataInvalid = errors.New("auth: init data invalid")
	// ErrInitDataSignature signals a hash mismatch.
	ErrInitDataSignature = errors.New("auth: init data signature mismatch")
	// ErrInitDataExpired signals launch data older than the configured max age.
	ErrInitDataExpired = errors.New("auth: init data expired")
)

// LaunchData is the verified content of the host's signed launch payload.
type LaunchData struct {
	User     domain.UserProfile
	AuthDate time.Time
	QueryID  string
}

// InitDataVerifier validates the signed launch payload the host passes to the mini-app.
type InitDataVerifier struct {
	secret   []byte
	maxAge   time.Duration
	now      func() time.Time
	insecure bool
}

// InitDataOption customises the verifier.
type InitDataOption func(*InitDataVerifier)

// WithInitDataMaxAge overrides how old auth_date may be.
func WithInitDataMaxAge(d time.Duration) InitDataOption {
	return func(v *InitDataVerifier) {
		if d > 0 {
			v.maxAge = d
		}
	}
}

// WithInitDataClock injects a clock, primarily for tests.
func WithInitDataClock(now func() time.Time) InitDataOption {
	return func(v *InitDataVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithUnsignedInitData skips hash verification. Only used for local development without a bot token.
func WithUnsignedInitData() InitDataOption {
	return func(v *InitDataVerifier) {
		v.insecure = true
	}
}

// NewInitDataVerifier derives the verification key from the bot token.
func NewInitDataVerifier(botToken string, opts ...InitDataOption) *InitDataVerifier {
	mac := hmac.New(sha256.New, []byte(webAppDataKey))
	mac.Write([]byte(strings.TrimSpace(botToken)))

	v := &InitDataVerifier{
		secret: mac.Sum(nil),
		maxAge: defaultInitDataMaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Verify checks the payload hash and freshness and returns the embedded user.
func (v *InitDataVerifier) Verify(raw string) (LaunchData, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return LaunchData{}, ErrInitDataMissing
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return LaunchData{}, fmt.Errorf("%w: %v", ErrInitDataInvalid, err)
	}

	if !v.insecure {
		provided, err := hex.DecodeString(values.Get("hash"))
		if err != nil || len(provided) == 0 {
			return LaunchData{}, ErrInitDataSignature
		}
		mac := hmac.New(sha256.New, v.secret)
		mac.Write([]byte(dataCheckString(values)))
		if !hmac.Equal(provided, mac.Sum(nil)) {
			return LaunchData{}, ErrInitDataSignature
		}
	}

	var authDate time.Time
	if rawDate := values.Get("auth_date"); rawDate != "" {
		seconds, err := strconv.ParseInt(rawDate, 10, 64)
		if err != nil {
			return LaunchData{}, fmt.Errorf("%w: auth_date", ErrInitDataInvalid)
		}
		authDate = time.Unix(seconds, 0).UTC()
	}
	if !v.insecure {
		if authDate.IsZero() || v.now().Sub(authDate) > v.maxAge {
			return LaunchData{}, ErrInitDataExpired
		}
	}

	var user initDataUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID <= 0 {
		return LaunchData{}, fmt.Errorf("%w: user", ErrInitDataInvalid)
	}

	return LaunchData{
		User: domain.UserProfile{
			ID:        user.ID,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Username:  user.Username,
			PhotoURL:  user.PhotoURL,
			Language:  user.LanguageCode,
			IsPremium: user.IsPremium,
		},
		AuthDate: authDate,
		QueryID:  values.Get("query_id"),
	}, nil
}

// Sign produces a hash for the supplied values, mirroring what the host does. Used by tests and
// local tooling.
func (v *InitDataVerifier) Sign(values url.Values) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(dataCheckString(values)))
	return hex.EncodeToString(mac.Sum(nil))
}

type initDataUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
	IsPremium    bool   `json:"is_premium"`
	PhotoURL     string `json:"photo_url"`
}

// dataCheckString joins every field except hash as sorted key=value lines.
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+values.Get(key))
	}
	return strings.Join(lines, "\n")
}
