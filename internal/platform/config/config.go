package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultShippingFee        = 25
	defaultCurrencySymbol     = "$"
	defaultCatalogSource      = CatalogSourceSeed
	defaultAIEndpoint         = "https://generativelanguage.googleapis.com/v1beta"
	defaultAIChatModel        = "gemini-2.5-flash"
	defaultAIImageModel       = "gemini-2.5-flash-image"
	defaultAITimeout          = 60 * time.Second
	defaultInitDataMaxAge     = 24 * time.Hour
	defaultSessionTTL         = 12 * time.Hour
	defaultGenerationPerMin   = 6
	defaultChatPerMin         = 30
	defaultCheckoutDelay      = 1500 * time.Millisecond
	defaultEnvironment        = EnvironmentLocal
	defaultFetchMaxImageBytes = 10 << 20
)

const (
	// CatalogSourceSeed serves the embedded seed catalog from memory.
	CatalogSourceSeed = "seed"
	// CatalogSourceFirestore reads and mutates the catalog in Firestore.
	CatalogSourceFirestore = "firestore"
	// EnvironmentLocal relaxes identity checks for development.
	EnvironmentLocal = "local"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Store       StoreConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	PubSub      PubSubConfig
	AI          AIConfig
	Telegram    TelegramConfig
	Session     SessionConfig
	RateLimits  RateLimitConfig
	Checkout    CheckoutConfig
}

// IsLocal reports whether the process runs in the local development environment.
func (c Config) IsLocal() bool {
	return c.Environment == EnvironmentLocal
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AllowedOrigins restricts websocket host channels. Empty accepts any origin.
	AllowedOrigins []string
}

// StoreConfig holds storefront pricing and catalog settings.
type StoreConfig struct {
	ShippingFee    int64
	CurrencySymbol string
	CatalogSource  string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig configures where committed media is offloaded. An empty bucket keeps data URIs inline.
type StorageConfig struct {
	MediaBucket   string
	PublicBaseURL string
}

// PubSubConfig configures media event publishing. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID  string
	MediaTopic string
}

// AIConfig defines endpoints and credentials for the chat and image collaborators.
type AIConfig struct {
	APIKey        string
	Endpoint      string
	ChatModel     string
	ImageModel    string
	Timeout       time.Duration
	MaxImageBytes int64
}

// Enabled reports whether an API key is configured.
func (c AIConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// TelegramConfig controls verification of the host's signed launch data.
type TelegramConfig struct {
	BotToken       string
	InitDataMaxAge time.Duration
	AdminUserIDs   []int64
}

// SessionConfig controls issued session tokens.
type SessionConfig struct {
	SigningKey string
	TTL        time.Duration
}

// RateLimitConfig controls per-session throttling of remote collaborators.
type RateLimitConfig struct {
	GenerationPerMinute int
	ChatPerMinute       int
}

// CheckoutConfig controls the simulated payment processor.
type CheckoutConfig struct {
	SimulatedDelay time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed secret identifiers safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory
// (e.g. "Telegram.BotToken" or "Session.SigningKey").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// EnvironmentValues returns the effective key/value environment map after applying the same
// precedence rules as Load (dotenv < OS env < explicit env map).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "MINIAPP_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "MINIAPP_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "MINIAPP_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "MINIAPP_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "MINIAPP_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),

			AllowedOrigins: stringCSV(lookup, "MINIAPP_SERVER_ALLOWED_ORIGINS"),
		},
		Store: StoreConfig{
			ShippingFee:    int64(intWithDefault(lookup, "MINIAPP_STORE_SHIPPING_FEE", defaultShippingFee)),
			CurrencySymbol: stringWithDefault(lookup, "MINIAPP_STORE_CURRENCY_SYMBOL", defaultCurrencySymbol),
			CatalogSource:  strings.ToLower(stringWithDefault(lookup, "MINIAPP_STORE_CATALOG_SOURCE", defaultCatalogSource)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "MINIAPP_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "MINIAPP_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			MediaBucket:   stringWithDefault(lookup, "MINIAPP_STORAGE_MEDIA_BUCKET", ""),
			PublicBaseURL: stringWithDefault(lookup, "MINIAPP_STORAGE_PUBLIC_BASE_URL", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:  stringWithDefault(lookup, "MINIAPP_PUBSUB_PROJECT_ID", ""),
			MediaTopic: stringWithDefault(lookup, "MINIAPP_PUBSUB_MEDIA_TOPIC", ""),
		},
		AI: AIConfig{
			APIKey:        stringWithDefault(lookup, "MINIAPP_AI_API_KEY", ""),
			Endpoint:      strings.TrimRight(stringWithDefault(lookup, "MINIAPP_AI_ENDPOINT", defaultAIEndpoint), "/"),
			ChatModel:     stringWithDefault(lookup, "MINIAPP_AI_CHAT_MODEL", defaultAIChatModel),
			ImageModel:    stringWithDefault(lookup, "MINIAPP_AI_IMAGE_MODEL", defaultAIImageModel),
			Timeout:       durationWithDefault(lookup, "MINIAPP_AI_TIMEOUT", defaultAITimeout),
			MaxImageBytes: int64(intWithDefault(lookup, "MINIAPP_AI_MAX_IMAGE_BYTES", defaultFetchMaxImageBytes)),
		},
		Telegram: TelegramConfig{
			BotToken:       stringWithDefault(lookup, "MINIAPP_TELEGRAM_BOT_TOKEN", ""),
			InitDataMaxAge: durationWithDefault(lookup, "MINIAPP_TELEGRAM_INITDATA_MAX_AGE", defaultInitDataMaxAge),
			AdminUserIDs:   int64CSVWithDefault(lookup, "MINIAPP_TELEGRAM_ADMIN_USER_IDS"),
		},
		Session: SessionConfig{
			SigningKey: stringWithDefault(lookup, "MINIAPP_SESSION_SIGNING_KEY", ""),
			TTL:        durationWithDefault(lookup, "MINIAPP_SESSION_TTL", defaultSessionTTL),
		},
		RateLimits: RateLimitConfig{
			GenerationPerMinute: intWithDefault(lookup, "MINIAPP_RATELIMIT_GENERATION_PER_MIN", defaultGenerationPerMin),
			ChatPerMinute:       intWithDefault(lookup, "MINIAPP_RATELIMIT_CHAT_PER_MIN", defaultChatPerMin),
		},
		Checkout: CheckoutConfig{
			SimulatedDelay: durationWithDefault(lookup, "MINIAPP_CHECKOUT_SIMULATED_DELAY", defaultCheckoutDelay),
		},
	}

	// Pub/Sub defaults to the Firestore project when unspecified.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"AI.APIKey", &cfg.AI.APIKey},
		{"Telegram.BotToken", &cfg.Telegram.BotToken},
		{"Session.SigningKey", &cfg.Session.SigningKey},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Store.ShippingFee < 0 {
		invalid = append(invalid, "Store.ShippingFee")
	}
	switch cfg.Store.CatalogSource {
	case CatalogSourceSeed:
	case CatalogSourceFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	default:
		invalid = append(invalid, "Store.CatalogSource")
	}
	if cfg.PubSub.MediaTopic != "" && cfg.PubSub.ProjectID == "" {
		invalid = append(invalid, "PubSub.ProjectID")
	}
	if cfg.AI.Timeout <= 0 {
		invalid = append(invalid, "AI.Timeout")
	}
	if cfg.Session.TTL <= 0 {
		invalid = append(invalid, "Session.TTL")
	}
	if !cfg.IsLocal() {
		if strings.TrimSpace(cfg.Session.SigningKey) == "" {
			invalid = append(invalid, "Session.SigningKey")
		}
		if strings.TrimSpace(cfg.Telegram.BotToken) == "" {
			invalid = append(invalid, "Telegram.BotToken")
		}
	}
	if cfg.RateLimits.GenerationPerMinute <= 0 {
		invalid = append(invalid, "RateLimits.GenerationPerMinute")
	}
	if cfg.RateLimits.ChatPerMinute <= 0 {
		invalid = append(invalid, "RateLimits.ChatPerMinute")
	}
	if cfg.Checkout.SimulatedDelay < 0 {
		invalid = append(invalid, "Checkout.SimulatedDelay")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{})
	var missing []string
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if resolved[trimmed] == "" {
			missing = append(missing, trimmed)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func stringCSV(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func int64CSVWithDefault(lookup func(string) (string, bool), key string) []int64 {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []int64{}
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		parsed, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil && parsed > 0 {
			out = append(out, parsed)
		}
	}
	return out
}
