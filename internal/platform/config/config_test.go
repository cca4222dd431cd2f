package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Store.ShippingFee != 25 {
		t.Errorf("expected shipping fee 25, got %d", cfg.Store.ShippingFee)
	}
	if cfg.Store.CatalogSource != CatalogSourceSeed {
		t.Errorf("expected seed catalog, got %s", cfg.Store.CatalogSource)
	}
	if cfg.AI.ChatModel != defaultAIChatModel || cfg.AI.ImageModel != defaultAIImageModel {
		t.Errorf("unexpected ai models %s / %s", cfg.AI.ChatModel, cfg.AI.ImageModel)
	}
	if cfg.AI.Enabled() {
		t.Errorf("expected ai disabled without api key")
	}
	if !cfg.IsLocal() {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.Checkout.SimulatedDelay != 1500*time.Millisecond {
		t.Errorf("unexpected checkout delay %s", cfg.Checkout.SimulatedDelay)
	}
	if cfg.RateLimits.GenerationPerMinute != 6 || cfg.RateLimits.ChatPerMinute != 30 {
		t.Errorf("unexpected rate limits %+v", cfg.RateLimits)
	}
	if len(cfg.Telegram.AdminUserIDs) != 0 {
		t.Errorf("expected no admin ids, got %v", cfg.Telegram.AdminUserIDs)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"MINIAPP_ENVIRONMENT":              "prod",
		"MINIAPP_SERVER_PORT":              "9090",
		"MINIAPP_SERVER_IDLE_TIMEOUT":      "2m",
		"MINIAPP_SERVER_ALLOWED_ORIGINS":   "https://web.telegram.org, https://muse.example",
		"MINIAPP_STORE_SHIPPING_FEE":       "40",
		"MINIAPP_STORE_CATALOG_SOURCE":     "Firestore",
		"MINIAPP_FIRESTORE_PROJECT_ID":     "muse-prod",
		"MINIAPP_STORAGE_MEDIA_BUCKET":     "muse-media",
		"MINIAPP_PUBSUB_MEDIA_TOPIC":       "media-committed",
		"MINIAPP_AI_API_KEY":               "sm://ai/key",
		"MINIAPP_AI_ENDPOINT":              "https://ai.example.com/v1/",
		"MINIAPP_TELEGRAM_BOT_TOKEN":       "secret://telegram/bot",
		"MINIAPP_TELEGRAM_ADMIN_USER_IDS":  "42, 7, nope",
		"MINIAPP_SESSION_SIGNING_KEY":      "secret://session/key",
		"MINIAPP_SESSION_TTL":              "1h",
		"MINIAPP_CHECKOUT_SIMULATED_DELAY": "0s",
	}
	secrets := map[string]string{
		"secret://ai/key":       "ai-key",
		"secret://telegram/bot": "bot-token",
		"secret://session/key":  "signing-key",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://muse.example" {
		t.Errorf("unexpected allowed origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Store.ShippingFee != 40 {
		t.Errorf("expected shipping fee 40, got %d", cfg.Store.ShippingFee)
	}
	if cfg.Store.CatalogSource != CatalogSourceFirestore {
		t.Errorf("expected firestore catalog source, got %s", cfg.Store.CatalogSource)
	}
	if cfg.PubSub.ProjectID != "muse-prod" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.AI.APIKey != "ai-key" {
		t.Errorf("expected resolved ai key, got %s", cfg.AI.APIKey)
	}
	if cfg.AI.Endpoint != "https://ai.example.com/v1" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.AI.Endpoint)
	}
	if cfg.Telegram.BotToken != "bot-token" || cfg.Session.SigningKey != "signing-key" {
		t.Errorf("unexpected resolved secrets %q %q", cfg.Telegram.BotToken, cfg.Session.SigningKey)
	}
	if len(cfg.Telegram.AdminUserIDs) != 2 || cfg.Telegram.AdminUserIDs[0] != 42 || cfg.Telegram.AdminUserIDs[1] != 7 {
		t.Errorf("unexpected admin ids %v", cfg.Telegram.AdminUserIDs)
	}
	if cfg.Session.TTL != time.Hour {
		t.Errorf("unexpected session ttl %s", cfg.Session.TTL)
	}
	if cfg.Checkout.SimulatedDelay != 0 {
		t.Errorf("expected zero checkout delay, got %s", cfg.Checkout.SimulatedDelay)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "MINIAPP_SERVER_PORT=7070\nexport MINIAPP_STORE_CURRENCY_SYMBOL=\"€\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Store.CurrencySymbol != "€" {
		t.Errorf("expected currency symbol from dotenv, got %s", cfg.Store.CurrencySymbol)
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
}

func TestLoadValidationOutsideLocal(t *testing.T) {
	env := map[string]string{
		"MINIAPP_ENVIRONMENT":          "prod",
		"MINIAPP_STORE_CATALOG_SOURCE": "firestore",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := map[string]bool{}
	for _, field := range validation.Fields() {
		fields[field] = true
	}
	for _, want := range []string{"Firestore.ProjectID", "Session.SigningKey", "Telegram.BotToken"} {
		if !fields[want] {
			t.Errorf("expected %s in invalid fields %v", want, validation.Fields())
		}
	}
}

func TestLoadRejectsUnknownCatalogSource(t *testing.T) {
	env := map[string]string{"MINIAPP_STORE_CATALOG_SOURCE": "postgres"}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{"MINIAPP_AI_API_KEY": "secret://missing"}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{}),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("AI.APIKey"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != redactSecretName("AI.APIKey") {
		t.Fatalf("unexpected redacted names %v", got)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "AI.APIKey" {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "MINIAPP_FIRESTORE_PROJECT_ID=dot-project\nMINIAPP_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("MINIAPP_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("MINIAPP_SECRET_PROJECT_ID", "secrets-project")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"MINIAPP_FIRESTORE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["MINIAPP_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["MINIAPP_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["MINIAPP_SECRET_PROJECT_ID"]; got != "secrets-project" {
		t.Fatalf("expected system env value, got %s", got)
	}
}
