package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"STORE_FIREBASE_PROJECT_ID": "velvette-test",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(baseEnv()),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Checkout.Currency != "VND" {
		t.Fatalf("expected default currency VND, got %q", cfg.Checkout.Currency)
	}
	if cfg.Checkout.ShippingFee != 30000 {
		t.Fatalf("expected default shipping fee 30000, got %d", cfg.Checkout.ShippingFee)
	}
	if cfg.Outbox.MaxAttempts != 8 {
		t.Fatalf("expected default outbox attempts 8, got %d", cfg.Outbox.MaxAttempts)
	}
	if cfg.Outbox.BaseBackoff != 500*time.Millisecond {
		t.Fatalf("unexpected base backoff %s", cfg.Outbox.BaseBackoff)
	}
	if cfg.Firestore.ProjectID != "velvette-test" {
		t.Fatalf("expected firestore project inherited from firebase, got %q", cfg.Firestore.ProjectID)
	}
	if cfg.Events.ProjectID != "velvette-test" {
		t.Fatalf("expected events project inherited from firebase, got %q", cfg.Events.ProjectID)
	}
	if cfg.Environment != "local" {
		t.Fatalf("expected default environment local, got %q", cfg.Environment)
	}
}

func TestLoadEnvMapOverridesDefaults(t *testing.T) {
	env := baseEnv()
	env["STORE_SERVER_PORT"] = "9191"
	env["STORE_SERVER_READ_TIMEOUT"] = "5s"
	env["STORE_CHECKOUT_CURRENCY"] = "usd"
	env["STORE_CHECKOUT_SHIPPING_FEE"] = "45000"
	env["STORE_OUTBOX_MAX_ATTEMPTS"] = "3"
	env["STORE_GUEST_CART_PATH"] = "/tmp/cart.db"

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9191" {
		t.Fatalf("expected port override, got %q", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("expected read timeout override, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Checkout.Currency != "USD" {
		t.Fatalf("expected currency upper-cased, got %q", cfg.Checkout.Currency)
	}
	if cfg.Checkout.ShippingFee != 45000 {
		t.Fatalf("expected shipping fee override, got %d", cfg.Checkout.ShippingFee)
	}
	if cfg.Outbox.MaxAttempts != 3 {
		t.Fatalf("expected outbox attempt override, got %d", cfg.Outbox.MaxAttempts)
	}
	if cfg.GuestStore.Path != "/tmp/cart.db" {
		t.Fatalf("expected guest store path override, got %q", cfg.GuestStore.Path)
	}
}

func TestLoadDotEnvLowestPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	contents := "STORE_FIREBASE_PROJECT_ID=dotenv-project\nSTORE_SERVER_PORT=7000\n# comment\nexport STORE_CHECKOUT_CURRENCY=\"eur\"\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(envFile),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{
			"STORE_SERVER_PORT": "7001",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Firebase.ProjectID != "dotenv-project" {
		t.Fatalf("expected dotenv project, got %q", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "7001" {
		t.Fatalf("expected env map to win over dotenv, got %q", cfg.Server.Port)
	}
	if cfg.Checkout.Currency != "EUR" {
		t.Fatalf("expected quoted export value parsed, got %q", cfg.Checkout.Currency)
	}
}

func TestLoadMissingRequiredFields(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{}),
	)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	fields := validation.Fields()
	found := false
	for _, field := range fields {
		if field == "Firebase.ProjectID" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Firebase.ProjectID in %v", fields)
	}
}

func TestLoadRejectsInvalidBackoffWindow(t *testing.T) {
	env := baseEnv()
	env["STORE_OUTBOX_BASE_BACKOFF"] = "1m"
	env["STORE_OUTBOX_MAX_BACKOFF"] = "1s"

	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
	)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := baseEnv()
	env["STORE_STRIPE_API_KEY"] = "sm://projects/p/secrets/stripe/versions/latest"

	var seenRef string
	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithSecretResolver(SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			seenRef = ref
			return "sk_test_resolved", nil
		})),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Stripe.APIKey != "sk_test_resolved" {
		t.Fatalf("expected resolved stripe key, got %q", cfg.Stripe.APIKey)
	}
	if seenRef != "secret://projects/p/secrets/stripe/versions/latest" {
		t.Fatalf("expected normalised secret ref, got %q", seenRef)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := baseEnv()
	env["STORE_STRIPE_API_KEY"] = "secret://projects/p/secrets/stripe"

	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithSecretResolver(SecretResolverFunc(func(context.Context, string) (string, error) {
			return "", errors.New("backend down")
		})),
	)
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected *SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://projects/p/secrets/stripe" {
		t.Fatalf("unexpected ref %q", secretErr.Ref)
	}
}

func TestLoadRequiredSecretsMissing(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(baseEnv()),
		WithRequiredSecrets("Stripe.APIKey"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingSecretsError, got %v", err)
	}
	if len(missing.RedactedNames()) != 1 {
		t.Fatalf("expected one redacted name, got %v", missing.RedactedNames())
	}
}
