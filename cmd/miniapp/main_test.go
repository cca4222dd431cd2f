package main

import "testing"

func TestRequiredSecretNames(t *testing.T) {
	if got := requiredSecretNames(nil); len(got) != 0 {
		t.Fatalf("expected no required secrets by default, got %v", got)
	}
	if got := requiredSecretNames(map[string]string{"MINIAPP_ENVIRONMENT": " Local "}); len(got) != 0 {
		t.Fatalf("expected no required secrets locally, got %v", got)
	}
	got := requiredSecretNames(map[string]string{"MINIAPP_ENVIRONMENT": "prod"})
	if len(got) != 2 || got[0] != "Session.SigningKey" || got[1] != "Telegram.BotToken" {
		t.Fatalf("unexpected required secrets %v", got)
	}
}
