package main

import (
	"testing"

	"ig-vote-bot/internal/domain"
)

func TestParseTokenType(t *testing.T) {
	got, err := parseTokenType(" instagram ")
	if err != nil || got != domain.TokenInstagram {
		t.Fatalf("expected INSTAGRAM, got %q %v", got, err)
	}
	if got, _ := parseTokenType("WhatsApp"); got != domain.TokenWhatsApp {
		t.Fatalf("expected WHATSAPP, got %q", got)
	}
	if _, err := parseTokenType("facebook"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestMaskToken(t *testing.T) {
	if got := maskToken("short"); got != "*****" {
		t.Fatalf("short token must be fully masked, got %q", got)
	}
	if got := maskToken("IGQVJabcdefghijklmn"); got != "IGQV********klmn" {
		t.Fatalf("unexpected mask %q", got)
	}
}

func TestWebhookParams(t *testing.T) {
	params := webhookParams("https://bot.example/bot/webhook", "s3cret")
	if params["url"] != "https://bot.example/bot/webhook" || params["secret_token"] != "s3cret" {
		t.Fatalf("unexpected params %v", params)
	}
	if _, ok := webhookParams("https://bot.example", "")["secret_token"]; ok {
		t.Fatal("empty secret must be omitted")
	}
}
