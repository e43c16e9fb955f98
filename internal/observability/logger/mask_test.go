package logger

import "testing"

func TestMaskAuthorization(t *testing.T) {
	got := MaskAuthorization("Bearer abcdef1234")
	want := "Bearer ****1234"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMaskJSON(t *testing.T) {
	input := map[string]any{
		"payments_token": "tok_12345678",
		"base_url":       "https://payments.example.com",
		"nested": map[string]any{
			"api_key": "key_12345678",
		},
	}
	masked := MaskJSON(input)
	if masked["payments_token"] != "****5678" {
		t.Fatalf("expected masked token, got %v", masked["payments_token"])
	}
	if masked["base_url"] != "https://payments.example.com" {
		t.Fatalf("expected base_url untouched, got %v", masked["base_url"])
	}
	nested, ok := masked["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map")
	}
	if nested["api_key"] != "****5678" {
		t.Fatalf("expected masked api_key, got %v", nested["api_key"])
	}
}

func TestMaskAPIKeyShortValue(t *testing.T) {
	if got := MaskAPIKey("ab"); got != "****ab" {
		t.Fatalf("expected ****ab, got %q", got)
	}
}
