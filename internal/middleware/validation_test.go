package middleware

import (
	"strings"
	"testing"
)

func TestValidateMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		valid   bool
	}{
		{"plain text", "hello there", true},
		{"unicode", "¿sigue disponible? 😀", true},
		{"empty", "", false},
		{"whitespace only", "  \n\t  ", false},
		{"at limit", strings.Repeat("a", 10000), true},
		{"over limit", strings.Repeat("a", 10001), false},
		{"invalid utf8", "abc\xff", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.content)
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateIDs(t *testing.T) {
	valid := "018fd3a1-7b6a-7c3e-9f4b-2a1c5d8e0f3b"
	if err := ValidateConversationID(valid); err != nil {
		t.Errorf("valid conversation id rejected: %v", err)
	}
	if err := ValidateUserID(valid); err != nil {
		t.Errorf("valid user id rejected: %v", err)
	}
	if err := ValidateListingID(valid); err != nil {
		t.Errorf("valid listing id rejected: %v", err)
	}

	for _, bad := range []string{"", "not-a-uuid", "12345", "018fd3a1-7b6a"} {
		if err := ValidateConversationID(bad); err == nil {
			t.Errorf("invalid id %q accepted", bad)
		}
	}
}
