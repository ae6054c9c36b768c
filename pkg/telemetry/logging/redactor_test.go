package logging

import (
	"log/slog"
	"testing"
)

func TestRedactor_RedactString(t *testing.T) {
	r, err := NewRedactor(nil)
	if err != nil {
		t.Fatalf("NewRedactor() error = %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"email", "contact jane.doe@acme.io today", "contact ***@acme.io today"},
		{"phone with country code", "call +1 415 555 0100", "call ***-***-****"},
		{"phone dashed", "415-555-0100", "***-***-****"},
		{"openai key", "key sk-abc123XYZ", "key ***"},
		{"bearer", "Authorization: Bearer abc.def-ghi", "Authorization: Bearer ***"},
		{"uuid untouched", "550e8400-e29b-41d4-a716-446655440000", "550e8400-e29b-41d4-a716-446655440000"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactString(tt.input); got != tt.want {
				t.Errorf("RedactString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactor_CustomPattern(t *testing.T) {
	r, err := NewRedactor([]RedactPattern{{Name: "crm_id", Pattern: `crm_[0-9]+`, Replacement: "crm_***"}})
	if err != nil {
		t.Fatalf("NewRedactor() error = %v", err)
	}
	if got := r.RedactString("contact crm_4411"); got != "contact crm_***" {
		t.Errorf("RedactString() = %q, want %q", got, "contact crm_***")
	}
}

func TestRedactor_RedactAttr(t *testing.T) {
	r, err := NewRedactor(nil)
	if err != nil {
		t.Fatalf("NewRedactor() error = %v", err)
	}

	tests := []struct {
		name string
		attr slog.Attr
		want slog.Attr
	}{
		{
			name: "non string passes through",
			attr: slog.Int("count", 4),
			want: slog.Int("count", 4),
		},
		{
			name: "sensitive non string masked",
			attr: slog.Int("secret", 4),
			want: slog.String("secret", "***"),
		},
		{
			name: "group descends",
			attr: slog.Group("contact", slog.String("email", "a@b.com")),
			want: slog.Group("contact", slog.String("email", "***@b.com")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactAttr(tt.attr); !got.Equal(tt.want) {
				t.Errorf("RedactAttr() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRedactAPIKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"abc", "***"},
		{"sk-1234567", "sk-1***"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := RedactAPIKey(tt.input); got != tt.want {
				t.Errorf("RedactAPIKey(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
