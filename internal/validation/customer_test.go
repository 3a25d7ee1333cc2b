package validation

import "testing"

func TestIsValidName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "simple", input: "John Smith", valid: true},
		{name: "two letters", input: "Al", valid: true},
		{name: "one letter", input: "A", valid: false},
		{name: "digits", input: "John 2", valid: false},
		{name: "too long", input: "AbcdefghijabcdefghijabcdefghijabcdefghijabcdefghijK", valid: false},
		{name: "empty", input: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidName(tt.input); got != tt.valid {
				t.Fatalf("IsValidName(%q) = %v, want %v", tt.input, got, tt.valid)
			}
		})
	}
}

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "international", input: "+359881234567", valid: true},
		{name: "ten digits", input: "0881234567", valid: true},
		{name: "too short", input: "12345", valid: false},
		{name: "too long", input: "1234567890123456", valid: false},
		{name: "dashes", input: "088-123-4567", valid: false},
		{name: "plus in the middle", input: "0881+234567", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidPhone(tt.input); got != tt.valid {
				t.Fatalf("IsValidPhone(%q) = %v, want %v", tt.input, got, tt.valid)
			}
		})
	}
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "simple", input: "john@example.com", valid: true},
		{name: "dots and dashes", input: "john.smith-jr@mail.example.org", valid: true},
		{name: "no at", input: "john.example.com", valid: false},
		{name: "no tld", input: "john@example", valid: false},
		{name: "long tld", input: "john@example.company", valid: false},
		{name: "spaces", input: "john smith@example.com", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidEmail(tt.input); got != tt.valid {
				t.Fatalf("IsValidEmail(%q) = %v, want %v", tt.input, got, tt.valid)
			}
		})
	}
}

func TestIsValidAccessCode(t *testing.T) {
	for code, valid := range map[string]bool{
		"1234":  true,
		"0000":  true,
		"123":   false,
		"12345": false,
		"12a4":  false,
	} {
		if got := IsValidAccessCode(code); got != valid {
			t.Fatalf("IsValidAccessCode(%q) = %v, want %v", code, got, valid)
		}
	}
}
