package validation

import "testing"

func TestIsValidTenantID(t *testing.T) {
	valid := []string{
		"tnt_0123456789abcdef01234567",
		"tnt_aaaaaaaaaaaaaaaaaaaaaaaa",
	}
	for _, id := range valid {
		if !IsValidTenantID(id) {
			t.Errorf("Expected %q to be valid", id)
		}
	}

	invalid := []string{
		"",
		"tnt_",
		"tnt_short",
		"ten_0123456789abcdef01234567",
		"tnt_0123456789ABCDEF01234567",  // uppercase
		"tnt_0123456789abcdef012345678", // too long
		"0123456789abcdef01234567",
	}
	for _, id := range invalid {
		if IsValidTenantID(id) {
			t.Errorf("Expected %q to be invalid", id)
		}
	}
}

func TestIsValidActionKind(t *testing.T) {
	valid := []string{"ai_reply", "integration_sync", "document_ingest", "x"}
	for _, k := range valid {
		if !IsValidActionKind(k) {
			t.Errorf("Expected %q to be valid", k)
		}
	}

	invalid := []string{"", "AI_Reply", "1action", "_hidden", "has space", "has-dash"}
	for _, k := range invalid {
		if IsValidActionKind(k) {
			t.Errorf("Expected %q to be invalid", k)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"  hello  ", 100, "hello"},
		{"hello\x00world", 100, "helloworld"},
		{"toolongstring", 5, "toolo"},
		{"", 100, ""},
	}
	for _, tt := range tests {
		if got := SanitizeString(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("name", ""),
		Required("slug", "ok"),
		ValidActionKind("actionKind", "Bad-Kind"),
	)
	if len(errs) != 2 {
		t.Fatalf("Expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Field != "name" {
		t.Errorf("Expected first error on name, got %s", errs[0].Field)
	}
}

func TestValidAmount(t *testing.T) {
	valid := []string{"1", "0.5", "100.0001", ""}
	for _, v := range valid {
		if err := ValidAmount("amount", v)(); err != nil {
			t.Errorf("Expected %q to be valid, got %v", v, err)
		}
	}

	invalid := []string{"0", "0.0", "-1", "1.2.3", ".5", "5.", "abc", "1e5"}
	for _, v := range invalid {
		if err := ValidAmount("amount", v)(); err == nil {
			t.Errorf("Expected %q to be invalid", v)
		}
	}
}

func TestMaxLength(t *testing.T) {
	if err := MaxLength("field", "short", 10)(); err != nil {
		t.Errorf("Expected short string to pass, got %v", err)
	}
	if err := MaxLength("field", "this is far too long", 5)(); err == nil {
		t.Error("Expected long string to fail")
	}
}
