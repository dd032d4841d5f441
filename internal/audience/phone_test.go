package audience

import "testing"

func TestPhoneDigits(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (555) 123-4567", "5551234567"},
		{"555.123.4567", "5551234567"},
		{"0044 20 7946 0958", "2079460958"},
		{"12345", "12345"},
		{"ext.", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := PhoneDigits(tt.in); got != tt.want {
			t.Errorf("PhoneDigits(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone("+1 (555) 123-4567", "+1"); got != "+15551234567" {
		t.Errorf("got %q", got)
	}
	if got := NormalizePhone("555-123-4567", ""); got != "5551234567" {
		t.Errorf("unresolved country should leave bare digits, got %q", got)
	}
	for _, raw := range []string{"", "n/a", "  -  "} {
		if got := NormalizePhone(raw, "+1"); got != "" {
			t.Errorf("NormalizePhone(%q, \"+1\") = %q, want empty", raw, got)
		}
	}
}
