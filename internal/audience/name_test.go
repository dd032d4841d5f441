package audience

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"José  O'Brien", "joseobrien"},
		{"MARIA", "maria"},
		{"Łukasz Żółć", "lukaszzolc"},
		{"Anne-Marie", "annemarie"},
		{"jean_luc", "jeanluc"},
		{"R2 D2", "r2d2"},
		{"\tTab\nNewline ", "tabnewline"},
		{"...", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeName(tt.in); got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeNameIdempotent(t *testing.T) {
	inputs := []string{"José  O'Brien", "Ærøskøbing", "Smith-Jones III", "  ", "Zoë_Ünal", "123 Main"}
	for _, in := range inputs {
		once := NormalizeName(in)
		if twice := NormalizeName(once); twice != once {
			t.Errorf("NormalizeName not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in          string
		first, last string
	}{
		{"Maria Garcia Lopez", "Maria", "Lopez"},
		{"Cher", "Cher", "Cher"},
		{"  Ada   Lovelace ", "Ada", "Lovelace"},
		{"", "", ""},
		{"   ", "", ""},
	}

	for _, tt := range tests {
		first, last := SplitName(tt.in)
		if first != tt.first || last != tt.last {
			t.Errorf("SplitName(%q) = (%q, %q), want (%q, %q)", tt.in, first, last, tt.first, tt.last)
		}
	}
}
