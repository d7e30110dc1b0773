package state

import "testing"

func TestEllipsize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short stays whole", "hello", 10, "hello"},
		{"exact stays whole", "hello", 5, "hello"},
		{"long truncates", "hello world", 5, "hello…"},
		{"multibyte counts runes", "héllo wörld", 5, "héllo…"},
		{"zero max", "hello", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ellipsize(tt.in, tt.max); got != tt.want {
				t.Fatalf("Ellipsize(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}
