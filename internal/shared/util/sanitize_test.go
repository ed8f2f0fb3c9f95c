package util

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "report.pdf", "report.pdf", false},
		{"spaces trimmed", "  scan.png  ", "scan.png", false},
		{"separators replaced", "a/b\\c.txt", "a_b_c.txt", false},
		{"traversal rejected", "../../etc/passwd", "", true},
		{"empty rejected", "   ", "", true},
		{"control chars dropped", "note\x00\x1f.txt", "note.txt", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SanitizeFileName(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
