package extract

import "testing"

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"crlf", "a\r\nb", "a\nb"},
		{"trailing whitespace before newline", "line  \t\nnext", "line\nnext"},
		{"collapse blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"two newlines kept", "a\n\nb", "a\n\nb"},
		{"horizontal whitespace", "a  \t  b", "a b"},
		{"trim", "  \n hello \n  ", "hello"},
		{"whitespace only", " \t \n ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Fatalf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
