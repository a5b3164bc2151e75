package logging

import "testing"

func TestMaskSensitiveQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"no sensitive keys", "page=2&sort=asc", "page=2&sort=asc"},
		{"code and state", "code=abc123&state=xyz", "code=***&state=***"},
		{"mixed order preserved", "lang=en&code=abc&foo=bar", "lang=en&code=***&foo=bar"},
		{"case insensitive key", "Access_Token=t0k", "Access_Token=***"},
		{"escaped key", "id%5Ftoken=eyJ", "id%5Ftoken=***"},
		{"flag without value", "code&state=s", "code&state=***"},
		{"error redirect keeps description", "error=access_denied&error_description=nope&state=s", "error=access_denied&error_description=nope&state=***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSensitiveQuery(tt.input); got != tt.want {
				t.Errorf("MaskSensitiveQuery(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
