package session

import "testing"

func TestParseHelp(t *testing.T) {
	tests := []struct {
		script    string
		wantTopic string
		wantRest  string
		wantOK    bool
	}{
		{"help(mean)", "mean", "", true},
		{`help("lm")`, "lm", "", true},
		{"help(mean); x <- 1", "mean", "x <- 1", true},
		{"x <- 2\nhelp(plot)", "plot", "x <- 2\n", true},
		{"?data.frame", "data.frame", "", true},
		{"x <- 1", "", "x <- 1", false},
		{"helper(x)", "", "helper(x)", false},
	}
	for _, tt := range tests {
		topic, rest, ok := parseHelp(tt.script)
		if ok != tt.wantOK || topic != tt.wantTopic || rest != tt.wantRest {
			t.Errorf("parseHelp(%q) = %q, %q, %v; want %q, %q, %v",
				tt.script, topic, rest, ok, tt.wantTopic, tt.wantRest, tt.wantOK)
		}
	}
}
