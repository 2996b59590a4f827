package approval

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestAskFrom(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		approved bool
		action   string
	}{
		{"yes", "y\n", true, "confirm"},
		{"yes word", "Yes\n", true, "confirm"},
		{"no", "n\n", false, "decline"},
		{"retry after garbage", "maybe\nyes\n", true, "confirm"},
		{"eof", "", false, "error_reading_input"},
		{"answer without newline", "n", false, "decline"},
		{"garbage then eof", "maybe", false, "error_reading_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			res := AskFrom(bufio.NewReader(strings.NewReader(tt.input)), &out, Prompt{
				Question:  `Did you mean "Apple Juice (1000ml)"?`,
				Candidate: "Apple Juice (1000ml)",
				Score:     0.72,
			})
			if res.Approved != tt.approved {
				t.Errorf("Approved = %v, want %v", res.Approved, tt.approved)
			}
			if res.UserAction != tt.action {
				t.Errorf("UserAction = %q, want %q", res.UserAction, tt.action)
			}
		})
	}
}

func TestAskFromShowsCandidate(t *testing.T) {
	var out bytes.Buffer
	AskFrom(bufio.NewReader(strings.NewReader("n\n")), &out, Prompt{
		Question:  "Did you mean it?",
		Candidate: "Apple Pomace",
		Score:     0.5,
	})
	s := out.String()
	if !strings.Contains(s, "Did you mean it?") {
		t.Error("question missing from prompt")
	}
	if !strings.Contains(s, "Best match: Apple Pomace (score 0.50)") {
		t.Errorf("candidate line missing: %q", s)
	}
}

func TestAskFromRetryMessage(t *testing.T) {
	var out bytes.Buffer
	AskFrom(bufio.NewReader(strings.NewReader("x\ny\n")), &out, Prompt{Question: "q"})
	if !strings.Contains(out.String(), "Invalid input") {
		t.Error("expected an invalid input notice")
	}
}
