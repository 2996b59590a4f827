package approval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type Result struct {
	Approved   bool
	UserAction string
}

// Prompt describes a low-confidence match the shopper must confirm.
type Prompt struct {
	Question  string
	Candidate string
	Score     float64
}

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Ask prompts on the terminal. Non-interactive sessions are declined.
func Ask(p Prompt) Result {
	if !IsInteractive() {
		return Result{
			Approved:   false,
			UserAction: "auto_deny_non_interactive",
		}
	}
	return AskFrom(bufio.NewReader(os.Stdin), os.Stderr, p)
}

// AskFrom shows p on w and reads the answer from r until it is valid.
func AskFrom(r *bufio.Reader, w io.Writer, p Prompt) Result {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║              ❓  CONFIRMATION REQUIRED                        ║")
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, p.Question)
	fmt.Fprintln(w, "")

	if p.Candidate != "" {
		fmt.Fprintf(w, "Best match: %s (score %.2f)\n", p.Candidate, p.Score)
		fmt.Fprintln(w, "")
	}

	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  [y] Yes - go ahead with the best match")
	fmt.Fprintln(w, "  [n] No - leave the basket unchanged")
	fmt.Fprintln(w, "")

	for {
		fmt.Fprint(w, "Your choice [y/n]: ")
		input, err := r.ReadString('\n')
		if err != nil && input == "" {
			return Result{
				Approved:   false,
				UserAction: "error_reading_input",
			}
		}

		input = strings.TrimSpace(strings.ToLower(input))

		switch input {
		case "y", "yes", "a", "approve":
			return Result{
				Approved:   true,
				UserAction: "confirm",
			}
		case "n", "no", "d", "deny":
			return Result{
				Approved:   false,
				UserAction: "decline",
			}
		default:
			if err != nil {
				return Result{
					Approved:   false,
					UserAction: "error_reading_input",
				}
			}
			fmt.Fprintln(w, "Invalid input. Please enter 'y' to confirm or 'n' to decline.")
		}
	}
}
