package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/shopbot/internal/agent"
)

var (
	replayConcurrency int
	replayJSON        bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <transcript.yaml>",
	Short: "Replay a scripted multi-user conversation",
	Long: `Replay a YAML transcript through the assistant. Turns of different users
run concurrently; turns of the same user run in order.

Transcript format:

  turns:
    - user: jim
      message: How much is the apple juice?
    - user: bender
      message: What's in my basket?
    - user: jim
      message: Add two of them to my basket

  shopbot replay demo.yaml --concurrency 4`,
	Args: cobra.ExactArgs(1),
	RunE: replayCommand,
}

func init() {
	replayCmd.Flags().IntVar(&replayConcurrency, "concurrency", 4, "Maximum number of users replayed at once")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(replayCmd)
}

type transcript struct {
	Turns []transcriptTurn `yaml:"turns"`
}

type transcriptTurn struct {
	User    string `yaml:"user"`
	Message string `yaml:"message"`
}

type replayResult struct {
	User     string         `json:"user"`
	Message  string         `json:"message"`
	Response agent.Response `json:"response"`
	Error    string         `json:"error,omitempty"`
}

// responder is the part of the orchestrator replay drives.
type responder interface {
	Respond(ctx context.Context, userID, query string) (agent.Response, error)
}

func parseTranscript(data []byte) (*transcript, error) {
	var t transcript
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse transcript: %w", err)
	}
	if len(t.Turns) == 0 {
		return nil, errors.New("transcript has no turns")
	}
	for i, turn := range t.Turns {
		if strings.TrimSpace(turn.User) == "" {
			return nil, fmt.Errorf("turn %d: user is required", i+1)
		}
	}
	return &t, nil
}

// replay runs t through r. Results keep the transcript's order. Respond
// errors are recorded per turn; only cancellation of ctx aborts the run.
func replay(ctx context.Context, r responder, t *transcript, limit int) ([]replayResult, error) {
	results := make([]replayResult, len(t.Turns))
	byUser := make(map[string][]int)
	var users []string
	for i, turn := range t.Turns {
		if _, ok := byUser[turn.User]; !ok {
			users = append(users, turn.User)
		}
		byUser[turn.User] = append(byUser[turn.User], i)
	}

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, user := range users {
		g.Go(func() error {
			for _, i := range byUser[user] {
				if err := ctx.Err(); err != nil {
					return err
				}
				turn := t.Turns[i]
				resp, err := r.Respond(ctx, turn.User, turn.Message)
				results[i] = replayResult{User: turn.User, Message: turn.Message, Response: resp}
				if err != nil {
					results[i].Error = err.Error()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func replayCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	t, err := parseTranscript(data)
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	results, err := replay(ctx, rt.agent, t, replayConcurrency)
	if err != nil {
		return err
	}
	return printReplay(cmd.OutOrStdout(), rt.cfg.Bot.Name, results)
}

func printReplay(w io.Writer, bot string, results []replayResult) error {
	if replayJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		fmt.Fprintf(w, "%s> %s\n", r.User, r.Message)
		fmt.Fprintf(w, "%s> %s\n", bot, r.Response.Body)
		if r.Error != "" {
			fmt.Fprintf(w, "     Error: %s\n", r.Error)
		}
		fmt.Fprintln(w)
	}
	return nil
}
