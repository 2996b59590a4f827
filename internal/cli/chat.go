package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gzhole/shopbot/internal/agent"
	"github.com/gzhole/shopbot/internal/approval"
	"github.com/gzhole/shopbot/internal/tools"
	"github.com/spf13/cobra"
)

var (
	chatUser    string
	chatMessage string
	chatJSON    bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the shop assistant",
	Long: `Start a conversation with the shop assistant as the given user.
With --message a single turn is sent and answered. Otherwise lines are read
from stdin until EOF or "exit"; "/clear" resets the conversation.

Examples:
  shopbot chat --user jim
  shopbot chat --user jim --message "How much is the apple juice?"
  shopbot chat --user admin --mode sql --json`,
	RunE: chatCommand,
}

func init() {
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "", "User id, email or username to chat as")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().BoolVar(&chatJSON, "json", false, "Print responses as JSON")
	_ = chatCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(chatCmd)
}

func chatCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()

	if chatMessage != "" {
		resp, err := rt.agent.Respond(ctx, chatUser, chatMessage)
		printResponse(out, rt.cfg.Bot.Name, resp)
		return err
	}

	st := rt.agent.Status(ctx, chatUser)
	if !chatJSON {
		fmt.Fprintf(out, "%s> %s\n", rt.cfg.Bot.Name, st.Body)
		if !st.Available {
			fmt.Fprintln(out, "(assistant offline: configure model.api_key or OPENAI_API_KEY)")
		}
	}

	interactive := approval.IsInteractive()
	reader := bufio.NewReader(os.Stdin)
	for {
		if interactive {
			fmt.Fprint(os.Stderr, "you> ")
		}
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			if done, rerr := chatLine(ctx, rt, out, reader, interactive, line); rerr != nil || done {
				return rerr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// chatLine handles one REPL line. It reports true when the session should end.
func chatLine(ctx context.Context, rt *runtime, out io.Writer, reader *bufio.Reader, interactive bool, line string) (bool, error) {
	switch line {
	case "exit", "quit":
		return true, nil
	case "/clear":
		if err := rt.agent.ClearHistory(ctx, chatUser); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "Conversation cleared.")
		return false, nil
	}

	resp, err := rt.agent.Respond(ctx, chatUser, line)
	printResponse(out, rt.cfg.Bot.Name, resp)
	if errors.Is(err, agent.ErrUnauthorized) {
		return true, err
	}

	if resp.RequiresConfirmation && interactive {
		p := approval.Prompt{Question: resp.Body}
		if pending, ok := resp.Data.(*tools.PendingConfirmation); ok {
			p.Candidate = pending.Candidate.Name
			p.Score = pending.MatchScore
		}
		if approval.AskFrom(reader, os.Stderr, p).Approved {
			resp, _ = rt.agent.Respond(ctx, chatUser, "yes")
		} else {
			resp, _ = rt.agent.DeclinePending(ctx, chatUser)
		}
		printResponse(out, rt.cfg.Bot.Name, resp)
	}
	return false, nil
}

func printResponse(w io.Writer, bot string, resp agent.Response) {
	if chatJSON {
		data, err := json.Marshal(resp)
		if err != nil {
			fmt.Fprintf(w, "{\"action\":\"error\",\"body\":%q}\n", err.Error())
			return
		}
		fmt.Fprintln(w, string(data))
		return
	}
	fmt.Fprintf(w, "%s> %s\n", bot, resp.Body)
}
