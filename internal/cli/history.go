package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyUser string
	historyLast int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the durable chat log for a user",
	Long: `Print the persisted messages exchanged with a user, oldest first.

  shopbot history --user jim
  shopbot history --user jim --last 10`,
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().StringVarP(&historyUser, "user", "u", "", "User id, email or username")
	historyCmd.Flags().IntVar(&historyLast, "last", 0, "Show last N messages")
	_ = historyCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(historyCmd)
}

func historyCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	u, err := s.LookupUser(ctx, historyUser)
	if err != nil {
		return fmt.Errorf("unknown user %q: %w", historyUser, err)
	}

	msgs, err := s.ListMessages(ctx, strconv.FormatInt(u.ID, 10))
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if len(msgs) == 0 {
		fmt.Printf("No messages for %s.\n", u.Email)
		return nil
	}
	if historyLast > 0 && historyLast < len(msgs) {
		msgs = msgs[len(msgs)-historyLast:]
	}

	for _, m := range msgs {
		ts := time.UnixMilli(m.CreatedTs).Local().Format("2006-01-02 15:04:05")
		fmt.Printf("%s %-9s %s\n", ts, m.Role+":", m.Content)
	}
	return nil
}
