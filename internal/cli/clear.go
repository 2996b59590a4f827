package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clearUser string

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset a user's conversation to the greeting",
	RunE:  clearCommand,
}

func init() {
	clearCmd.Flags().StringVarP(&clearUser, "user", "u", "", "User id, email or username")
	_ = clearCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(clearCmd)
}

func clearCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.agent.ClearHistory(ctx, clearUser); err != nil {
		return fmt.Errorf("failed to clear history for %s: %w", clearUser, err)
	}
	fmt.Printf("Conversation for %s cleared.\n", clearUser)
	return nil
}
