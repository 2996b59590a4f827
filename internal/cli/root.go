package cli

import (
	"github.com/spf13/cobra"
)

var (
	configFile string
	policyPath string
	logPath    string
	mode       string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "shopbot",
	Short: "ShopBot - conversational storefront assistant",
	Long: `ShopBot is a chat assistant for an online juice shop. It answers
product questions, manages the shopper's basket and, in the elevated modes,
runs SQL and host commands behind a deterministic guardrail policy.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config YAML file (default: ~/.shopbot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Path to guardrail policy YAML file (default: ~/.shopbot/policy.yaml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "Path to audit log file (default: ~/.shopbot/audit.jsonl)")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "Tool mode: basic, sql or privileged")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func Execute() error {
	return rootCmd.Execute()
}
