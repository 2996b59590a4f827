package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gzhole/shopbot/internal/logger"
	"github.com/spf13/cobra"
)

var (
	logFilterDecision string
	logFilterUser     string
	logLast           int
	logSummary        bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the guardrail audit log",
	Long: `View the audit log of SQL statements and shell commands the assistant
proposed, with the guardrail decision for each.

Examples:
  shopbot log                        # Show all entries
  shopbot log --last 20              # Show last 20 entries
  shopbot log --decision DENY        # Show only denied statements
  shopbot log --user 2               # Show entries for one user id
  shopbot log --summary              # Show summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterDecision, "decision", "", "Filter by decision (ALLOW, DENY)")
	logCmd.Flags().StringVar(&logFilterUser, "user", "", "Filter by user id")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	events, err := readAuditLog(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	if len(events) == 0 {
		fmt.Println("No audit log entries found.")
		return nil
	}

	filtered := filterEvents(events, logFilterDecision, logFilterUser)

	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(events)
		return nil
	}

	printEvents(filtered)
	return nil
}

func readAuditLog(path string) ([]logger.AuditEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []logger.AuditEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event logger.AuditEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue // skip malformed lines
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

func filterEvents(events []logger.AuditEvent, decision, user string) []logger.AuditEvent {
	if decision == "" && user == "" {
		return events
	}

	var filtered []logger.AuditEvent
	for _, e := range events {
		if decision != "" && !strings.EqualFold(e.Decision, decision) {
			continue
		}
		if user != "" && e.User != user {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func printEvents(events []logger.AuditEvent) {
	for _, e := range events {
		ts := formatTimestamp(e.Timestamp)
		icon := decisionIcon(e.Decision)

		fmt.Printf("%s %s [%s] %s\n", icon, ts, e.Domain, e.Statement)
		fmt.Printf("     User: %s  Tool: %s  Mode: %s\n", e.User, e.Tool, e.Mode)
		if e.RuleID != "" {
			fmt.Printf("     Rule: %s\n", e.RuleID)
		}
		if e.Category != "" {
			fmt.Printf("     Category: %s\n", e.Category)
		}
		if e.Error != "" {
			fmt.Printf("     Error: %s\n", e.Error)
		}
		fmt.Println()
	}
}

func printSummary(all []logger.AuditEvent) {
	counts := map[string]int{}
	domains := map[string]int{}
	errorCount := 0

	for _, e := range all {
		counts[e.Decision]++
		domains[e.Domain]++
		if e.Error != "" {
			errorCount++
		}
	}

	fmt.Println("═══════════════════════════════════════════")
	fmt.Println("  ShopBot Audit Summary")
	fmt.Println("═══════════════════════════════════════════")
	fmt.Printf("  Total events:    %d\n", len(all))
	fmt.Printf("  ALLOW:           %d\n", counts["ALLOW"])
	fmt.Printf("  DENY:            %d\n", counts["DENY"])
	fmt.Printf("  SQL:             %d\n", domains["sql"])
	fmt.Printf("  Shell:           %d\n", domains["shell"])
	fmt.Printf("  Errors:          %d\n", errorCount)
	fmt.Println("═══════════════════════════════════════════")

	if len(all) > 0 {
		fmt.Printf("  First event:     %s\n", formatTimestamp(all[0].Timestamp))
		fmt.Printf("  Last event:      %s\n", formatTimestamp(all[len(all)-1].Timestamp))
	}

	var denied []logger.AuditEvent
	for _, e := range all {
		if e.Decision == "DENY" {
			denied = append(denied, e)
		}
	}
	if len(denied) > 0 {
		fmt.Println()
		fmt.Println("  Denied statements:")
		limit := min(len(denied), 10)
		for _, e := range denied[len(denied)-limit:] {
			fmt.Printf("    %s %s (%s)\n", formatTimestamp(e.Timestamp), e.Statement, e.Category)
		}
	}

	fmt.Println()
}

func decisionIcon(decision string) string {
	switch decision {
	case "DENY":
		return "\xf0\x9f\x9b\x91" // stop sign
	case "ALLOW":
		return "\xe2\x9c\x85" // check mark
	default:
		return "\xe2\x9d\x93" // question mark
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
