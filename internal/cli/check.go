package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gzhole/shopbot/internal/guardrail"
	"github.com/spf13/cobra"
)

var errDenied = errors.New("denied by guardrail policy")

var checkSelfTest bool

var checkCmd = &cobra.Command{
	Use:   "check [sql|shell] <statement>",
	Short: "Evaluate a SQL statement or shell command against the guardrail",
	Long: `Evaluate a statement against the configured guardrail policy and packs
without running it. Exits non-zero when the statement is denied.

With --self-test a built-in set of known-dangerous and known-safe inputs is
evaluated instead.

Examples:
  shopbot check sql "SELECT * FROM products"
  shopbot check sql "DROP TABLE users"
  shopbot check shell "systemctl stop juice-shop"
  shopbot check --self-test`,
	Args: func(cmd *cobra.Command, args []string) error {
		if checkSelfTest {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(2)(cmd, args)
	},
	RunE: checkCommand,
}

func init() {
	checkCmd.Flags().BoolVar(&checkSelfTest, "self-test", false, "Run the built-in guardrail self-test")
	rootCmd.AddCommand(checkCmd)
}

func checkCommand(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	engine, _, err := loadEngine(cfg)
	if err != nil {
		return err
	}

	if checkSelfTest {
		return selfTest(engine)
	}

	domain, ok := guardrail.ParseDomain(args[0])
	if !ok {
		return fmt.Errorf("unknown domain %q (want sql or shell)", args[0])
	}
	statement := strings.Join(args[1:], " ")

	v := engine.Evaluate(statement, domain)
	fmt.Print(guardrail.Explain(statement, domain, v))
	if !v.Allowed {
		return errDenied
	}
	return nil
}

type checkCase struct {
	label     string
	domain    guardrail.Domain
	statement string
	allowed   bool
}

func selfTest(engine *guardrail.Engine) error {
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("  ShopBot Guardrail Self-Test")
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println()

	cases := []checkCase{
		{"Catalog read", guardrail.DomainSQL, "SELECT name, price FROM products", true},
		{"Drop table", guardrail.DomainSQL, "DROP TABLE users", false},
		{"Truncate", guardrail.DomainSQL, "TRUNCATE basket_items", false},
		{"Bulk user delete", guardrail.DomainSQL, "DELETE FROM users WHERE 1=1", false},
		{"Stacked user delete", guardrail.DomainSQL, "SELECT 1; DELETE FROM users WHERE 2=2", false},
		{"Timing attack", guardrail.DomainSQL, "SELECT sleep(10)", false},
		{"Restricted table", guardrail.DomainSQL, "SELECT * FROM cards", false},
		{"Comment-hidden drop", guardrail.DomainSQL, "/* hi */ DROP TABLE products", false},
		{"Directory listing", guardrail.DomainShell, "ls -la", true},
		{"Stop service", guardrail.DomainShell, "sudo systemctl stop juice-shop", false},
		{"Chained shutdown", guardrail.DomainShell, "echo bye && shutdown -h now", false},
		{"Wipe root", guardrail.DomainShell, "rm -rf /", false},
		{"Wrapped reboot", guardrail.DomainShell, "nohup /sbin/reboot", false},
		{"Inline script", guardrail.DomainShell, `sh -c "pkill node"`, false},
	}

	sections := []struct {
		title  string
		domain guardrail.Domain
	}{
		{"─── SQL Policy ────────────────────────────────────────", guardrail.DomainSQL},
		{"─── Shell Policy ──────────────────────────────────────", guardrail.DomainShell},
	}

	passed := 0
	for _, sec := range sections {
		fmt.Println(sec.title)
		for _, tc := range cases {
			if tc.domain != sec.domain {
				continue
			}
			v := engine.Evaluate(tc.statement, tc.domain)
			icon := "✅"
			if v.Allowed == tc.allowed {
				passed++
			} else {
				icon = "❌"
			}
			fmt.Printf("  %s  %-20s  %s → %s\n", icon, tc.label, tc.statement, v.Decision())
		}
		fmt.Println()
	}

	failed := len(cases) - passed
	fmt.Println("═══════════════════════════════════════════════════════")
	if failed == 0 {
		fmt.Printf("  ✅ All %d checks passed\n", len(cases))
	} else {
		fmt.Printf("  ⚠  %d/%d checks passed, %d failed\n", passed, len(cases), failed)
		fmt.Println("  Review your policy and packs.")
	}
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println()
	return nil
}
