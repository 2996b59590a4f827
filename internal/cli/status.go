package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/gzhole/shopbot/internal/config"
	"github.com/gzhole/shopbot/internal/redact"
	"github.com/spf13/cobra"
)

var statusUser string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ShopBot status: model, database, policy, audit log",
	Long: `Check whether the assistant is available and which database, guardrail
policy and audit log it uses. With --user the greeting for that user is shown.

  shopbot status
  shopbot status --user jim`,
	RunE: statusCommand,
}

func init() {
	statusCmd.Flags().StringVarP(&statusUser, "user", "u", "", "Show the greeting for this user")
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("  ShopBot Status")
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println()

	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Printf("  Binary:    %s (%s)\n", binPath, Version)
	fmt.Printf("  Config:    %s\n", cfg.ConfigDir)
	fmt.Printf("  Mode:      %s\n", cfg.Mode)
	fmt.Println()

	fmt.Println("─── Model ─────────────────────────────────────────────")
	if cfg.Model.APIKey != "" {
		fmt.Printf("  ✅ %s: API key configured\n", cfg.Model.Name)
	} else {
		fmt.Printf("  ⚠  %s: no API key, assistant offline\n", cfg.Model.Name)
	}
	fmt.Println()

	fmt.Println("─── Database ──────────────────────────────────────────")
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	checkDatabase(ctx, cfg)
	fmt.Println()

	fmt.Println("─── Guardrail ─────────────────────────────────────────")
	checkPolicyFile("Policy", cfg.PolicyPath)
	_, infos, err := loadEngine(cfg)
	switch {
	case err != nil:
		fmt.Printf("  ❌ %v\n", err)
	case len(infos) > 0:
		enabled := 0
		for _, info := range infos {
			if info.Enabled {
				enabled++
			}
		}
		fmt.Printf("  ✅ Policy packs: %d installed, %d enabled\n", len(infos), enabled)
	default:
		fmt.Println("  ⬚  No policy packs installed")
	}
	fmt.Println()

	fmt.Println("─── Audit Log ─────────────────────────────────────────")
	checkAuditLog(cfg.LogPath)
	fmt.Println()

	if statusUser != "" {
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		st := rt.agent.Status(ctx, statusUser)
		fmt.Println("─── Assistant ─────────────────────────────────────────")
		icon := "✅"
		if !st.Available {
			icon = "⚠ "
		}
		fmt.Printf("  %s %s\n", icon, st.Body)
		fmt.Println()
	}

	return nil
}

func checkDatabase(ctx context.Context, cfg *config.Config) {
	dsn := redact.RedactDSN(cfg.Database.DSN)
	s, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Printf("  ❌ %s %s: %v\n", cfg.Database.Driver, dsn, err)
		return
	}
	defer s.Close()

	products, err := s.ListProducts(ctx)
	if err != nil {
		fmt.Printf("  ⚠  %s %s: %v\n", cfg.Database.Driver, dsn, err)
		return
	}
	if len(products) == 0 {
		fmt.Printf("  ⬚  %s %s (empty, run `shopbot seed`)\n", cfg.Database.Driver, dsn)
		return
	}
	fmt.Printf("  ✅ %s %s (%d products)\n", cfg.Database.Driver, dsn, len(products))
}

func checkPolicyFile(name, path string) {
	if path == "" {
		fmt.Printf("  ⬚  %s: using built-in defaults\n", name)
		return
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  ✅ %s: %s\n", name, path)
	} else {
		fmt.Printf("  ⬚  %s: using built-in defaults (no custom file)\n", name)
	}
}

func checkAuditLog(path string) {
	if path == "" {
		fmt.Println("  ⬚  No audit log path configured")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("  ⬚  %s (not yet created, starts on first SQL or command)\n", path)
		return
	}

	sizeKB := info.Size() / 1024
	if sizeKB == 0 {
		fmt.Printf("  ✅ %s (<1 KB)\n", path)
	} else {
		fmt.Printf("  ✅ %s (%d KB)\n", path, sizeKB)
	}
}
