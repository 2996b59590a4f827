package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gzhole/shopbot/internal/guardrail"
	"github.com/spf13/cobra"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Manage guardrail rule packs",
	Long: `Manage guardrail rule packs.

Packs are YAML policy fragments stored in ~/.shopbot/packs/ and merged into
the base policy at startup. A pack whose file name starts with "_" is
installed but disabled.

Examples:
  shopbot pack list                  # List installed packs
  shopbot pack enable pii-tables     # Enable a pack
  shopbot pack disable pii-tables    # Disable a pack
  shopbot pack show pii-tables       # Show the rules of a pack`,
}

var packListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed rule packs",
	RunE:  packList,
}

var packEnableCmd = &cobra.Command{
	Use:   "enable <pack-name>",
	Short: "Enable a disabled rule pack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packToggle(args[0], true)
	},
}

var packDisableCmd = &cobra.Command{
	Use:   "disable <pack-name>",
	Short: "Disable a rule pack (prefix with underscore)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packToggle(args[0], false)
	},
}

var packShowCmd = &cobra.Command{
	Use:   "show <pack-name>",
	Short: "Show the rules of a rule pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packShow,
}

func init() {
	packCmd.AddCommand(packListCmd)
	packCmd.AddCommand(packEnableCmd)
	packCmd.AddCommand(packDisableCmd)
	packCmd.AddCommand(packShowCmd)
	rootCmd.AddCommand(packCmd)
}

func packsDir() (string, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cfg.PacksDir, 0700); err != nil {
		return "", err
	}
	return cfg.PacksDir, nil
}

// packPaths returns the enabled and disabled file names for a pack; ".yml"
// is used when that is what is installed.
func packPaths(dir, name string) (enabled, disabled string) {
	ext := ".yaml"
	for _, e := range []string{".yaml", ".yml"} {
		if fileExists(filepath.Join(dir, name+e)) || fileExists(filepath.Join(dir, "_"+name+e)) {
			ext = e
			break
		}
	}
	return filepath.Join(dir, name+ext), filepath.Join(dir, "_"+name+ext)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func packList(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}

	_, infos, err := guardrail.LoadPacks(dir, guardrail.DefaultPolicy())
	if err != nil {
		return fmt.Errorf("failed to load packs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No rule packs installed.")
		fmt.Printf("\nTo install packs, copy YAML files to: %s\n", dir)
		return nil
	}

	fmt.Println("Installed Rule Packs:")
	fmt.Println(strings.Repeat("─", 60))
	for _, info := range infos {
		if info.Err != nil {
			fmt.Printf("  ⚠  %-25s %v\n", info.Name, info.Err)
			continue
		}
		status := "✅"
		if !info.Enabled {
			status = "❌"
		}
		fmt.Printf("  %s  %-25s %s\n", status, info.Name, info.Description)
		if info.Version != "" {
			fmt.Printf("       v%s by %s  (%d rules)\n", info.Version, info.Author, info.RuleCount)
		}
	}
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("\nPacks directory: %s\n", dir)
	return nil
}

// packToggle renames a pack between its enabled and "_"-prefixed form. A
// pack is parsed before it is enabled so a broken file never goes live.
func packToggle(name string, enable bool) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}
	enabledPath, disabledPath := packPaths(dir, name)

	from, to, state := disabledPath, enabledPath, "enabled"
	if !enable {
		from, to, state = enabledPath, disabledPath, "disabled"
	}

	if !fileExists(from) {
		if fileExists(to) {
			fmt.Printf("Pack '%s' is already %s.\n", name, state)
			return nil
		}
		return fmt.Errorf("pack '%s' not found in %s", name, dir)
	}

	if enable {
		if _, err := guardrail.ReadPack(from); err != nil {
			return fmt.Errorf("refusing to enable pack '%s': %w", name, err)
		}
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("failed to update pack '%s': %w", name, err)
	}

	icon := "✅"
	if !enable {
		icon = "❌"
	}
	fmt.Printf("%s Pack '%s' %s.\n", icon, name, state)
	return nil
}

func packShow(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}

	name := args[0]
	enabledPath, disabledPath := packPaths(dir, name)
	path, enabled := enabledPath, true
	if !fileExists(path) {
		path, enabled = disabledPath, false
		if !fileExists(path) {
			return fmt.Errorf("pack '%s' not found in %s", name, dir)
		}
	}

	pack, err := guardrail.ReadPack(path)
	if err != nil {
		return err
	}

	title := pack.Name
	if title == "" {
		title = name
	}
	fmt.Printf("%s", title)
	if pack.PackVersion != "" {
		fmt.Printf(" v%s", pack.PackVersion)
	}
	if pack.Author != "" {
		fmt.Printf(" by %s", pack.Author)
	}
	if !enabled {
		fmt.Print(" (disabled)")
	}
	fmt.Println()
	if pack.Description != "" {
		fmt.Println(pack.Description)
	}
	fmt.Println(strings.Repeat("─", 60))

	printRules("sql.allow", pack.SQL.Allow)
	printRules("sql.deny", pack.SQL.Deny)
	if len(pack.SQL.RestrictedTables) > 0 {
		fmt.Printf("sql.restricted_tables: %s\n", strings.Join(pack.SQL.RestrictedTables, ", "))
	}
	printRules("shell.allow", pack.Shell.Allow)
	printRules("shell.deny", pack.Shell.Deny)
	fmt.Printf("\nFile: %s\n", path)
	return nil
}

func printRules(section string, rules []guardrail.Rule) {
	if len(rules) == 0 {
		return
	}
	fmt.Printf("%s:\n", section)
	for _, r := range rules {
		fmt.Printf("  • %-24s %s\n", r.ID, r.Pattern)
		if r.Category != "" {
			fmt.Printf("      category: %s\n", r.Category)
		}
		if r.Reason != "" {
			fmt.Printf("      reason:   %s\n", r.Reason)
		}
	}
}
