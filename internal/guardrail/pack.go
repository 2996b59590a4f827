package guardrail

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack is a policy fragment with metadata. Its sections are merged into the
// base policy by LoadPacks.
type Pack struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	PackVersion string      `yaml:"version"`
	Author      string      `yaml:"author"`
	SQL         SQLPolicy   `yaml:"sql"`
	Shell       ShellPolicy `yaml:"shell"`
}

func (p *Pack) ruleCount() int {
	return len(p.SQL.Allow) + len(p.SQL.Deny) + len(p.Shell.Allow) + len(p.Shell.Deny)
}

// PackInfo is a summary of a pack for listing.
type PackInfo struct {
	Name        string
	Description string
	Version     string
	Author      string
	Enabled     bool
	Path        string
	RuleCount   int
	Err         error
}

// LoadPacks reads all .yaml files from packsDir and merges them into base.
// Rules are appended after the base rules and restricted tables are unioned.
// Files whose name starts with "_" are listed but not merged.
func LoadPacks(packsDir string, base *Policy) (*Policy, []PackInfo, error) {
	var infos []PackInfo

	entries, err := os.ReadDir(packsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil, nil
		}
		return nil, nil, err
	}

	result := clonePolicy(base)

	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}

		path := filepath.Join(packsDir, entry.Name())

		baseName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		enabled := !strings.HasPrefix(baseName, "_")

		pack, err := ReadPack(path)
		if err != nil {
			infos = append(infos, PackInfo{
				Name:    baseName,
				Enabled: enabled,
				Path:    path,
				Err:     err,
			})
			continue
		}

		info := PackInfo{
			Name:        pack.Name,
			Description: pack.Description,
			Version:     pack.PackVersion,
			Author:      pack.Author,
			Enabled:     enabled,
			Path:        path,
			RuleCount:   pack.ruleCount(),
		}
		if info.Name == "" {
			info.Name = baseName
		}
		infos = append(infos, info)

		if !enabled {
			continue
		}

		mergePackInto(result, pack)
	}

	return result, infos, nil
}

// ReadPack parses a single pack file. Its patterns are compiled so a pack
// that would break NewEngine is rejected here.
func ReadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse pack %s: %w", path, err)
	}
	for section, rules := range map[string][]Rule{
		"sql.allow":   pack.SQL.Allow,
		"sql.deny":    pack.SQL.Deny,
		"shell.allow": pack.Shell.Allow,
		"shell.deny":  pack.Shell.Deny,
	} {
		if _, err := compileRules(section, rules); err != nil {
			return nil, fmt.Errorf("pack %s: %w", path, err)
		}
	}

	return &pack, nil
}

func mergePackInto(target *Policy, pack *Pack) {
	target.SQL.Allow = append(target.SQL.Allow, pack.SQL.Allow...)
	target.SQL.Deny = append(target.SQL.Deny, pack.SQL.Deny...)
	target.Shell.Allow = append(target.Shell.Allow, pack.Shell.Allow...)
	target.Shell.Deny = append(target.Shell.Deny, pack.Shell.Deny...)

	existing := make(map[string]bool)
	for _, t := range target.SQL.RestrictedTables {
		existing[strings.ToLower(t)] = true
	}
	for _, t := range pack.SQL.RestrictedTables {
		if !existing[strings.ToLower(t)] {
			existing[strings.ToLower(t)] = true
			target.SQL.RestrictedTables = append(target.SQL.RestrictedTables, t)
		}
	}
}

func clonePolicy(p *Policy) *Policy {
	return &Policy{
		Version: p.Version,
		SQL: SQLPolicy{
			Allow:            append([]Rule(nil), p.SQL.Allow...),
			Deny:             append([]Rule(nil), p.SQL.Deny...),
			RestrictedTables: append([]string(nil), p.SQL.RestrictedTables...),
		},
		Shell: ShellPolicy{
			Allow: append([]Rule(nil), p.Shell.Allow...),
			Deny:  append([]Rule(nil), p.Shell.Deny...),
		},
	}
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
