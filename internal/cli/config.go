package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/oasrouter/spec"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// SourceConfig selects the document and the operations to derive.
type SourceConfig struct {
	Input       string
	IncludeTags []string
	ExcludeTags []string
	Methods     []string
	Paths       []string
	ConfigPath  string
	Verbose     bool
}

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	SourceConfig
	Out         string
	PackageName string
	DryRun      bool
	Force       bool
}

func addSourceFlags(flags *pflag.FlagSet) {
	flags.String("input", "", "Path or URL to the Swagger/OpenAPI document")
	flags.StringSlice("include-tags", nil, "Only include operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude operations with these tags")
	flags.StringSlice("methods", nil, "Only include these HTTP methods")
	flags.StringSlice("paths", nil, "Only include paths matching these regular expressions")
}

// resolveConfig merges the config file named by --config with the flags that
// were set on cmd. Flags a command does not define are never Changed.
func resolveConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	var cfg GenerateConfig

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

func applyFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"input", &cfg.Input},
		{"out", &cfg.Out},
		{"package-name", &cfg.PackageName},
	}
	for _, s := range strs {
		if !flags.Changed(s.name) {
			continue
		}
		value, err := flags.GetString(s.name)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(value)
	}

	lists := []struct {
		name string
		dst  *[]string
	}{
		{"include-tags", &cfg.IncludeTags},
		{"exclude-tags", &cfg.ExcludeTags},
		{"methods", &cfg.Methods},
		{"paths", &cfg.Paths},
	}
	for _, l := range lists {
		if !flags.Changed(l.name) {
			continue
		}
		value, err := flags.GetStringSlice(l.name)
		if err != nil {
			return err
		}
		*l.dst = value
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"dry-run", &cfg.DryRun},
		{"force", &cfg.Force},
		{"verbose", &cfg.Verbose},
	}
	for _, b := range bools {
		if !flags.Changed(b.name) {
			continue
		}
		value, err := flags.GetBool(b.name)
		if err != nil {
			return err
		}
		*b.dst = value
	}
	return nil
}

func (c *GenerateConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.Out = strings.TrimSpace(c.Out)
	c.PackageName = strings.TrimSpace(c.PackageName)
	c.IncludeTags = sanitizeTags(c.IncludeTags)
	c.ExcludeTags = sanitizeTags(c.ExcludeTags)
	c.Methods = sanitizeTags(c.Methods)
	c.Paths = sanitizeTags(c.Paths)
}

func (c *SourceConfig) validate(command string) error {
	if c.Input == "" {
		return newUsageError(fmt.Sprintf("%s: --input is required (set via flag or config file)", command))
	}
	if overlap := intersect(c.IncludeTags, c.ExcludeTags); len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("%s: include/exclude tags overlap: %s", command, strings.Join(overlap, ", ")))
	}
	for _, m := range c.Methods {
		if _, err := spec.ParseMethod(m); err != nil {
			return newUsageError(fmt.Sprintf("%s: %v", command, err))
		}
	}
	return nil
}

func sanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}

func applyConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	strs := map[string]*string{
		"input":       &cfg.Input,
		"out":         &cfg.Out,
		"packagename": &cfg.PackageName,
	}
	lists := map[string]*[]string{
		"includetags": &cfg.IncludeTags,
		"excludetags": &cfg.ExcludeTags,
		"methods":     &cfg.Methods,
		"paths":       &cfg.Paths,
	}
	bools := map[string]*bool{
		"dryrun":  &cfg.DryRun,
		"force":   &cfg.Force,
		"verbose": &cfg.Verbose,
	}

	for key, value := range raw {
		normalized := normalizeKey(key)
		if dst, ok := strs[normalized]; ok {
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			*dst = str
			continue
		}
		if dst, ok := lists[normalized]; ok {
			list, err := valueAsStringSlice(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			*dst = list
			continue
		}
		if dst, ok := bools[normalized]; ok {
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			*dst = val
			continue
		}
		return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
	}
	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n", "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
