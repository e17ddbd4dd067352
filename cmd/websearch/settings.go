package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"websearch/internal/infra/config"
	"websearch/internal/plugin"
)

func runSettings(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	if len(f.Args) > 0 {
		switch f.Args[0] {
		case "validate":
			if len(f.Args) < 2 {
				return fmt.Errorf("usage: websearch settings validate JSON")
			}
			return validateSettings(os.Stdout, json.RawMessage(f.Args[1]))
		default:
			return fmt.Errorf("unknown settings subcommand: %s", f.Args[0])
		}
	}

	cfg, err := config.Load(configPath(f))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return printSettings(os.Stdout, cfg.Plugins)
}

// printSettings writes the settings schema and the effective settings as the
// YAML block to paste under plugins.settings.
func printSettings(w io.Writer, cfg config.PluginsConfig) error {
	raw, err := cfg.SettingsFor(plugin.WebSearchName)
	if err != nil {
		return err
	}
	settings, err := plugin.ParseSettings(raw)
	if err != nil {
		return err
	}

	var schema any
	if err := json.Unmarshal(plugin.NewWebSearchPlugin(plugin.WebSearchOptions{}).SettingsSchema(), &schema); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# schema\n%s\n\n# current\n", pretty)

	current := map[string]any{
		"plugins": map[string]any{
			"settings": map[string]any{
				plugin.WebSearchName: map[string]any{
					"search_max_results": settings.MaxResults,
					"language":           settings.Language,
				},
			},
		},
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(current); err != nil {
		return err
	}
	return enc.Close()
}

func validateSettings(w io.Writer, raw json.RawMessage) error {
	settings, err := plugin.ParseSettings(raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "ok: search_max_results=%d language=%s\n", settings.MaxResults, settings.Language)
	return nil
}
