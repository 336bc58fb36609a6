package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/amenityscan/amenityscan/internal/config"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Validate and list the configured data sources",
		RunE:  runSources,
	}
}

func runSources(cmd *cobra.Command, args []string) error {
	applyLogLevel(cmd)
	configDir, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Sources) == 0 {
		fmt.Println("No sources configured; add them to sources.yaml")
		return nil
	}

	rank := make(map[string]int, len(cfg.Merge.SourcePriority))
	for i, name := range cfg.Merge.SourcePriority {
		rank[name] = i + 1
	}

	for _, src := range cfg.Sources {
		location := src.Path
		if src.Kind == config.SourcePortalAPI {
			location = src.DatasetID
		}
		priority := "unranked"
		if r, ok := rank[src.Name]; ok {
			priority = fmt.Sprintf("#%d", r)
		}
		fmt.Printf("%s (%s, vintage %d, priority %s)\n", src.Name, src.Kind, src.Vintage, priority)
		fmt.Printf("  location: %s\n", location)

		cols := make([]string, 0, len(src.Columns))
		for col := range src.Columns {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			rule := src.Columns[col]
			line := fmt.Sprintf("  %s -> %s", col, rule.Field)
			if rule.Scale != 0 && rule.Scale != 1 {
				line += fmt.Sprintf(" (x%g)", rule.Scale)
			}
			if rule.Required {
				line += " (required)"
			}
			fmt.Println(line)
		}
	}
	fmt.Printf("\n%d sources valid, merge policy %s\n", len(cfg.Sources), cfg.Merge.Policy)
	return nil
}
