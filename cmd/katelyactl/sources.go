package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/registry"
)

func (c *cli) sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect and edit the source registry",
	}
	cmd.AddCommand(c.sourcesListCmd())
	cmd.AddCommand(c.sourcesImportCmd())
	cmd.AddCommand(c.sourcesExportCmd())
	cmd.AddCommand(c.sourcesAddCmd())
	cmd.AddCommand(c.sourcesBatchCmd("enable", "Enable sources", func(a *registry.Admin) batchFunc { return a.BatchEnable }))
	cmd.AddCommand(c.sourcesBatchCmd("disable", "Disable sources", func(a *registry.Admin) batchFunc { return a.BatchDisable }))
	cmd.AddCommand(c.sourcesBatchCmd("delete", "Delete custom sources", func(a *registry.Admin) batchFunc { return a.BatchDelete }))
	cmd.AddCommand(c.sourcesSortCmd())
	return cmd
}

func (c *cli) sourcesListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every source in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			components, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer components.Close()

			sources, err := components.Registry.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), sources)
			}
			return writeSourceTable(cmd.OutOrStdout(), sources)
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Print JSON")
	return cmd
}

func writeSourceTable(w io.Writer, sources []domain.Source) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tFROM\tSTATE\tADULT\tAPI")
	for _, source := range sources {
		state := "enabled"
		if source.Disabled {
			state = "disabled"
		}
		adult := ""
		if source.IsAdult {
			adult = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", source.Key, source.Name, source.From, state, adult, source.API)
	}
	return tw.Flush()
}

func (c *cli) sourcesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Sync config sources from a TOML sources file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer components.Close()

			inputs, err := registry.LoadSourcesFile(args[0])
			if err != nil {
				return err
			}
			inserted, updated, syncErr := components.Admin.SyncConfigSources(cmd.Context(), inputs)
			fmt.Fprintf(cmd.OutOrStdout(), "%d sources read, %d inserted, %d updated\n", len(inputs), inserted, updated)
			return syncErr
		},
	}
}

func (c *cli) sourcesExportCmd() *cobra.Command {
	var includeCustom bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the registry as a TOML sources file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			components, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer components.Close()

			sources, err := components.Registry.List(cmd.Context())
			if err != nil {
				return err
			}
			inputs := make([]domain.SourceInput, 0, len(sources))
			for _, source := range sources {
				if source.From != domain.SourceOriginConfig && !includeCustom {
					continue
				}
				inputs = append(inputs, domain.SourceInput{
					Key:     source.Key,
					Name:    source.Name,
					API:     source.API,
					Detail:  source.Detail,
					IsAdult: source.IsAdult,
				})
			}
			out, err := registry.EncodeSources(inputs)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&includeCustom, "all", false, "Include custom sources")
	return cmd
}

func (c *cli) sourcesAddCmd() *cobra.Command {
	var input domain.SourceInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a custom source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			components, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer components.Close()

			source, err := components.Admin.Add(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", source.Key, source.Name)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&input.Key, "key", "", "Unique source key")
	flags.StringVar(&input.Name, "name", "", "Display name")
	flags.StringVar(&input.API, "api", "", "Video API base url")
	flags.StringVar(&input.Detail, "detail", "", "Detail site base url")
	flags.BoolVar(&input.IsAdult, "adult", false, "Mark the source as adult")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("api")
	return cmd
}

type batchFunc func(ctx context.Context, keys []string) domain.SourceBatchResult

func (c *cli) sourcesBatchCmd(use, short string, pick func(*registry.Admin) batchFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " KEY...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer components.Close()

			result := pick(components.Admin)(cmd.Context(), args)
			out := cmd.OutOrStdout()
			for _, item := range result.Results {
				if item.Success {
					fmt.Fprintf(out, "%s: ok\n", item.Key)
				} else {
					fmt.Fprintf(out, "%s: %s\n", item.Key, item.Error)
				}
			}
			if result.FailedCount > 0 {
				return fmt.Errorf("%d of %d sources failed", result.FailedCount, result.Total)
			}
			return nil
		},
	}
}

func (c *cli) sourcesSortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sort KEY...",
		Short: "Set the display order of the listed sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer components.Close()

			if err := components.Admin.Sort(cmd.Context(), args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order: %s\n", strings.Join(args, ", "))
			return nil
		},
	}
}
