package cli

import (
	"fmt"
	"slices"
	"sort"

	"github.com/spf13/cobra"

	"ddi-assistant/internal/domain"
)

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover object schemas from the appliance",
		Long: `Probe the appliance for the schemas of the known WAPI object types,
refresh the schema cache and regenerate the tool catalog.

With --export the discovered schemas are also written to a JSON file under
the current or home directory.`,
		Args: cobra.NoArgs,
		RunE: runDiscover,
	}
	cmd.Flags().String("export", "", "write the discovered schemas to this file")
	cmd.Flags().Bool("supported", false, "also list object types the appliance advertises but discovery does not probe")
	return cmd
}

func runDiscover(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	tools, loaded, err := a.catalog.Build(cmd.Context(), true)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	names := make([]string, 0, len(loaded.Schemas))
	for name := range loaded.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "Discovered %d object types, generated %d tools\n", len(names), len(tools.Tools))
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", name)
	}
	if loaded.Changed {
		fmt.Fprintln(out, "Schemas changed since the last discovery")
	}

	if supported, _ := cmd.Flags().GetBool("supported"); supported {
		if err := printUnprobed(cmd, a); err != nil {
			return err
		}
	}

	exportTo, _ := cmd.Flags().GetString("export")
	if exportTo == "" {
		return nil
	}
	summary, err := a.schemas.Export(exportTo, loaded.Schemas)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported %d objects (%d with schema) to %s\n", summary.TotalObjects, summary.ObjectsWithSchema, summary.Path)
	return nil
}

func printUnprobed(cmd *cobra.Command, a *app) error {
	advertised, err := a.client.SupportedObjects(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read supported objects: %w", err)
	}
	var extra []string
	for _, name := range advertised {
		if !slices.Contains(domain.CommonObjectTypes, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Appliance advertises %d object types, %d not probed\n", len(advertised), len(extra))
	for _, name := range extra {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}
