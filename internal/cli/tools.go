package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ddi-assistant/internal/application"
	"ddi-assistant/internal/domain"
	"ddi-assistant/internal/infrastructure"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the MCP tools generated from the appliance schemas",
		Args:  cobra.NoArgs,
		RunE:  runToolsList,
	}
	cmd.Flags().Bool("json", false, "print full tool definitions as JSON")
	cmd.Flags().Bool("cached", false, "list the generated tools from the cache without contacting the appliance")
	cmd.AddCommand(newToolsAddCmd(), newToolsRemoveCmd())
	return cmd
}

func runToolsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var tools []domain.ToolDefinition
	if cached, _ := cmd.Flags().GetBool("cached"); cached {
		tools, err = a.store.LoadTools()
		if errors.Is(err, infrastructure.ErrNotCached) {
			return errors.New("no cached tools, run discover first")
		}
		if err != nil {
			return err
		}
	} else {
		wapi, _, err := a.wapiHandler(cmd.Context(), false)
		if err != nil {
			return err
		}
		tools = application.NewRequestRouter(wapi, a.lookupHandler()).ListAllTools()
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(out, tools)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, tool := range tools {
		fmt.Fprintf(tw, "%s\t%s\n", tool.Name, tool.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d tools\n", len(tools))
	return nil
}

func newToolsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a custom tool bound to a WAPI object type",
		Example: `  ddi-assistant tools add infoblox_hq_networks \
    --description "Networks at HQ" --operation search --object-type network \
    --params '{"filters": {"*Site": "HQ"}}'`,
		Args: cobra.ExactArgs(1),
		RunE: runToolsAdd,
	}
	cmd.Flags().String("description", "", "tool description shown to MCP clients")
	cmd.Flags().String("operation", "", "list, get, search, create, update or delete")
	cmd.Flags().String("object-type", "", "WAPI object type, e.g. record:host")
	cmd.Flags().String("params", "", "fixed arguments as a JSON object")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("operation")
	_ = cmd.MarkFlagRequired("object-type")
	return cmd
}

func runToolsAdd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	description, _ := flags.GetString("description")
	operation, _ := flags.GetString("operation")
	objectType, _ := flags.GetString("object-type")
	rawParams, _ := flags.GetString("params")

	op, err := domain.ParseOperation(operation)
	if err != nil {
		return err
	}
	var params map[string]any
	if rawParams != "" {
		if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
			return fmt.Errorf("invalid --params JSON: %w", err)
		}
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if _, _, err := a.catalog.Build(cmd.Context(), false); err != nil {
		return err
	}
	tool := domain.CustomTool{
		Name:        args[0],
		Description: description,
		ToolBinding: domain.ToolBinding{Operation: op, ObjectType: objectType, Params: params},
	}
	if err := a.catalog.AddCustomTool(tool); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added custom tool %s\n", tool.Name)
	return nil
}

func newToolsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a custom tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.catalog.RemoveCustomTool(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed custom tool %s\n", args[0])
			return nil
		},
	}
}
