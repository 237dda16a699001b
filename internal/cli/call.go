package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ddi-assistant/internal/application"
	"ddi-assistant/internal/domain"
)

// errAborted is returned when the operator declines a write.
var errAborted = errors.New("aborted by user")

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Preview and execute a tool call",
		Long: `Validate a tool call, show the WAPI request it resolves to and execute it.

Create, update and delete calls ask for confirmation unless --yes is given.
--dry-run prints the request and an equivalent curl command without
sending anything.`,
		Example: `  ddi-assistant call infoblox_search_network --args '{"filters": {"network": "10.0.0.0/24"}}'
  ddi-assistant call infoblox_delete_record_a --args '{"ref": "record:a/ZG5z...:web.example.com/default"}' --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: runCall,
	}
	cmd.Flags().String("args", "{}", "tool arguments as a JSON object")
	cmd.Flags().Bool("dry-run", false, "print the request without sending it")
	cmd.Flags().BoolP("yes", "y", false, "do not ask before create, update or delete")
	cmd.Flags().Bool("read-only", false, "refuse create, update and delete tools")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	name := args[0]
	flags := cmd.Flags()
	rawArgs, _ := flags.GetString("args")
	dryRun, _ := flags.GetBool("dry-run")
	yes, _ := flags.GetBool("yes")

	var toolArgs map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &toolArgs); err != nil {
		return fmt.Errorf("invalid --args JSON: %w", err)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	wapi, _, err := a.wapiHandler(cmd.Context(), false)
	if err != nil {
		return err
	}
	router := application.NewRequestRouter(wapi, a.lookupHandler())
	out := cmd.OutOrStdout()

	if !strings.HasPrefix(name, application.LookupToolPrefix+"_") {
		call, err := wapi.Preview(name, toolArgs)
		if err != nil {
			a.loggers.Audit.ValidationBlocked(name, toolArgs, err)
			return err
		}
		summary := call.Summary(a.settings.Infoblox.WAPIVersion, a.settings.Infoblox.Username)

		if dryRun {
			a.metrics.ObserveToolCall(name, "dry_run")
			a.logger.Info("dry run", zap.String("tool", name), zap.String("endpoint", call.Endpoint()))
			fmt.Fprint(out, summary)
			fmt.Fprintf(out, "\n%s\n", call.Curl(a.client.BaseURL(), a.settings.Infoblox.Username))
			return nil
		}
		if call.IsWrite() && !yes {
			fmt.Fprint(out, summary)
			if !confirm(cmd.InOrStdin(), out) {
				return errAborted
			}
		}
	} else if dryRun {
		return fmt.Errorf("%s only reads from the appliance; run it without --dry-run", name)
	}

	resp, err := router.Route(cmd.Context(), &domain.ToolRequest{Name: name, Arguments: toolArgs})
	if err != nil {
		return err
	}
	for _, block := range resp.Content {
		fmt.Fprintln(out, block.Text)
	}
	if resp.IsError {
		return fmt.Errorf("tool %s failed", name)
	}
	return nil
}

func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "Proceed? [y/N] ")
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		fmt.Fprintln(out)
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
