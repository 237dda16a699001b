package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ddi-assistant/internal/application"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Report on a network, IP address or DNS zone",
	}
	cmd.PersistentFlags().Bool("json", false, "print the raw report as JSON")

	cmd.AddCommand(
		&cobra.Command{
			Use:     "network <cidr>",
			Short:   "Network report: container, utilization, gateway, DHCP",
			Example: "  ddi-assistant query network 10.0.0.0/24",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(cmd, func(svc *application.LookupService) (any, error) {
					return svc.NetworkInfo(cmd.Context(), args[0])
				})
			},
		},
		&cobra.Command{
			Use:     "ip <address>",
			Short:   "IP address report: allocation, lease, DNS records",
			Example: "  ddi-assistant query ip 10.0.0.5",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(cmd, func(svc *application.LookupService) (any, error) {
					return svc.IPInfo(cmd.Context(), args[0])
				})
			},
		},
		&cobra.Command{
			Use:     "zone <fqdn>",
			Short:   "DNS zone report: NS group, subzones, record counts",
			Example: "  ddi-assistant query zone example.com",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(cmd, func(svc *application.LookupService) (any, error) {
					return svc.ZoneInfo(cmd.Context(), args[0])
				})
			},
		},
	)
	return cmd
}

func runQuery(cmd *cobra.Command, lookup func(*application.LookupService) (any, error)) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := lookup(a.lookupService())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(out, report)
	}

	switch r := report.(type) {
	case *application.NetworkReport:
		printNetworkReport(out, r)
	case *application.IPReport:
		printIPReport(out, r)
	case *application.ZoneReport:
		printZoneReport(out, r)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printNetworkReport(w io.Writer, r *application.NetworkReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Network:\t%s\n", r.Network)
	if r.Comment != "" {
		fmt.Fprintf(tw, "Comment:\t%s\n", r.Comment)
	}
	if r.Container != nil {
		fmt.Fprintf(tw, "Container:\t%s\n", joinNonEmpty(r.Container.Network, r.Container.Comment))
	}
	if r.Gateway != "" {
		fmt.Fprintf(tw, "Gateway:\t%s\n", r.Gateway)
	}

	s := r.IPStatistics
	fmt.Fprintf(tw, "Netmask:\t%s (/%d)\n", s.Netmask, s.PrefixLength)
	fmt.Fprintf(tw, "Addresses:\t%s - %s\n", s.NetworkAddress, s.BroadcastAddress)
	fmt.Fprintf(tw, "Utilization:\t%d of %d used, %d free (%.1f%%)\n", s.IPsUsed, s.TotalUsable, s.IPsFree, s.UtilizationPercent)

	fmt.Fprintf(tw, "DHCP:\t%s\n", enabled(r.DHCP.Enabled))
	for _, rng := range r.DHCP.Ranges {
		fmt.Fprintf(tw, "  Range:\t%s\n", rng)
	}
	printAttributes(tw, r.ExtensibleAttributes)
	fmt.Fprintf(tw, "Reference:\t%s\n", r.Reference)
	_ = tw.Flush()
}

func printIPReport(w io.Writer, r *application.IPReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "IP Address:\t%s\n", r.IPAddress)
	fmt.Fprintf(tw, "Status:\t%s\n", r.Status)
	fmt.Fprintf(tw, "Allocation:\t%s\n", r.AllocationType)
	if mac, ok := r.FixedAddress["mac"].(string); ok {
		fmt.Fprintf(tw, "Fixed MAC:\t%s\n", mac)
	}
	if state, ok := r.DHCPLease["binding_state"].(string); ok {
		fmt.Fprintf(tw, "Lease State:\t%s\n", state)
	}
	if name, ok := r.HostRecord["name"].(string); ok {
		fmt.Fprintf(tw, "Host Record:\t%s\n", name)
	}
	for _, rec := range r.DNSRecords.ARecords {
		fmt.Fprintf(tw, "A Record:\t%s\n", recordName(rec, "name"))
	}
	for _, rec := range r.DNSRecords.PTRRecords {
		fmt.Fprintf(tw, "PTR Record:\t%s\n", recordName(rec, "ptrdname"))
	}
	if n := r.Network; n != nil {
		fmt.Fprintf(tw, "Network:\t%s\n", joinNonEmpty(n.Network, n.Comment))
		if n.Gateway != "" {
			fmt.Fprintf(tw, "Gateway:\t%s\n", n.Gateway)
		}
		fmt.Fprintf(tw, "DHCP:\t%s\n", enabled(n.DHCPEnabled))
	}
	_ = tw.Flush()
}

func printZoneReport(w io.Writer, r *application.ZoneReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Zone:\t%s\n", r.ZoneName)
	fmt.Fprintf(tw, "Type:\t%s\n", r.ZoneType)
	fmt.Fprintf(tw, "View:\t%s\n", r.View)
	if r.NSGroup != nil {
		fmt.Fprintf(tw, "NS Group:\t%s\n", r.NSGroup.Name)
		for _, ns := range r.NSGroup.Servers {
			fmt.Fprintf(tw, "  %s\t%s (%s)\n", ns.Name, ns.Address, ns.Type)
		}
	}
	fmt.Fprintf(tw, "SOA Serial:\t%v\n", r.SOA.Serial)
	for _, sub := range r.Subzones {
		fmt.Fprintf(tw, "Subzone:\t%s\n", sub.FQDN)
	}

	fmt.Fprintln(tw, "Records:")
	for _, rt := range application.RecordCountTypes {
		fmt.Fprintf(tw, "  %s\t%d\n", rt.ObjectType, r.RecordStatistics.Counts[rt.Key])
	}
	total := fmt.Sprint(r.RecordStatistics.Total)
	if r.RecordStatistics.Capped {
		total += "+"
	}
	fmt.Fprintf(tw, "  total\t%s\n", total)
	printAttributes(tw, r.ExtensibleAttributes)
	_ = tw.Flush()
}

func printAttributes(w io.Writer, attrs []application.Attribute) {
	if len(attrs) == 0 {
		return
	}
	fmt.Fprintln(w, "Extensible Attributes:")
	for _, attr := range attrs {
		fmt.Fprintf(w, "  %s\t%s\n", attr.Name, attr.Value)
	}
}

func recordName(rec any, key string) string {
	m, _ := rec.(map[string]any)
	name, _ := m[key].(string)
	return name
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " - ")
}
