package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Silvenga/KeeChallenge-Fork/audit"
)

var (
	auditAction string
	auditSince  string
	auditLimit  int
	auditJSON   bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit log",
	Long:  "List recorded establish, unlock, recovery and rotation events. Requires a file audit backend.",
	RunE:  runAuditQuery,
}

func init() {
	auditCmd.Flags().StringVar(&auditAction, "action", "", "filter by action (e.g. secret.unlock)")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "only events after this RFC3339 timestamp")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum number of events")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "output raw JSON events")
	rootCmd.AddCommand(auditCmd)
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	options := audit.QueryOptions{
		Action: auditAction,
		Limit:  auditLimit,
	}

	if auditSince != "" {
		since, err := time.Parse(time.RFC3339, auditSince)
		if err != nil {
			return fmt.Errorf("invalid --since timestamp: %w", err)
		}
		options.Since = &since
	}

	result, err := secretSvc.GetAudit().Query(options)
	if err != nil {
		return err
	}

	if auditJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result.Events)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tACTION\tOK\tDATABASE\tERROR")
	for _, event := range result.Events {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
			event.Timestamp.Format(time.RFC3339), event.Action, event.Success, event.Database, event.Error)
	}
	if err = w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d events\n", len(result.Events), result.Filtered)
	return nil
}
