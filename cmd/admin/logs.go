package main

import (
	"fmt"
	"strings"

	"github.com/adamscao/licenseserver/internal/license"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the audit log, newest first",
	Args:  cobra.NoArgs,
	RunE:  showLogs,
}

var (
	logAction string
	logLimit  int
	logOffset int
)

func init() {
	logsCmd.Flags().StringVarP(&logAction, "action", "a", "", "Only show this action (e.g. validate_failed)")
	logsCmd.Flags().IntVarP(&logLimit, "limit", "l", 50, "Number of entries")
	logsCmd.Flags().IntVar(&logOffset, "offset", 0, "Entries to skip")
}

func showLogs(cmd *cobra.Command, args []string) error {
	service, err := newService()
	if err != nil {
		return err
	}
	defer closeDB()

	logs, err := service.ListAudit(license.AuditFilter{
		Action: logAction,
		Limit:  logLimit,
		Offset: logOffset,
	})
	if err != nil {
		return fmt.Errorf("failed to list audit logs: %w", err)
	}

	if len(logs) == 0 {
		fmt.Println("No audit entries found")
		return nil
	}

	fmt.Printf("%-20s %-20s %-16s %s\n", "Time", "Action", "IP", "Details")
	fmt.Println(strings.Repeat("-", 90))
	for _, entry := range logs {
		fmt.Printf("%-20s %-20s %-16s %s\n",
			entry.CreatedAt.Format("2006-01-02 15:04:05"),
			entry.Action,
			entry.IPAddress,
			dimFmt(string(entry.Details)),
		)
	}

	return nil
}
