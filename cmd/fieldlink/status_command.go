package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fieldlink/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and delivery counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status api.DaemonStatus
			if err := ctx.getJSON("/api/status", &status); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return printJSON(status)
			}

			running := "stopped"
			if status.Running {
				running = "running"
			}
			rows := [][]string{
				{"State", running},
				{"PID", strconv.Itoa(status.PID)},
				{"Sessions", strconv.Itoa(status.Sessions)},
				{"Deliveries completed", strconv.FormatInt(status.Delivery.Completed, 10)},
				{"Deliveries failed", strconv.FormatInt(status.Delivery.Failed, 10)},
				{"Deliveries replayed", strconv.FormatInt(status.Delivery.Replayed, 10)},
				{"Inspection DB", status.InspectionDBPath},
				{"Lock file", status.LockFilePath},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))
			return nil
		},
	}
}
