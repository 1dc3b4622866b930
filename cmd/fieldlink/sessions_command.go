package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldlink/internal/api"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List connected technician sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var list api.SessionListResponse
			if err := ctx.getJSON("/api/sessions", &list); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return printJSON(list)
			}
			if len(list.Sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No connected sessions.")
				return nil
			}

			rows := make([][]string, len(list.Sessions))
			for i, sess := range list.Sessions {
				rows[i] = []string{
					sess.ClientID,
					sess.SessionLabel,
					sess.InspectionID,
					sess.Mode,
					sess.JoinedAt,
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Client", "Session", "Inspection", "Mode", "Joined"}, rows))
			return nil
		},
	}
}
