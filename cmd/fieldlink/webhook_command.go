package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldlink/internal/api"
)

func newWebhookCommand(ctx *commandContext) *cobra.Command {
	webhookCmd := &cobra.Command{
		Use:   "webhook",
		Short: "Webhook delivery helpers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	webhookCmd.AddCommand(newWebhookTestCommand(ctx))
	return webhookCmd
}

func newWebhookTestCommand(ctx *commandContext) *cobra.Command {
	var inspectionID string
	var action string
	var note string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run one workflow action through the daemon",
		Long: "Runs a workflow action exactly as a voice trigger would, " +
			"including webhook delivery, retries, and idempotent replay.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.WorkflowTestResponse
			err := ctx.postJSON("/api/workflow/test", api.WorkflowTestRequest{
				InspectionID: inspectionID,
				Action:       action,
				Note:         note,
				Metadata:     map[string]string{"source": "cli"},
			}, &resp)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return printJSON(resp)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Status:    %s\n", resp.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Message:   %s\n", resp.ResultMessage)
			if resp.ExternalReferenceID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Reference: %s\n", resp.ExternalReferenceID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inspectionID, "inspection", "", "Inspection ID (required)")
	cmd.Flags().StringVar(&action, "action", "create_ticket", "Workflow action to run")
	cmd.Flags().StringVar(&note, "note", "CLI webhook test", "Note attached to the action")
	_ = cmd.MarkFlagRequired("inspection")

	return cmd
}
