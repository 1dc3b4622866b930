package workflow

import (
	"fmt"
	"time"
)

// buildPayload shapes the outbound JSON body for the endpoint's provider.
// The switch is exhaustive over the provider variants.
func buildPayload(ep *endpoint, req Request, idempotencyKey, requestID string, requestedAt time.Time) map[string]any {
	switch ep.provider {
	case ProviderJira:
		return buildJiraPayload(ep, req)
	case ProviderServiceNow:
		return buildServiceNowPayload(ep, req, idempotencyKey, requestID, requestedAt)
	default:
		return buildGenericPayload(req, idempotencyKey, requestID, requestedAt)
	}
}

func buildGenericPayload(req Request, idempotencyKey, requestID string, requestedAt time.Time) map[string]any {
	return map[string]any{
		"inspectionId":   req.InspectionID,
		"action":         string(req.Action),
		"note":           req.Note,
		"metadata":       metadataOrEmpty(req.Metadata),
		"idempotencyKey": idempotencyKey,
		"requestId":      requestID,
		"requestedAt":    requestedAt.UTC().Format(time.RFC3339),
	}
}

func buildJiraPayload(ep *endpoint, req Request) map[string]any {
	summary := fmt.Sprintf("%s — inspection %s", req.Action.Label(), req.InspectionID)
	var description any = req.Note
	if ep.jiraADF {
		description = adfDocument(req.Note)
	}
	return map[string]any{
		"fields": map[string]any{
			"project":     map[string]any{"key": ep.jiraProjectKey},
			"issuetype":   map[string]any{"name": ep.jiraIssueType},
			"summary":     summary,
			"description": description,
			"labels":      []string{"fieldlink", string(req.Action)},
		},
		"metadata": metadataOrEmpty(req.Metadata),
	}
}

// adfDocument wraps plain text in the minimal Atlassian document structure.
func adfDocument(text string) map[string]any {
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []any{
			map[string]any{
				"type": "paragraph",
				"content": []any{
					map[string]any{"type": "text", "text": text},
				},
			},
		},
	}
}

func buildServiceNowPayload(ep *endpoint, req Request, idempotencyKey, requestID string, requestedAt time.Time) map[string]any {
	record := map[string]any{
		"short_description": fmt.Sprintf("%s — inspection %s", req.Action.Label(), req.InspectionID),
		"description":       req.Note,
		"category":          "field_service",
		"subcategory":       string(req.Action),
		"u_inspection_id":   req.InspectionID,
		"u_workflow_action": string(req.Action),
		"u_idempotency_key": idempotencyKey,
		"u_request_id":      requestID,
		"u_requested_at":    requestedAt.UTC().Format(time.RFC3339),
		"u_metadata":        metadataOrEmpty(req.Metadata),
	}
	if ep.isServiceNowTablePath() {
		return record
	}
	// Proxy-style endpoints receive the table name alongside the record.
	return map[string]any{
		"table":  ep.serviceNowTable,
		"record": record,
	}
}

func metadataOrEmpty(metadata map[string]string) map[string]string {
	if metadata == nil {
		return map[string]string{}
	}
	return metadata
}
