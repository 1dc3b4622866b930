package workflow

import (
	"fmt"
	"strings"
)

// Field orderings mirror the variety of reference shapes returned by
// ticketing systems: Jira issue keys, ServiceNow numbers/sys_ids, and
// generic "id"-style responses.
var referenceFields = []string{
	"externalReferenceId", "referenceId", "ticketId", "id",
	"key", "issueKey", "number", "sys_id",
}

var referencePaths = [][]string{
	{"result", "number"},
	{"result", "sys_id"},
	{"result", "id"},
	{"data", "id"},
}

var messageFields = []string{"resultMessage", "message", "statusMessage"}

var messagePaths = [][]string{
	{"result", "message"},
	{"result", "status_message"},
	{"error", "message"},
}

// extractReference pulls an external reference id out of a webhook
// response body; empty when nothing usable is present.
func extractReference(body map[string]any) string {
	for _, field := range referenceFields {
		if value := scalarString(body[field]); value != "" {
			return value
		}
	}
	for _, path := range referencePaths {
		if value := scalarString(lookupPath(body, path)); value != "" {
			return value
		}
	}
	return ""
}

// extractMessage pulls a human-readable status message out of a webhook
// response body; empty when nothing usable is present.
func extractMessage(body map[string]any) string {
	for _, field := range messageFields {
		if value := scalarString(body[field]); value != "" {
			return value
		}
	}
	for _, path := range messagePaths {
		if value := scalarString(lookupPath(body, path)); value != "" {
			return value
		}
	}
	return ""
}

func lookupPath(body map[string]any, path []string) any {
	var current any = body
	for _, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = node[key]
	}
	return current
}

func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}
