// Package intent classifies live transcripts into workflow actions and
// applies the trigger policy (debounce, inspection binding, confirmation)
// before handing off to the delivery engine.
package intent

import (
	"strings"
	"unicode"

	"fieldlink/internal/workflow"
)

// intentPatterns is ordered: the first matching pattern wins, so ticket
// phrasings are checked before the generic log phrasings they overlap.
var intentPatterns = []struct {
	action  workflow.Action
	phrases []string
}{
	{workflow.ActionCreateTicket, []string{
		"create a ticket", "create ticket", "open a ticket", "open ticket",
		"raise a ticket", "file a ticket", "make a ticket", "submit a ticket",
	}},
	{workflow.ActionNotifySupervisor, []string{
		"notify my supervisor", "notify the supervisor", "notify supervisor",
		"alert my supervisor", "alert the supervisor", "alert supervisor",
		"tell my supervisor", "contact my supervisor", "call my supervisor",
	}},
	{workflow.ActionLogIssue, []string{
		"log this issue", "log an issue", "log the issue", "log issue",
		"log this fault", "record this issue", "note this issue",
		"report this issue", "report an issue",
	}},
	{workflow.ActionAddToHistory, []string{
		"add to history", "add this to history", "add to the history",
		"save to history", "record in history", "add to the record",
	}},
}

// DetectWorkflowIntent classifies a transcript as a workflow action.
// Pure: no debounce or confirmation policy is applied here.
func DetectWorkflowIntent(transcript string) (workflow.Action, bool) {
	normalized := normalize(transcript)
	if normalized == "" {
		return "", false
	}
	for _, candidate := range intentPatterns {
		for _, phrase := range candidate.phrases {
			if strings.Contains(normalized, phrase) {
				return candidate.action, true
			}
		}
	}
	return "", false
}

// RequiresVoiceConfirmation reports whether the action needs an explicit
// confirm before executing. Only externally-visible actions do; internal
// log/history actions never prompt.
func RequiresVoiceConfirmation(action workflow.Action) bool {
	return action.External()
}

// Decision is the outcome of classifying free text as a confirmation.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionConfirm
	DecisionCancel
)

var confirmPhrases = []string{"go ahead", "do it", "sounds good", "that's right", "that is right"}

var confirmWords = map[string]struct{}{
	"yes": {}, "yeah": {}, "yep": {}, "yup": {}, "sure": {},
	"confirm": {}, "confirmed": {}, "affirmative": {}, "correct": {},
	"proceed": {}, "ok": {}, "okay": {},
}

var cancelPhrases = []string{"never mind", "nevermind", "don't do that", "do not do that", "hold off"}

var cancelWords = map[string]struct{}{
	"no": {}, "nope": {}, "cancel": {}, "stop": {}, "abort": {},
	"negative": {}, "wait": {},
}

// ClassifyConfirmation decides whether free text confirms or cancels a
// pending action. Pure; returns DecisionNone when the text is neither.
func ClassifyConfirmation(text string) Decision {
	normalized := normalize(text)
	if normalized == "" {
		return DecisionNone
	}
	for _, phrase := range cancelPhrases {
		if strings.Contains(normalized, phrase) {
			return DecisionCancel
		}
	}
	for _, phrase := range confirmPhrases {
		if strings.Contains(normalized, phrase) {
			return DecisionConfirm
		}
	}
	for _, word := range strings.Fields(normalized) {
		if _, ok := cancelWords[word]; ok {
			return DecisionCancel
		}
		if _, ok := confirmWords[word]; ok {
			return DecisionConfirm
		}
	}
	return DecisionNone
}

// normalize lowercases and strips punctuation so phrase matching is not
// defeated by transcription artifacts.
func normalize(text string) string {
	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			builder.WriteRune(r)
		case unicode.IsSpace(r):
			builder.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(builder.String()), " ")
}
