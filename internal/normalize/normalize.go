// Package normalize coerces the raw assistant message into the strict reply
// contract. It is the last line of defense before a reply reaches the
// widget: Normalize is total, it never fails whatever the input looks like.
package normalize

import (
	"encoding/json"
	"regexp"
	"strings"

	"hormur-widget-backend/internal/types"
)

// Result is the tagged outcome of normalization: Parsed is true when the
// backend sent structured JSON, false when we fell back to treating the
// whole text as the message.
type Result struct {
	Reply  types.ChatReply
	Parsed bool
}

var (
	fenceOpen = regexp.MustCompile("```json\n?")
	fenceAny  = regexp.MustCompile("```\n?")
)

// Normalize parses the raw assistant message. Assistants regularly wrap
// their JSON in markdown code fences, return prose, or omit fields; every
// one of those shapes comes out as a well-formed reply.
func Normalize(raw string) Result {
	stripped := stripFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripped), &fields); err != nil || fields == nil {
		return Result{
			Reply: types.ChatReply{
				Message:      raw,
				Results:      []types.ResultItem{},
				ShowCalendly: false,
			},
		}
	}

	reply := types.ChatReply{Results: []types.ResultItem{}}

	if v, ok := fields["sessionId"]; ok {
		var s string
		_ = json.Unmarshal(v, &s)
		reply.SessionID = s
	}
	if v, ok := fields["message"]; ok {
		var s string
		_ = json.Unmarshal(v, &s)
		reply.Message = s
	}
	if reply.Message == "" {
		reply.Message = stripped
	}
	if v, ok := fields["results"]; ok {
		var items []types.ResultItem
		if err := json.Unmarshal(v, &items); err == nil && items != nil {
			for i := range items {
				if strings.TrimSpace(items[i].Title) == "" {
					items[i].Title = "Untitled"
				}
			}
			reply.Results = items
		}
	}
	if v, ok := fields["showCalendly"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			reply.ShowCalendly = b
		}
	}
	return Result{Reply: reply, Parsed: true}
}

func stripFences(s string) string {
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceAny.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
