package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseResult is either a ParsedClusterResponse, a ParsedMatchResponse or a
// ParseFailure. Callers switch on the concrete type.
type ParseResult interface {
	parseResult()
}

type ClusterGroup struct {
	GroupID      string `json:"group_id"`
	ArticleIDs   []int  `json:"article_ids"`
	EventSummary string `json:"event_summary"`
}

type ParsedClusterResponse struct {
	Groups []ClusterGroup
}

type MatchEntry struct {
	ArticleIndex *int    `json:"article_index"`
	MatchedLink  *string `json:"matched_link"`
}

type ParsedMatchResponse struct {
	Entries []MatchEntry
}

type ParseFailure struct {
	Reason string
	Raw    string
	Err    error
}

func (ParsedClusterResponse) parseResult() {}
func (ParsedMatchResponse) parseResult()   {}
func (ParseFailure) parseResult()          {}

func (f ParseFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Reason, f.Err)
	}
	return f.Reason
}

// stripCodeFence returns the body of the first markdown code fence in a
// model response, or the trimmed response when there is none.
func stripCodeFence(response string) string {
	response = strings.TrimSpace(response)

	start := strings.Index(response, "```")
	if start < 0 {
		return response
	}
	body := response[start+len("```"):]
	body = strings.TrimPrefix(body, "json")
	body = strings.TrimPrefix(body, "JSON")
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func decodeStrict(payload string, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func parseClusterResponse(response string) ParseResult {
	payload := stripCodeFence(response)
	if payload == "" {
		return ParseFailure{Reason: "empty response", Raw: response}
	}

	var body struct {
		Groups *[]ClusterGroup `json:"groups"`
	}
	if err := decodeStrict(payload, &body); err != nil {
		return ParseFailure{Reason: "invalid cluster JSON", Raw: response, Err: err}
	}
	if body.Groups == nil {
		return ParseFailure{Reason: "missing groups field", Raw: response}
	}

	return ParsedClusterResponse{Groups: *body.Groups}
}

func parseMatchResponse(response string) ParseResult {
	payload := stripCodeFence(response)
	if payload == "" {
		return ParseFailure{Reason: "empty response", Raw: response}
	}

	var entries []MatchEntry
	if err := decodeStrict(payload, &entries); err != nil {
		return ParseFailure{Reason: "invalid match JSON", Raw: response, Err: err}
	}

	return ParsedMatchResponse{Entries: entries}
}
