// Package classifier turns free-form operator prompts into structured
// tool requests using an AI provider.
package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Known request actions
const (
	ActionRun    = "run"
	ActionUpdate = "update"
	ActionList   = "list"
	ActionShow   = "show"
	ActionRaise  = "raise"
	ActionSet    = "set"
	ActionScrape = "scrape"
)

// Request is the structured form of an operator prompt
type Request struct {
	Action      string `json:"action"`
	Project     string `json:"project,omitempty"`
	Ticket      string `json:"ticket,omitempty"`
	Environment string `json:"environment,omitempty"`
	Record      string `json:"record,omitempty"`
	Storage     string `json:"storage,omitempty"`
	URL         string `json:"url,omitempty"`
	Path        string `json:"path,omitempty"`
	// Summary carries the operator's one-line defect description for
	// raise requests
	Summary string `json:"summary,omitempty"`
}

// Validate normalizes enum fields and checks the request is actionable
func (r *Request) Validate() error {
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	r.Storage = strings.ToLower(strings.TrimSpace(r.Storage))

	switch r.Action {
	case ActionRun, ActionUpdate:
		if r.Ticket == "" {
			return fmt.Errorf("action %q requires a ticket", r.Action)
		}
	case ActionRaise:
		if r.Project == "" {
			return fmt.Errorf("action %q requires a project", r.Action)
		}
	case ActionShow:
		if r.Path == "" && r.Record == "" {
			return fmt.Errorf("action %q requires a trace path or record name", r.Action)
		}
	case ActionScrape:
		if r.URL == "" {
			return fmt.Errorf("action %q requires a url", r.Action)
		}
	case ActionList, ActionSet:
	case "":
		return fmt.Errorf("prompt did not classify to an action")
	default:
		return fmt.Errorf("unknown action: %s (supported: run, update, list, show, raise, set, scrape)", r.Action)
	}

	if r.Storage != "" && r.Storage != "local" && r.Storage != "s3" {
		return fmt.Errorf("unknown storage: %s (supported: local, s3)", r.Storage)
	}
	return nil
}

// parseRequestJSON extracts and parses a JSON object from a response
// that may contain surrounding text
func parseRequestJSON(response string) (*Request, error) {
	// First try direct parsing
	var req Request
	if err := json.Unmarshal([]byte(response), &req); err == nil {
		return &req, nil
	}

	// Find JSON object in response (look for { ... })
	start := strings.Index(response, "{")
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	// Find matching closing brace
	depth := 0
	end := -1
	for i := start; i < len(response); i++ {
		switch response[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}

	if end == -1 {
		return nil, fmt.Errorf("no matching closing brace found")
	}

	jsonStr := response[start:end]
	if err := json.Unmarshal([]byte(jsonStr), &req); err != nil {
		return nil, fmt.Errorf("failed to parse extracted JSON: %w", err)
	}

	return &req, nil
}
