package agent

import (
	"fmt"
	"strings"

	"github.com/gregpriday/memory-mcp/internal/llm"
	"github.com/gregpriday/memory-mcp/internal/validate"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

// Refinement action kinds.
const (
	ActionUpdate = "UPDATE"
	ActionMerge  = "MERGE"
	ActionCreate = "CREATE"
	ActionDelete = "DELETE"
)

// Action is one step of a refinement plan, a tagged variant over
// UPDATE, MERGE, CREATE, and DELETE.
type Action struct {
	Action string `json:"action"`

	// ID targets a single memory (UPDATE, DELETE).
	ID string `json:"id,omitempty"`
	// IDs targets several: for MERGE the first is the target, the
	// rest are sources folded into it.
	IDs []string `json:"ids,omitempty"`

	Text     string                 `json:"text,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	// DerivedFromIDs may appear top-level in CREATE actions; it is
	// merged into metadata before execution.
	DerivedFromIDs []string `json:"derivedFromIds,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

// Validate checks the per-variant required fields.
func (a *Action) Validate() error {
	switch strings.ToUpper(a.Action) {
	case ActionUpdate:
		if a.ID == "" {
			return fmt.Errorf("UPDATE action requires an id")
		}
		if a.Text == "" && len(a.Metadata) == 0 {
			return fmt.Errorf("UPDATE action for %s changes nothing", a.ID)
		}
	case ActionMerge:
		if len(a.IDs) < 2 {
			return fmt.Errorf("MERGE action requires at least two ids")
		}
	case ActionCreate:
		if strings.TrimSpace(a.Text) == "" {
			return fmt.Errorf("CREATE action requires text")
		}
	case ActionDelete:
		if a.ID == "" && len(a.IDs) == 0 {
			return fmt.Errorf("DELETE action requires an id")
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Action)
	}
	return nil
}

// derivedFrom returns the action's derivedFromIds, whether stated
// top-level or inside metadata.
func (a *Action) derivedFrom() []string {
	if len(a.DerivedFromIDs) > 0 {
		return a.DerivedFromIDs
	}
	if a.Metadata == nil {
		return nil
	}
	ids, err := validate.StringList(a.Metadata["derivedFromIds"])
	if err != nil {
		return nil
	}
	return ids
}

// isPatternCreate reports whether the action creates a derived pattern
// memory, the shape consolidation validation applies to.
func (a *Action) isPatternCreate() bool {
	if !strings.EqualFold(a.Action, ActionCreate) {
		return false
	}
	md := a.Metadata
	kind, _ := md["kind"].(string)
	memoryType, _ := md["memoryType"].(string)
	if memoryType == "" {
		memoryType, _ = md["memory_type"].(string)
	}
	return kind == string(types.KindDerived) && memoryType == string(types.TypePattern)
}

// deleteIDs returns the targets of a DELETE action.
func (a *Action) deleteIDs() []string {
	if len(a.IDs) > 0 {
		return a.IDs
	}
	if a.ID != "" {
		return []string{a.ID}
	}
	return nil
}

// parsePlan decodes the planner's final answer into actions.
func parsePlan(final string) ([]Action, string, error) {
	var parsed struct {
		Actions []Action `json:"actions"`
		Summary string   `json:"summary"`
	}
	if err := llm.DecodeObject(final, &parsed); err != nil {
		return nil, "", fmt.Errorf("agent: unparseable refinement plan: %w", err)
	}
	for i := range parsed.Actions {
		parsed.Actions[i].Action = strings.ToUpper(parsed.Actions[i].Action)
	}
	return parsed.Actions, parsed.Summary, nil
}
