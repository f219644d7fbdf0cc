package models

// ActionType enumerates the registrar's roster mutations.
type ActionType string

const (
	ActionSplit  ActionType = "SPLIT"
	ActionMerge  ActionType = "MERGE"
	ActionAdd    ActionType = "ADD"
	ActionRemove ActionType = "REMOVE"
)

// Action is one structural change proposed by the registrar. Which of the
// optional fields must be set depends on the action type; the registrar
// service validates the combination before anything is applied.
type Action struct {
	Type       ActionType `json:"action" validate:"required,oneof=SPLIT MERGE ADD REMOVE"`
	SectionID  string     `json:"section_id,omitempty"`
	SectionIDs []string   `json:"section_ids,omitempty"`
	Course     string     `json:"course,omitempty"`
	Reason     string     `json:"reason" validate:"required"`
}

// Valid reports whether the action carries the fields its type requires.
func (a Action) Valid() bool {
	if a.Reason == "" {
		return false
	}
	switch a.Type {
	case ActionSplit, ActionRemove:
		return a.SectionID != ""
	case ActionMerge:
		return len(a.SectionIDs) == 2 && a.SectionIDs[0] != "" && a.SectionIDs[1] != ""
	case ActionAdd:
		return a.Course != ""
	}
	return false
}

// ActionStatus records the fate of a single requested action.
type ActionStatus string

const (
	ActionApplied ActionStatus = "applied"
	ActionFailed  ActionStatus = "failed"
	ActionErrored ActionStatus = "error"
)

// ActionOutcome is one audit entry.
type ActionOutcome struct {
	Action Action       `json:"action"`
	Status ActionStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// ChangeLog is the audit trail of one action batch. Nothing is ever silently
// dropped: requested == applied + failed.
type ChangeLog struct {
	Requested int             `json:"actions_requested"`
	Applied   int             `json:"actions_applied"`
	Failed    int             `json:"actions_failed"`
	Details   []ActionOutcome `json:"details"`
}
