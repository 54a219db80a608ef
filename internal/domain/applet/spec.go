package applet

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Spec is the client payload describing the desired state of an applet.
// The same shape serves create and update; on update, entities carrying
// an ID modify the existing live entity and entities without one are
// minted fresh identifiers by the resolver.
type Spec struct {
	DisplayName string         `json:"display_name"`
	Description TranslatedText `json:"description,omitempty"`
	About       TranslatedText `json:"about,omitempty"`
	Image       string         `json:"image,omitempty"`
	Watermark   string         `json:"watermark,omitempty"`
	Encryption  Encryption     `json:"encryption"`
	Report      ReportSettings `json:"report,omitempty"`

	Activities []ActivitySpec `json:"activities"`
	Flows      []FlowSpec     `json:"flows,omitempty"`
}

// ActivitySpec describes one activity in a payload. Key is a
// client-chosen correlation UUID: flow items reference activities by key
// because new activities have no server id yet. Keys never persist.
type ActivitySpec struct {
	ID  *uuid.UUID `json:"id,omitempty"`
	Key uuid.UUID  `json:"key"`

	Name               string         `json:"name"`
	Description        TranslatedText `json:"description,omitempty"`
	IsReviewable       bool           `json:"is_reviewable,omitempty"`
	IsHidden           bool           `json:"is_hidden,omitempty"`
	AutoAssign         bool           `json:"auto_assign,omitempty"`
	IsSkippable        bool           `json:"is_skippable,omitempty"`
	ShowAllAtOnce      bool           `json:"show_all_at_once,omitempty"`
	ResponseIsEditable bool           `json:"response_is_editable,omitempty"`

	Items []ItemSpec `json:"items"`
}

// ItemSpec describes one item. Conditional logic references sibling
// items by name; the resolver rewrites names to item UUIDs.
type ItemSpec struct {
	ID *uuid.UUID `json:"id,omitempty"`

	Name             string                `json:"name"`
	Question         TranslatedText        `json:"question"`
	ResponseType     ResponseType          `json:"response_type"`
	ResponseValues   json.RawMessage       `json:"response_values,omitempty"`
	Config           json.RawMessage       `json:"config"`
	ConditionalLogic *ConditionalLogicSpec `json:"conditional_logic,omitempty"`
}

// ConditionalLogicSpec is the payload form of conditional logic.
type ConditionalLogicSpec struct {
	Match      string          `json:"match"`
	Conditions []ConditionSpec `json:"conditions"`
}

// ConditionSpec references a sibling item by its payload name.
type ConditionSpec struct {
	ItemName string          `json:"item_name"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// FlowSpec describes one activity flow.
type FlowSpec struct {
	ID *uuid.UUID `json:"id,omitempty"`

	Name                       string         `json:"name"`
	Description                TranslatedText `json:"description,omitempty"`
	IsSingleReport             bool           `json:"is_single_report,omitempty"`
	HideBadge                  bool           `json:"hide_badge,omitempty"`
	ReportIncludedActivityName string         `json:"report_included_activity_name,omitempty"`
	ReportIncludedItemName     string         `json:"report_included_item_name,omitempty"`

	Items []FlowItemSpec `json:"items"`
}

// FlowItemSpec references one activity, either by payload key or by the
// live UUID of an activity that also appears in the payload. Exactly one
// of the two must be set.
type FlowItemSpec struct {
	ID          *uuid.UUID `json:"id,omitempty"`
	ActivityKey *uuid.UUID `json:"activity_key,omitempty"`
	ActivityID  *uuid.UUID `json:"activity_id,omitempty"`
}
