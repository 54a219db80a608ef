// Package applet implements the applet versioning engine: the live
// (mutable) applet graph, its immutable history snapshots, the structural
// diff between two graphs, and the service that turns client payloads
// into new versions.
package applet

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/google/uuid"
)

// TranslatedText maps a locale code to localized text.
type TranslatedText map[string]string

// Equal reports whether two translations carry identical text for
// identical locales. Whitespace differences count.
func (t TranslatedText) Equal(other TranslatedText) bool {
	if len(t) == 0 && len(other) == 0 {
		return true
	}
	return maps.Equal(t, other)
}

// Encryption is the applet's encryption bundle. The engine treats it as
// opaque: it is required on create and immutable afterwards.
type Encryption struct {
	PublicKey string `json:"public_key"`
	Prime     string `json:"prime"`
	Base      string `json:"base"`
	AccountID string `json:"account_id"`
}

// IsZero reports whether no encryption bundle was supplied.
func (e Encryption) IsZero() bool {
	return e == Encryption{}
}

// ReportSettings configures report delivery for an applet.
type ReportSettings struct {
	ServerIP      string   `json:"server_ip,omitempty"`
	PublicKey     string   `json:"public_key,omitempty"`
	Recipients    []string `json:"recipients,omitempty"`
	IncludeUserID bool     `json:"include_user_id,omitempty"`
	EmailBody     string   `json:"email_body,omitempty"`
}

func (r ReportSettings) equal(other ReportSettings) bool {
	if r.ServerIP != other.ServerIP || r.PublicKey != other.PublicKey ||
		r.IncludeUserID != other.IncludeUserID || r.EmailBody != other.EmailBody {
		return false
	}
	if len(r.Recipients) != len(other.Recipients) {
		return false
	}
	for i := range r.Recipients {
		if r.Recipients[i] != other.Recipients[i] {
			return false
		}
	}
	return true
}

// Applet is the live, mutable representation of an applet graph.
// There is at most one live row per UUID; soft-deleted rows stay
// resolvable for as long as history references them.
type Applet struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    string         `json:"tenant_id"`
	DisplayName string         `json:"display_name"`
	Description TranslatedText `json:"description,omitempty"`
	About       TranslatedText `json:"about,omitempty"`
	Image       string         `json:"image,omitempty"`
	Watermark   string         `json:"watermark,omitempty"`
	Encryption  Encryption     `json:"encryption"`
	Report      ReportSettings `json:"report"`
	Version     string         `json:"version"`
	IsDeleted   bool           `json:"is_deleted,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	Activities []Activity `json:"activities"`
	Flows      []Flow     `json:"flows,omitempty"`
}

// Activity is an ordered collection of items forming one assessment.
type Activity struct {
	ID                 uuid.UUID      `json:"id"`
	AppletID           uuid.UUID      `json:"applet_id"`
	Name               string         `json:"name"`
	Description        TranslatedText `json:"description,omitempty"`
	IsReviewable       bool           `json:"is_reviewable,omitempty"`
	IsHidden           bool           `json:"is_hidden,omitempty"`
	AutoAssign         bool           `json:"auto_assign,omitempty"`
	IsSkippable        bool           `json:"is_skippable,omitempty"`
	ShowAllAtOnce      bool           `json:"show_all_at_once,omitempty"`
	ResponseIsEditable bool           `json:"response_is_editable,omitempty"`
	Order              int            `json:"order"`
	IsDeleted          bool           `json:"is_deleted,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`

	Items []Item `json:"items"`
}

// Item is a single question with a typed response and configuration.
type Item struct {
	ID               uuid.UUID         `json:"id"`
	ActivityID       uuid.UUID         `json:"activity_id"`
	Name             string            `json:"name"`
	Question         TranslatedText    `json:"question"`
	ResponseType     ResponseType      `json:"response_type"`
	ResponseValues   json.RawMessage   `json:"response_values,omitempty"`
	Config           json.RawMessage   `json:"config"`
	ConditionalLogic *ConditionalLogic `json:"conditional_logic,omitempty"`
	Order            int               `json:"order"`
	IsDeleted        bool              `json:"is_deleted,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ConditionalLogic shows or hides an item depending on answers given to
// sibling items within the same activity.
type ConditionalLogic struct {
	Match      string      `json:"match"` // "any" or "all"
	Conditions []Condition `json:"conditions"`
}

// Condition is one predicate of a conditional-logic block. It references
// a sibling item by its live UUID.
type Condition struct {
	ItemID  uuid.UUID       `json:"item_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Flow is an ordered sequence of activities presented as one session.
type Flow struct {
	ID             uuid.UUID      `json:"id"`
	AppletID       uuid.UUID      `json:"applet_id"`
	Name           string         `json:"name"`
	Description    TranslatedText `json:"description,omitempty"`
	IsSingleReport bool           `json:"is_single_report,omitempty"`
	HideBadge      bool           `json:"hide_badge,omitempty"`
	ReportIncludedActivityName string `json:"report_included_activity_name,omitempty"`
	ReportIncludedItemName     string `json:"report_included_item_name,omitempty"`
	Order          int            `json:"order"`
	IsDeleted      bool           `json:"is_deleted,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	Items []FlowItem `json:"items"`
}

// FlowItem references exactly one activity of the same applet.
type FlowItem struct {
	ID         uuid.UUID `json:"id"`
	FlowID     uuid.UUID `json:"flow_id"`
	ActivityID uuid.UUID `json:"activity_id"`
	Order      int       `json:"order"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ActivityByID returns the activity with the given id, or nil.
func (a *Applet) ActivityByID(id uuid.UUID) *Activity {
	for i := range a.Activities {
		if a.Activities[i].ID == id {
			return &a.Activities[i]
		}
	}
	return nil
}

// FlowByID returns the flow with the given id, or nil.
func (a *Applet) FlowByID(id uuid.UUID) *Flow {
	for i := range a.Flows {
		if a.Flows[i].ID == id {
			return &a.Flows[i]
		}
	}
	return nil
}

// ItemByID returns the item with the given id, or nil.
func (act *Activity) ItemByID(id uuid.UUID) *Item {
	for i := range act.Items {
		if act.Items[i].ID == id {
			return &act.Items[i]
		}
	}
	return nil
}
