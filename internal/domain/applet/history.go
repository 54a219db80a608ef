package applet

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mindlogger/applet-engine/internal/domain/version"
)

// History rows are append-only snapshots. Each carries both the live
// UUID of its origin and the id_version composite that downstream
// subsystems bind to. Cross-entity references inside a snapshot use
// id_version strings, never live UUIDs: a flow item history points at
// the activity history of the same applet version.

// AppletHistory is the frozen applet graph at one version.
type AppletHistory struct {
	IDVersion   string         `json:"id_version"`
	ID          uuid.UUID      `json:"id"`
	Version     string         `json:"version"`
	TenantID    string         `json:"tenant_id"`
	DisplayName string         `json:"display_name"`
	Description TranslatedText `json:"description,omitempty"`
	About       TranslatedText `json:"about,omitempty"`
	Image       string         `json:"image,omitempty"`
	Watermark   string         `json:"watermark,omitempty"`
	Encryption  Encryption     `json:"encryption"`
	Report      ReportSettings `json:"report"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   string         `json:"created_by"`

	Activities []ActivityHistory `json:"activities"`
	Flows      []FlowHistory     `json:"flows,omitempty"`
}

// ActivityHistory is one activity frozen at a version.
type ActivityHistory struct {
	IDVersion       string         `json:"id_version"`
	ID              uuid.UUID      `json:"id"`
	AppletIDVersion string         `json:"applet_id_version"`
	Name            string         `json:"name"`
	Description     TranslatedText `json:"description,omitempty"`
	IsReviewable    bool           `json:"is_reviewable,omitempty"`
	IsHidden        bool           `json:"is_hidden,omitempty"`
	AutoAssign      bool           `json:"auto_assign,omitempty"`
	IsSkippable     bool           `json:"is_skippable,omitempty"`
	ShowAllAtOnce   bool           `json:"show_all_at_once,omitempty"`
	ResponseIsEditable bool        `json:"response_is_editable,omitempty"`
	Order           int            `json:"order"`
	CreatedAt       time.Time      `json:"created_at"`

	Items []ItemHistory `json:"items"`
}

// ItemHistory is one item frozen at a version.
type ItemHistory struct {
	IDVersion         string                   `json:"id_version"`
	ID                uuid.UUID                `json:"id"`
	ActivityIDVersion string                   `json:"activity_id_version"`
	Name              string                   `json:"name"`
	Question          TranslatedText           `json:"question"`
	ResponseType      ResponseType             `json:"response_type"`
	ResponseValues    json.RawMessage          `json:"response_values,omitempty"`
	Config            json.RawMessage          `json:"config"`
	ConditionalLogic  *HistoryConditionalLogic `json:"conditional_logic,omitempty"`
	Order             int                      `json:"order"`
	CreatedAt         time.Time                `json:"created_at"`
}

// HistoryConditionalLogic mirrors ConditionalLogic with sibling
// references rewritten to id_version strings.
type HistoryConditionalLogic struct {
	Match      string             `json:"match"`
	Conditions []HistoryCondition `json:"conditions"`
}

// HistoryCondition references a sibling item history row.
type HistoryCondition struct {
	ItemIDVersion string          `json:"item_id_version"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// FlowHistory is one flow frozen at a version.
type FlowHistory struct {
	IDVersion                  string         `json:"id_version"`
	ID                         uuid.UUID      `json:"id"`
	AppletIDVersion            string         `json:"applet_id_version"`
	Name                       string         `json:"name"`
	Description                TranslatedText `json:"description,omitempty"`
	IsSingleReport             bool           `json:"is_single_report,omitempty"`
	HideBadge                  bool           `json:"hide_badge,omitempty"`
	ReportIncludedActivityName string         `json:"report_included_activity_name,omitempty"`
	ReportIncludedItemName     string         `json:"report_included_item_name,omitempty"`
	Order                      int            `json:"order"`
	CreatedAt                  time.Time      `json:"created_at"`

	Items []FlowItemHistory `json:"items"`
}

// FlowItemHistory references the activity history row of the same
// applet version via ActivityIDVersion.
type FlowItemHistory struct {
	IDVersion         string    `json:"id_version"`
	ID                uuid.UUID `json:"id"`
	FlowIDVersion     string    `json:"flow_id_version"`
	ActivityIDVersion string    `json:"activity_id_version"`
	Order             int       `json:"order"`
	CreatedAt         time.Time `json:"created_at"`
}

// VersionEntry is one line of an applet's version log.
type VersionEntry struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// ToLive converts a frozen snapshot back into the live graph shape.
// Cross references are decoded from id_version form, so two historic
// versions can be compared with the same diff engine that compares live
// graphs. The returned graph is detached from any store.
func (h *AppletHistory) ToLive() (*Applet, error) {
	out := &Applet{
		ID:          h.ID,
		TenantID:    h.TenantID,
		DisplayName: h.DisplayName,
		Description: h.Description,
		About:       h.About,
		Image:       h.Image,
		Watermark:   h.Watermark,
		Encryption:  h.Encryption,
		Report:      h.Report,
		Version:     h.Version,
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.CreatedAt,
	}

	for _, ah := range h.Activities {
		act := Activity{
			ID:                 ah.ID,
			AppletID:           h.ID,
			Name:               ah.Name,
			Description:        ah.Description,
			IsReviewable:       ah.IsReviewable,
			IsHidden:           ah.IsHidden,
			AutoAssign:         ah.AutoAssign,
			IsSkippable:        ah.IsSkippable,
			ShowAllAtOnce:      ah.ShowAllAtOnce,
			ResponseIsEditable: ah.ResponseIsEditable,
			Order:              ah.Order,
			CreatedAt:          ah.CreatedAt,
			UpdatedAt:          ah.CreatedAt,
		}
		for _, ih := range ah.Items {
			item := Item{
				ID:             ih.ID,
				ActivityID:     ah.ID,
				Name:           ih.Name,
				Question:       ih.Question,
				ResponseType:   ih.ResponseType,
				ResponseValues: ih.ResponseValues,
				Config:         ih.Config,
				Order:          ih.Order,
				CreatedAt:      ih.CreatedAt,
				UpdatedAt:      ih.CreatedAt,
			}
			if ih.ConditionalLogic != nil {
				logic := &ConditionalLogic{Match: ih.ConditionalLogic.Match}
				for _, cond := range ih.ConditionalLogic.Conditions {
					decoded, err := version.Decode(cond.ItemIDVersion)
					if err != nil {
						return nil, err
					}
					logic.Conditions = append(logic.Conditions, Condition{
						ItemID:  decoded.ID,
						Type:    cond.Type,
						Payload: cond.Payload,
					})
				}
				item.ConditionalLogic = logic
			}
			act.Items = append(act.Items, item)
		}
		out.Activities = append(out.Activities, act)
	}

	for _, fh := range h.Flows {
		flow := Flow{
			ID:             fh.ID,
			AppletID:       h.ID,
			Name:           fh.Name,
			Description:    fh.Description,
			IsSingleReport: fh.IsSingleReport,
			HideBadge:      fh.HideBadge,
			ReportIncludedActivityName: fh.ReportIncludedActivityName,
			ReportIncludedItemName:     fh.ReportIncludedItemName,
			Order:          fh.Order,
			CreatedAt:      fh.CreatedAt,
			UpdatedAt:      fh.CreatedAt,
		}
		for _, fih := range fh.Items {
			decoded, err := version.Decode(fih.ActivityIDVersion)
			if err != nil {
				return nil, err
			}
			flow.Items = append(flow.Items, FlowItem{
				ID:         fih.ID,
				FlowID:     fh.ID,
				ActivityID: decoded.ID,
				Order:      fih.Order,
				CreatedAt:  fih.CreatedAt,
				UpdatedAt:  fih.CreatedAt,
			})
		}
		out.Flows = append(out.Flows, flow)
	}

	return out, nil
}
