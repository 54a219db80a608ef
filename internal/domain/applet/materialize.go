package applet

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mindlogger/applet-engine/internal/domain/version"
)

// materialize freezes the live graph into a history snapshot at the
// given version. All data is deep-copied: the snapshot shares nothing
// with the live graph, so later live mutations cannot leak into it.
//
// The rewrite pass converts every cross-entity reference held as a live
// UUID (flow item → activity, condition → sibling item) into its
// id_version form at the same version. A reference that cannot be
// resolved inside the graph means the resolver let a broken graph
// through, which is a bug, not caller input.
func materialize(a *Applet, ver string, at time.Time, actorID string) (*AppletHistory, error) {
	appletIDV := version.Encode(a.ID, ver)

	hist := &AppletHistory{
		IDVersion:   appletIDV,
		ID:          a.ID,
		Version:     ver,
		TenantID:    a.TenantID,
		DisplayName: a.DisplayName,
		Description: copyText(a.Description),
		About:       copyText(a.About),
		Image:       a.Image,
		Watermark:   a.Watermark,
		Encryption:  a.Encryption,
		Report:      copyReport(a.Report),
		CreatedAt:   at,
		CreatedBy:   actorID,
	}

	activityIDV := make(map[uuid.UUID]string, len(a.Activities))
	itemIDV := make(map[uuid.UUID]string)

	for _, act := range a.Activities {
		idv := version.Encode(act.ID, ver)
		activityIDV[act.ID] = idv

		ah := ActivityHistory{
			IDVersion:          idv,
			ID:                 act.ID,
			AppletIDVersion:    appletIDV,
			Name:               act.Name,
			Description:        copyText(act.Description),
			IsReviewable:       act.IsReviewable,
			IsHidden:           act.IsHidden,
			AutoAssign:         act.AutoAssign,
			IsSkippable:        act.IsSkippable,
			ShowAllAtOnce:      act.ShowAllAtOnce,
			ResponseIsEditable: act.ResponseIsEditable,
			Order:              act.Order,
			CreatedAt:          at,
		}

		for _, item := range act.Items {
			itemIDV[item.ID] = version.Encode(item.ID, ver)
			ah.Items = append(ah.Items, ItemHistory{
				IDVersion:         itemIDV[item.ID],
				ID:                item.ID,
				ActivityIDVersion: idv,
				Name:              item.Name,
				Question:          copyText(item.Question),
				ResponseType:      item.ResponseType,
				ResponseValues:    copyRaw(item.ResponseValues),
				Config:            copyRaw(item.Config),
				Order:             item.Order,
				CreatedAt:         at,
			})
		}

		hist.Activities = append(hist.Activities, ah)
	}

	// Rewrite conditional logic once every item id_version is known.
	for ai, act := range a.Activities {
		for ii, item := range act.Items {
			if item.ConditionalLogic == nil {
				continue
			}
			logic, err := rewriteLogic(item.ConditionalLogic, item.Name, itemIDV)
			if err != nil {
				return nil, err
			}
			hist.Activities[ai].Items[ii].ConditionalLogic = logic
		}
	}

	for _, flow := range a.Flows {
		flowIDV := version.Encode(flow.ID, ver)
		fh := FlowHistory{
			IDVersion:       flowIDV,
			ID:              flow.ID,
			AppletIDVersion: appletIDV,
			Name:            flow.Name,
			Description:     copyText(flow.Description),
			IsSingleReport:  flow.IsSingleReport,
			HideBadge:       flow.HideBadge,
			ReportIncludedActivityName: flow.ReportIncludedActivityName,
			ReportIncludedItemName:     flow.ReportIncludedItemName,
			Order:           flow.Order,
			CreatedAt:       at,
		}

		for _, fi := range flow.Items {
			actIDV, ok := activityIDV[fi.ActivityID]
			if !ok {
				return nil, fmt.Errorf("flow %q item %s: %w", flow.Name, fi.ID, ErrFlowActivityOutOfApplet)
			}
			fh.Items = append(fh.Items, FlowItemHistory{
				IDVersion:         version.Encode(fi.ID, ver),
				ID:                fi.ID,
				FlowIDVersion:     flowIDV,
				ActivityIDVersion: actIDV,
				Order:             fi.Order,
				CreatedAt:         at,
			})
		}

		hist.Flows = append(hist.Flows, fh)
	}

	return hist, nil
}

func rewriteLogic(logic *ConditionalLogic, itemName string, itemIDV map[uuid.UUID]string) (*HistoryConditionalLogic, error) {
	out := &HistoryConditionalLogic{Match: logic.Match}
	for _, cond := range logic.Conditions {
		idv, ok := itemIDV[cond.ItemID]
		if !ok {
			return nil, fmt.Errorf("item %q condition: %w", itemName, ErrUnknownConditionItem)
		}
		out.Conditions = append(out.Conditions, HistoryCondition{
			ItemIDVersion: idv,
			Type:          cond.Type,
			Payload:       copyRaw(cond.Payload),
		})
	}
	return out, nil
}

func copyText(t TranslatedText) TranslatedText {
	if t == nil {
		return nil
	}
	out := make(TranslatedText, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

func copyRaw(raw []byte) []byte {
	if raw == nil {
		return nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

func copyReport(r ReportSettings) ReportSettings {
	out := r
	if r.Recipients != nil {
		out.Recipients = make([]string, len(r.Recipients))
		copy(out.Recipients, r.Recipients)
	}
	return out
}
