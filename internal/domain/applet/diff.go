package applet

import (
	"encoding/json"
	"reflect"

	"github.com/google/uuid"
)

// ChangeKind classifies one entity-level change.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// FieldChange records one changed field with its old and new value.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old,omitempty"`
	New   any    `json:"new,omitempty"`
}

// ItemChange describes what happened to one item between versions.
type ItemChange struct {
	ID     uuid.UUID     `json:"id"`
	Name   string        `json:"name"`
	Kind   ChangeKind    `json:"kind"`
	Fields []FieldChange `json:"fields,omitempty"`
}

// ActivityChange describes what happened to one activity, including its
// nested item changes.
type ActivityChange struct {
	ID     uuid.UUID     `json:"id"`
	Name   string        `json:"name"`
	Kind   ChangeKind    `json:"kind"`
	Fields []FieldChange `json:"fields,omitempty"`
	Items  []ItemChange  `json:"items,omitempty"`
}

// FlowItemChange describes a reordering or retargeting of one flow item.
type FlowItemChange struct {
	ID     uuid.UUID     `json:"id"`
	Kind   ChangeKind    `json:"kind"`
	Fields []FieldChange `json:"fields,omitempty"`
}

// FlowChange describes what happened to one flow.
type FlowChange struct {
	ID     uuid.UUID        `json:"id"`
	Name   string           `json:"name"`
	Kind   ChangeKind       `json:"kind"`
	Fields []FieldChange    `json:"fields,omitempty"`
	Items  []FlowItemChange `json:"items,omitempty"`
}

// ChangeRecord is the structured diff produced when one applet version
// supersedes another. An empty record means the update was a no-op and
// must not create a version.
type ChangeRecord struct {
	Applet     []FieldChange    `json:"applet,omitempty"`
	Activities []ActivityChange `json:"activities,omitempty"`
	Flows      []FlowChange     `json:"flows,omitempty"`
}

// Empty reports whether the record carries no change at any level.
func (r *ChangeRecord) Empty() bool {
	return len(r.Applet) == 0 && len(r.Activities) == 0 && len(r.Flows) == 0
}

// Diff computes the semantic difference between two live graphs.
// Entities are matched by UUID: present only in after means added, only
// in before means removed. Ordering counts as a change iff the derived
// order value differs. Whitespace-only edits to translated text count.
func Diff(before, after *Applet) *ChangeRecord {
	rec := &ChangeRecord{}

	rec.Applet = diffAppletFields(before, after)

	beforeActs := make(map[uuid.UUID]*Activity, len(before.Activities))
	for i := range before.Activities {
		beforeActs[before.Activities[i].ID] = &before.Activities[i]
	}

	for i := range after.Activities {
		act := &after.Activities[i]
		prev, ok := beforeActs[act.ID]
		if !ok {
			rec.Activities = append(rec.Activities, ActivityChange{
				ID: act.ID, Name: act.Name, Kind: ChangeAdded,
			})
			continue
		}
		delete(beforeActs, act.ID)
		if change, changed := diffActivity(prev, act); changed {
			rec.Activities = append(rec.Activities, change)
		}
	}
	for i := range before.Activities {
		act := &before.Activities[i]
		if _, removed := beforeActs[act.ID]; removed {
			rec.Activities = append(rec.Activities, ActivityChange{
				ID: act.ID, Name: act.Name, Kind: ChangeRemoved,
			})
		}
	}

	beforeFlows := make(map[uuid.UUID]*Flow, len(before.Flows))
	for i := range before.Flows {
		beforeFlows[before.Flows[i].ID] = &before.Flows[i]
	}
	for i := range after.Flows {
		flow := &after.Flows[i]
		prev, ok := beforeFlows[flow.ID]
		if !ok {
			rec.Flows = append(rec.Flows, FlowChange{ID: flow.ID, Name: flow.Name, Kind: ChangeAdded})
			continue
		}
		delete(beforeFlows, flow.ID)
		if change, changed := diffFlow(prev, flow); changed {
			rec.Flows = append(rec.Flows, change)
		}
	}
	for i := range before.Flows {
		flow := &before.Flows[i]
		if _, removed := beforeFlows[flow.ID]; removed {
			rec.Flows = append(rec.Flows, FlowChange{ID: flow.ID, Name: flow.Name, Kind: ChangeRemoved})
		}
	}

	return rec
}

func diffAppletFields(before, after *Applet) []FieldChange {
	var fields []FieldChange
	appendChange := func(name string, old, new any, equal bool) {
		if !equal {
			fields = append(fields, FieldChange{Field: name, Old: old, New: new})
		}
	}

	appendChange("display_name", before.DisplayName, after.DisplayName, before.DisplayName == after.DisplayName)
	appendChange("description", before.Description, after.Description, before.Description.Equal(after.Description))
	appendChange("about", before.About, after.About, before.About.Equal(after.About))
	appendChange("image", before.Image, after.Image, before.Image == after.Image)
	appendChange("watermark", before.Watermark, after.Watermark, before.Watermark == after.Watermark)
	appendChange("report", before.Report, after.Report, before.Report.equal(after.Report))
	return fields
}

func diffActivity(before, after *Activity) (ActivityChange, bool) {
	change := ActivityChange{ID: after.ID, Name: after.Name, Kind: ChangeModified}

	appendChange := func(name string, old, new any, equal bool) {
		if !equal {
			change.Fields = append(change.Fields, FieldChange{Field: name, Old: old, New: new})
		}
	}
	appendChange("name", before.Name, after.Name, before.Name == after.Name)
	appendChange("description", before.Description, after.Description, before.Description.Equal(after.Description))
	appendChange("is_reviewable", before.IsReviewable, after.IsReviewable, before.IsReviewable == after.IsReviewable)
	appendChange("is_hidden", before.IsHidden, after.IsHidden, before.IsHidden == after.IsHidden)
	appendChange("auto_assign", before.AutoAssign, after.AutoAssign, before.AutoAssign == after.AutoAssign)
	appendChange("is_skippable", before.IsSkippable, after.IsSkippable, before.IsSkippable == after.IsSkippable)
	appendChange("show_all_at_once", before.ShowAllAtOnce, after.ShowAllAtOnce, before.ShowAllAtOnce == after.ShowAllAtOnce)
	appendChange("response_is_editable", before.ResponseIsEditable, after.ResponseIsEditable, before.ResponseIsEditable == after.ResponseIsEditable)
	appendChange("order", before.Order, after.Order, before.Order == after.Order)

	beforeItems := make(map[uuid.UUID]*Item, len(before.Items))
	for i := range before.Items {
		beforeItems[before.Items[i].ID] = &before.Items[i]
	}
	for i := range after.Items {
		item := &after.Items[i]
		prev, ok := beforeItems[item.ID]
		if !ok {
			change.Items = append(change.Items, ItemChange{ID: item.ID, Name: item.Name, Kind: ChangeAdded})
			continue
		}
		delete(beforeItems, item.ID)
		if itemChange, changed := diffItem(prev, item); changed {
			change.Items = append(change.Items, itemChange)
		}
	}
	for i := range before.Items {
		item := &before.Items[i]
		if _, removed := beforeItems[item.ID]; removed {
			change.Items = append(change.Items, ItemChange{ID: item.ID, Name: item.Name, Kind: ChangeRemoved})
		}
	}

	return change, len(change.Fields) > 0 || len(change.Items) > 0
}

func diffItem(before, after *Item) (ItemChange, bool) {
	change := ItemChange{ID: after.ID, Name: after.Name, Kind: ChangeModified}

	appendChange := func(name string, old, new any, equal bool) {
		if !equal {
			change.Fields = append(change.Fields, FieldChange{Field: name, Old: old, New: new})
		}
	}
	appendChange("name", before.Name, after.Name, before.Name == after.Name)
	appendChange("question", before.Question, after.Question, before.Question.Equal(after.Question))
	appendChange("response_type", before.ResponseType, after.ResponseType, before.ResponseType == after.ResponseType)
	appendChange("response_values", rawPreview(before.ResponseValues), rawPreview(after.ResponseValues), equalJSON(before.ResponseValues, after.ResponseValues))
	appendChange("config", rawPreview(before.Config), rawPreview(after.Config), equalJSON(before.Config, after.Config))
	appendChange("conditional_logic", before.ConditionalLogic, after.ConditionalLogic, equalLogic(before.ConditionalLogic, after.ConditionalLogic))
	appendChange("order", before.Order, after.Order, before.Order == after.Order)

	return change, len(change.Fields) > 0
}

func diffFlow(before, after *Flow) (FlowChange, bool) {
	change := FlowChange{ID: after.ID, Name: after.Name, Kind: ChangeModified}

	appendChange := func(name string, old, new any, equal bool) {
		if !equal {
			change.Fields = append(change.Fields, FieldChange{Field: name, Old: old, New: new})
		}
	}
	appendChange("name", before.Name, after.Name, before.Name == after.Name)
	appendChange("description", before.Description, after.Description, before.Description.Equal(after.Description))
	appendChange("is_single_report", before.IsSingleReport, after.IsSingleReport, before.IsSingleReport == after.IsSingleReport)
	appendChange("hide_badge", before.HideBadge, after.HideBadge, before.HideBadge == after.HideBadge)
	appendChange("report_included_activity_name", before.ReportIncludedActivityName, after.ReportIncludedActivityName, before.ReportIncludedActivityName == after.ReportIncludedActivityName)
	appendChange("report_included_item_name", before.ReportIncludedItemName, after.ReportIncludedItemName, before.ReportIncludedItemName == after.ReportIncludedItemName)
	appendChange("order", before.Order, after.Order, before.Order == after.Order)

	beforeItems := make(map[uuid.UUID]*FlowItem, len(before.Items))
	for i := range before.Items {
		beforeItems[before.Items[i].ID] = &before.Items[i]
	}
	for i := range after.Items {
		item := &after.Items[i]
		prev, ok := beforeItems[item.ID]
		if !ok {
			change.Items = append(change.Items, FlowItemChange{ID: item.ID, Kind: ChangeAdded})
			continue
		}
		delete(beforeItems, item.ID)

		itemChange := FlowItemChange{ID: item.ID, Kind: ChangeModified}
		if prev.ActivityID != item.ActivityID {
			itemChange.Fields = append(itemChange.Fields, FieldChange{Field: "activity_id", Old: prev.ActivityID, New: item.ActivityID})
		}
		if prev.Order != item.Order {
			itemChange.Fields = append(itemChange.Fields, FieldChange{Field: "order", Old: prev.Order, New: item.Order})
		}
		if len(itemChange.Fields) > 0 {
			change.Items = append(change.Items, itemChange)
		}
	}
	for i := range before.Items {
		item := &before.Items[i]
		if _, removed := beforeItems[item.ID]; removed {
			change.Items = append(change.Items, FlowItemChange{ID: item.ID, Kind: ChangeRemoved})
		}
	}

	return change, len(change.Fields) > 0 || len(change.Items) > 0
}

// equalJSON compares two raw payloads structurally, so re-encoding noise
// (key order, insignificant whitespace between tokens) is not a change.
func equalJSON(a, b json.RawMessage) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return string(a) == string(b)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return string(a) == string(b)
	}
	return reflect.DeepEqual(av, bv)
}

func equalLogic(a, b *ConditionalLogic) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Match != b.Match || len(a.Conditions) != len(b.Conditions) {
		return false
	}
	for i := range a.Conditions {
		ca, cb := a.Conditions[i], b.Conditions[i]
		if ca.ItemID != cb.ItemID || ca.Type != cb.Type || !equalJSON(ca.Payload, cb.Payload) {
			return false
		}
	}
	return true
}

// rawPreview keeps raw payloads readable when a ChangeRecord is
// serialized: valid JSON is embedded as-is rather than base64.
func rawPreview(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return json.RawMessage(raw)
}
