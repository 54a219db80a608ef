package applet

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// itemNamePattern restricts item names to alphanumerics and underscores.
// Names key answer exports, so anything looser breaks downstream columns.
var itemNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// resolve turns a client payload into a fully wired live graph. On
// create prev is nil and every entity is minted a fresh UUID. On update
// entities carrying an ID are correlated with prev; entities without one
// are new. Activity keys exist only here: flow items reference payload
// activities by key, and the key→id map dies with this call.
//
// Ordering is re-derived from payload position, so order values are
// dense 0..N-1 by construction.
func resolve(spec Spec, prev *Applet, tenantID string, now time.Time) (*Applet, error) {
	if strings.TrimSpace(spec.DisplayName) == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrValidation)
	}
	if len(spec.Activities) == 0 {
		return nil, fmt.Errorf("%w: applet needs at least one activity", ErrValidation)
	}
	if prev == nil && spec.Encryption.IsZero() {
		return nil, fmt.Errorf("%w: encryption is required on create", ErrValidation)
	}

	out := &Applet{
		TenantID:    tenantID,
		DisplayName: spec.DisplayName,
		Description: spec.Description,
		About:       spec.About,
		Image:       spec.Image,
		Watermark:   spec.Watermark,
		Encryption:  spec.Encryption,
		Report:      spec.Report,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if prev != nil {
		out.ID = prev.ID
		out.Version = prev.Version
		out.CreatedAt = prev.CreatedAt
	} else {
		out.ID = uuid.New()
	}

	keyToID := make(map[uuid.UUID]uuid.UUID, len(spec.Activities))
	reviewable := 0
	reviewableIDs := make(map[uuid.UUID]bool)

	for pos, as := range spec.Activities {
		// A key correlates flow items with payload activities; an
		// id-bearing activity can be retargeted by id instead, so the
		// key is only mandatory for new activities.
		if as.Key == uuid.Nil && as.ID == nil {
			return nil, fmt.Errorf("%w: new activity %q has no key", ErrValidation, as.Name)
		}
		if as.Key != uuid.Nil {
			if _, dup := keyToID[as.Key]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateActivityKey, as.Key)
			}
		}
		if strings.TrimSpace(as.Name) == "" {
			return nil, fmt.Errorf("%w: activity at position %d has no name", ErrValidation, pos)
		}

		act, err := resolveActivity(as, prev, out.ID, pos, now)
		if err != nil {
			return nil, err
		}

		if as.Key != uuid.Nil {
			keyToID[as.Key] = act.ID
		}
		if act.IsReviewable {
			reviewable++
			reviewableIDs[act.ID] = true
		}
		out.Activities = append(out.Activities, *act)
	}

	if reviewable > 1 {
		return nil, ErrMultipleReviewable
	}

	activityIDs := make(map[uuid.UUID]bool, len(out.Activities))
	for _, act := range out.Activities {
		activityIDs[act.ID] = true
	}

	for pos, fs := range spec.Flows {
		flow, err := resolveFlow(fs, prev, out.ID, pos, now, keyToID, activityIDs, reviewableIDs)
		if err != nil {
			return nil, err
		}
		out.Flows = append(out.Flows, *flow)
	}

	return out, nil
}

func resolveActivity(as ActivitySpec, prev *Applet, appletID uuid.UUID, pos int, now time.Time) (*Activity, error) {
	act := &Activity{
		AppletID:           appletID,
		Name:               as.Name,
		Description:        as.Description,
		IsReviewable:       as.IsReviewable,
		IsHidden:           as.IsHidden,
		AutoAssign:         as.AutoAssign,
		IsSkippable:        as.IsSkippable,
		ShowAllAtOnce:      as.ShowAllAtOnce,
		ResponseIsEditable: as.ResponseIsEditable,
		Order:              pos,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var prevAct *Activity
	if as.ID != nil {
		if prev == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownActivity, *as.ID)
		}
		prevAct = prev.ActivityByID(*as.ID)
		if prevAct == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownActivity, *as.ID)
		}
		act.ID = *as.ID
		act.CreatedAt = prevAct.CreatedAt
	} else {
		act.ID = uuid.New()
	}

	if len(as.Items) == 0 {
		return nil, fmt.Errorf("%w: activity %q needs at least one item", ErrValidation, as.Name)
	}

	// First pass mints item ids and builds the name→id map that
	// conditional logic resolves against.
	nameToID := make(map[string]uuid.UUID, len(as.Items))
	for itemPos, is := range as.Items {
		if !itemNamePattern.MatchString(is.Name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidItemName, is.Name)
		}
		if _, dup := nameToID[is.Name]; dup {
			return nil, fmt.Errorf("%w: %q in activity %q", ErrDuplicateItemName, is.Name, as.Name)
		}
		if err := validateResponseShape(is.Name, is.ResponseType, is.ResponseValues, is.Config); err != nil {
			return nil, err
		}

		item := Item{
			ActivityID:     act.ID,
			Name:           is.Name,
			Question:       is.Question,
			ResponseType:   is.ResponseType,
			ResponseValues: is.ResponseValues,
			Config:         is.Config,
			Order:          itemPos,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if is.ID != nil {
			if prevAct == nil {
				return nil, fmt.Errorf("%w: %s", ErrUnknownItem, *is.ID)
			}
			prevItem := prevAct.ItemByID(*is.ID)
			if prevItem == nil {
				return nil, fmt.Errorf("%w: %s", ErrUnknownItem, *is.ID)
			}
			item.ID = *is.ID
			item.CreatedAt = prevItem.CreatedAt
		} else {
			item.ID = uuid.New()
		}

		nameToID[is.Name] = item.ID
		act.Items = append(act.Items, item)
	}

	// Second pass: conditional logic can reference any sibling by name,
	// including items that appear later in the payload.
	for i, is := range as.Items {
		if is.ConditionalLogic == nil {
			continue
		}
		logic, err := resolveLogic(*is.ConditionalLogic, is.Name, nameToID)
		if err != nil {
			return nil, err
		}
		act.Items[i].ConditionalLogic = logic
	}

	return act, nil
}

func resolveLogic(spec ConditionalLogicSpec, itemName string, nameToID map[string]uuid.UUID) (*ConditionalLogic, error) {
	if spec.Match != "any" && spec.Match != "all" {
		return nil, fmt.Errorf("%w: item %q logic match must be any or all", ErrValidation, itemName)
	}
	logic := &ConditionalLogic{Match: spec.Match}
	for _, cond := range spec.Conditions {
		target, ok := nameToID[cond.ItemName]
		if !ok {
			return nil, fmt.Errorf("%w: %q referenced by %q", ErrUnknownConditionItem, cond.ItemName, itemName)
		}
		logic.Conditions = append(logic.Conditions, Condition{
			ItemID:  target,
			Type:    cond.Type,
			Payload: cond.Payload,
		})
	}
	return logic, nil
}

func resolveFlow(
	fs FlowSpec,
	prev *Applet,
	appletID uuid.UUID,
	pos int,
	now time.Time,
	keyToID map[uuid.UUID]uuid.UUID,
	activityIDs map[uuid.UUID]bool,
	reviewableIDs map[uuid.UUID]bool,
) (*Flow, error) {
	if strings.TrimSpace(fs.Name) == "" {
		return nil, fmt.Errorf("%w: flow at position %d has no name", ErrValidation, pos)
	}

	flow := &Flow{
		AppletID:       appletID,
		Name:           fs.Name,
		Description:    fs.Description,
		IsSingleReport: fs.IsSingleReport,
		HideBadge:      fs.HideBadge,
		ReportIncludedActivityName: fs.ReportIncludedActivityName,
		ReportIncludedItemName:     fs.ReportIncludedItemName,
		Order:          pos,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var prevFlow *Flow
	if fs.ID != nil {
		if prev == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, *fs.ID)
		}
		prevFlow = prev.FlowByID(*fs.ID)
		if prevFlow == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, *fs.ID)
		}
		flow.ID = *fs.ID
		flow.CreatedAt = prevFlow.CreatedAt
	} else {
		flow.ID = uuid.New()
	}

	if len(fs.Items) == 0 {
		return nil, fmt.Errorf("%w: flow %q needs at least one item", ErrValidation, fs.Name)
	}

	for itemPos, fis := range fs.Items {
		activityID, err := resolveFlowTarget(fis, fs.Name, keyToID, activityIDs)
		if err != nil {
			return nil, err
		}
		if reviewableIDs[activityID] {
			return nil, fmt.Errorf("%w: flow %q", ErrReviewableInFlow, fs.Name)
		}

		fi := FlowItem{
			FlowID:     flow.ID,
			ActivityID: activityID,
			Order:      itemPos,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if fis.ID != nil {
			if prevFlow == nil {
				return nil, fmt.Errorf("%w: %s", ErrUnknownFlowItem, *fis.ID)
			}
			found := false
			for _, prevItem := range prevFlow.Items {
				if prevItem.ID == *fis.ID {
					fi.CreatedAt = prevItem.CreatedAt
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("%w: %s", ErrUnknownFlowItem, *fis.ID)
			}
			fi.ID = *fis.ID
		} else {
			fi.ID = uuid.New()
		}

		flow.Items = append(flow.Items, fi)
	}

	return flow, nil
}

func resolveFlowTarget(fis FlowItemSpec, flowName string, keyToID map[uuid.UUID]uuid.UUID, activityIDs map[uuid.UUID]bool) (uuid.UUID, error) {
	switch {
	case fis.ActivityKey != nil && fis.ActivityID != nil:
		return uuid.Nil, fmt.Errorf("%w: flow %q item sets both activity key and id", ErrValidation, flowName)
	case fis.ActivityKey != nil:
		id, ok := keyToID[*fis.ActivityKey]
		if !ok {
			return uuid.Nil, fmt.Errorf("%w: %s in flow %q", ErrUnknownActivityKey, *fis.ActivityKey, flowName)
		}
		return id, nil
	case fis.ActivityID != nil:
		if !activityIDs[*fis.ActivityID] {
			return uuid.Nil, fmt.Errorf("%w: %s in flow %q", ErrFlowActivityOutOfApplet, *fis.ActivityID, flowName)
		}
		return *fis.ActivityID, nil
	default:
		return uuid.Nil, fmt.Errorf("%w: flow %q item references no activity", ErrValidation, flowName)
	}
}
