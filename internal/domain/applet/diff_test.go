package applet

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func resolvedPair(t *testing.T) (*Applet, Spec) {
	t.Helper()
	spec := validSpec()
	live, err := resolve(spec, nil, "tenant1", time.Now().UTC())
	require.NoError(t, err)
	return live, spec
}

// carryIDs resubmits a payload with the ids of an existing graph, so
// resolving it against that graph is identity-preserving.
func carryIDs(spec Spec, live *Applet) Spec {
	for i := range spec.Activities {
		act := &live.Activities[i]
		spec.Activities[i].ID = &act.ID
		for j := range spec.Activities[i].Items {
			spec.Activities[i].Items[j].ID = &act.Items[j].ID
		}
	}
	for i := range spec.Flows {
		flow := &live.Flows[i]
		spec.Flows[i].ID = &flow.ID
		for j := range spec.Flows[i].Items {
			spec.Flows[i].Items[j].ID = &flow.Items[j].ID
		}
	}
	return spec
}

func TestDiff_NoopIsEmpty(t *testing.T) {
	live, spec := resolvedPair(t)

	next, err := resolve(carryIDs(spec, live), live, "tenant1", time.Now().UTC())
	require.NoError(t, err)

	rec := Diff(live, next)
	require.True(t, rec.Empty())
}

func TestDiff_AppletField(t *testing.T) {
	live, spec := resolvedPair(t)

	update := carryIDs(spec, live)
	update.DisplayName = "Renamed Check-in"
	next, err := resolve(update, live, "tenant1", time.Now().UTC())
	require.NoError(t, err)

	rec := Diff(live, next)
	require.False(t, rec.Empty())
	require.Len(t, rec.Applet, 1)
	require.Equal(t, "display_name", rec.Applet[0].Field)
	require.Equal(t, "Daily Check-in", rec.Applet[0].Old)
	require.Equal(t, "Renamed Check-in", rec.Applet[0].New)
	require.Empty(t, rec.Activities)
	require.Empty(t, rec.Flows)
}

// A whitespace-only edit to translated text is a real change: exports
// render the text verbatim.
func TestDiff_WhitespaceCounts(t *testing.T) {
	live, spec := resolvedPair(t)

	update := carryIDs(spec, live)
	update.Activities[0].Items[0].Question = TranslatedText{"en": "How do you feel? "}
	next, err := resolve(update, live, "tenant1", time.Now().UTC())
	require.NoError(t, err)

	rec := Diff(live, next)
	require.False(t, rec.Empty())
	require.Len(t, rec.Activities, 1)
	require.Len(t, rec.Activities[0].Items, 1)
	require.Equal(t, ChangeModified, rec.Activities[0].Items[0].Kind)
	require.Equal(t, "question", rec.Activities[0].Items[0].Fields[0].Field)
}

// Key order and token spacing inside raw JSON payloads are not changes.
func TestDiff_JSONStructural(t *testing.T) {
	live, spec := resolvedPair(t)

	update := carryIDs(spec, live)
	update.Activities[0].Items[0].ResponseValues = json.RawMessage(
		`{ "options": [ {"value":0,"text":"good"}, {"value":1,"text":"bad"} ] }`)
	next, err := resolve(update, live, "tenant1", time.Now().UTC())
	require.NoError(t, err)

	rec := Diff(live, next)
	require.True(t, rec.Empty())
}

func TestDiff_ActivityAddedAndRemoved(t *testing.T) {
	live, spec := resolvedPair(t)
	removed := live.Activities[1]

	update := carryIDs(spec, live)
	update.Activities[1] = ActivitySpec{
		Key:  uuid.New(),
		Name: "Night Survey",
		Items: []ItemSpec{
			{
				Name:         "sleep",
				Question:     TranslatedText{"en": "Ready to sleep?"},
				ResponseType: ResponseText,
				Config:       json.RawMessage(`{}`),
			},
		},
	}
	update.Flows[0].Items[1] = FlowItemSpec{
		ID:          &live.Flows[0].Items[1].ID,
		ActivityKey: &update.Activities[1].Key,
	}
	next, err := resolve(update, live, "tenant1", time.Now().UTC())
	require.NoError(t, err)

	rec := Diff(live, next)
	require.Len(t, rec.Activities, 2)

	kinds := map[ChangeKind]string{}
	for _, change := range rec.Activities {
		kinds[change.Kind] = change.Name
	}
	require.Equal(t, "Night Survey", kinds[ChangeAdded])
	require.Equal(t, removed.Name, kinds[ChangeRemoved])

	// The flow item was retargeted to the new activity.
	require.Len(t, rec.Flows, 1)
	require.Len(t, rec.Flows[0].Items, 1)
	require.Equal(t, "activity_id", rec.Flows[0].Items[0].Fields[0].Field)
}

func TestDiff_Reorder(t *testing.T) {
	live, spec := resolvedPair(t)

	update := carryIDs(spec, live)
	update.Activities[0], update.Activities[1] = update.Activities[1], update.Activities[0]
	update.Flows[0].Items[0], update.Flows[0].Items[1] = update.Flows[0].Items[1], update.Flows[0].Items[0]
	next, err := resolve(update, live, "tenant1", time.Now().UTC())
	require.NoError(t, err)

	rec := Diff(live, next)
	require.Len(t, rec.Activities, 2)
	for _, change := range rec.Activities {
		require.Equal(t, ChangeModified, change.Kind)
		require.Equal(t, "order", change.Fields[0].Field)
	}
}

func TestDiff_LogicRetarget(t *testing.T) {
	live, spec := resolvedPair(t)

	// Replace the referenced sibling: same name, fresh entity.
	update := carryIDs(spec, live)
	update.Activities[0].Items[0].ID = nil
	next, err := resolve(update, live, "tenant1", time.Now().UTC())
	require.NoError(t, err)

	rec := Diff(live, next)
	require.Len(t, rec.Activities, 1)

	var gotLogicChange bool
	for _, item := range rec.Activities[0].Items {
		for _, field := range item.Fields {
			if field.Field == "conditional_logic" {
				gotLogicChange = true
			}
		}
	}
	require.True(t, gotLogicChange, "replacing the referenced item should surface as a logic change")
}
