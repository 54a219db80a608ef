package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mindlogger/applet-engine/internal/domain/applet"
	"github.com/mindlogger/applet-engine/internal/domain/version"
	"github.com/mindlogger/applet-engine/internal/sqlite"
)

type testEnv struct {
	db          *sqlite.DB
	appletRepo  *sqlite.AppletRepository
	historyRepo *sqlite.HistoryRepository
	svc         *applet.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { _ = db.Close() })

	appletRepo := sqlite.NewAppletRepository(db)
	historyRepo := sqlite.NewHistoryRepository(db)

	return &testEnv{
		db:          db,
		appletRepo:  appletRepo,
		historyRepo: historyRepo,
		svc:         applet.NewService(appletRepo, historyRepo, nil),
	}
}

func checkinSpec() applet.Spec {
	moodKey := uuid.New()
	eveningKey := uuid.New()
	return applet.Spec{
		DisplayName: "Daily Checkin",
		Description: applet.TranslatedText{"en": "Track your day"},
		Encryption:  applet.Encryption{PublicKey: "pk", Prime: "17", Base: "3", AccountID: "acct1"},
		Activities: []applet.ActivitySpec{
			{
				Key:  moodKey,
				Name: "Morning Survey",
				Items: []applet.ItemSpec{
					{
						Name:           "mood",
						Question:       applet.TranslatedText{"en": "How do you feel?"},
						ResponseType:   applet.ResponseSingleSelect,
						ResponseValues: json.RawMessage(`{"options":[{"text":"good","value":1},{"text":"bad","value":2}]}`),
						Config:         json.RawMessage(`{"randomize_options":false}`),
					},
					{
						Name:         "notes",
						Question:     applet.TranslatedText{"en": "Tell us more"},
						ResponseType: applet.ResponseText,
						Config:       json.RawMessage(`{"max_response_length":300}`),
						ConditionalLogic: &applet.ConditionalLogicSpec{
							Match: "any",
							Conditions: []applet.ConditionSpec{
								{ItemName: "mood", Type: "EQUAL_TO_OPTION", Payload: json.RawMessage(`{"option_value":"2"}`)},
							},
						},
					},
				},
			},
			{
				Key:  eveningKey,
				Name: "Evening Survey",
				Items: []applet.ItemSpec{
					{
						Name:         "summary",
						Question:     applet.TranslatedText{"en": "Summarize your day"},
						ResponseType: applet.ResponseText,
						Config:       json.RawMessage(`{"max_response_length":1000}`),
					},
				},
			},
		},
		Flows: []applet.FlowSpec{
			{
				Name: "Full Day",
				Items: []applet.FlowItemSpec{
					{ActivityKey: &moodKey},
					{ActivityKey: &eveningKey},
				},
			},
		},
	}
}

// specFromLive rebuilds an update payload that keeps every live entity,
// the way a client round-trips ids.
func specFromLive(spec applet.Spec, live *applet.Applet) applet.Spec {
	for i := range spec.Activities {
		act := live.Activities[i]
		spec.Activities[i].ID = &act.ID
		for j := range spec.Activities[i].Items {
			spec.Activities[i].Items[j].ID = &act.Items[j].ID
		}
	}
	for i := range spec.Flows {
		flow := live.Flows[i]
		spec.Flows[i].ID = &flow.ID
		for j := range spec.Flows[i].Items {
			spec.Flows[i].Items[j].ID = &flow.Items[j].ID
		}
	}
	return spec
}

func TestIntegration_VersionedLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, "tenant1", "editor", checkinSpec())
	require.NoError(t, err)
	require.Equal(t, version.Initial, created.Version)
	id := created.Applet.ID

	// The 1.0.0 snapshot exists and decodes back to the live shape.
	snap, err := env.svc.GetHistory(ctx, "tenant1", id, "1.0.0")
	require.NoError(t, err)
	require.Equal(t, version.Encode(id, "1.0.0"), snap.IDVersion)
	decoded, err := snap.ToLive()
	require.NoError(t, err)
	require.True(t, applet.Diff(created.Applet, decoded).Empty())

	// Rename an item and drop the second flow step.
	spec := specFromLive(checkinSpec(), created.Applet)
	spec.Activities[0].Items[0].Name = "mood_morning"
	spec.Flows[0].Items = spec.Flows[0].Items[:1]

	updated, err := env.svc.Update(ctx, "tenant1", "reviewer", id, spec, "1.0.0")
	require.NoError(t, err)
	require.Equal(t, "1.0.1", updated.Version)
	require.False(t, updated.Unchanged)

	live, err := env.svc.GetLive(ctx, "tenant1", id)
	require.NoError(t, err)
	require.Equal(t, "mood_morning", live.Activities[0].Items[0].Name)
	require.Len(t, live.Flows[0].Items, 1)

	// The old snapshot still carries the original name; identity is
	// matched by UUID so the rename shows as a modification.
	snap, err = env.svc.GetHistory(ctx, "tenant1", id, "1.0.0")
	require.NoError(t, err)
	require.Equal(t, "mood", snap.Activities[0].Items[0].Name)

	entries, err := env.svc.ListVersions(ctx, "tenant1", id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "editor", entries[0].CreatedBy)
	require.Equal(t, "reviewer", entries[1].CreatedBy)

	changes, err := env.svc.DiffVersions(ctx, "tenant1", id, "1.0.0", "1.0.1")
	require.NoError(t, err)
	require.Empty(t, changes.Applet)
	require.Len(t, changes.Activities, 1)
	require.Len(t, changes.Flows, 1)
}

func TestIntegration_StaleUpdateLosesRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, "tenant1", "editor", checkinSpec())
	require.NoError(t, err)
	id := created.Applet.ID

	// Two editors read 1.0.0; the first to publish wins.
	specA := specFromLive(checkinSpec(), created.Applet)
	specA.DisplayName = "Edit A"
	specB := specFromLive(checkinSpec(), created.Applet)
	specB.DisplayName = "Edit B"

	_, err = env.svc.Update(ctx, "tenant1", "a", id, specA, "1.0.0")
	require.NoError(t, err)

	_, err = env.svc.Update(ctx, "tenant1", "b", id, specB, "1.0.0")
	require.ErrorIs(t, err, applet.ErrStaleApplet)

	live, err := env.svc.GetLive(ctx, "tenant1", id)
	require.NoError(t, err)
	require.Equal(t, "Edit A", live.DisplayName)

	entries, err := env.svc.ListVersions(ctx, "tenant1", id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestIntegration_RemovedActivityTombstoned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, "tenant1", "editor", checkinSpec())
	require.NoError(t, err)
	id := created.Applet.ID
	removedID := created.Applet.Activities[1].ID

	spec := specFromLive(checkinSpec(), created.Applet)
	spec.Activities = spec.Activities[:1]
	spec.Flows[0].Items = spec.Flows[0].Items[:1]

	_, err = env.svc.Update(ctx, "tenant1", "editor", id, spec, "")
	require.NoError(t, err)

	live, err := env.svc.GetLive(ctx, "tenant1", id)
	require.NoError(t, err)
	require.Len(t, live.Activities, 1)

	// Soft delete: the row survives as a tombstone, never a DELETE.
	var isDeleted int
	require.NoError(t, env.db.QueryRowContext(ctx,
		`SELECT is_deleted FROM activities WHERE id = ?`, removedID.String()).Scan(&isDeleted))
	require.Equal(t, 1, isDeleted)

	// The activity is still reachable through the old snapshot.
	snap, err := env.svc.GetHistory(ctx, "tenant1", id, "1.0.0")
	require.NoError(t, err)
	require.Len(t, snap.Activities, 2)
}

func TestIntegration_HistoryConditionRefsFrozen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, "tenant1", "editor", checkinSpec())
	require.NoError(t, err)
	id := created.Applet.ID
	moodID := created.Applet.Activities[0].Items[0].ID

	snap, err := env.svc.GetHistory(ctx, "tenant1", id, "1.0.0")
	require.NoError(t, err)

	logic := snap.Activities[0].Items[1].ConditionalLogic
	require.NotNil(t, logic)
	require.Equal(t, version.Encode(moodID, "1.0.0"), logic.Conditions[0].ItemIDVersion)

	// Flow items likewise reference the frozen activity revision.
	require.Equal(t, version.Encode(created.Applet.Activities[0].ID, "1.0.0"),
		snap.Flows[0].Items[0].ActivityIDVersion)
}

func TestIntegration_NoopUpdateMintsNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, "tenant1", "editor", checkinSpec())
	require.NoError(t, err)
	id := created.Applet.ID

	result, err := env.svc.Update(ctx, "tenant1", "editor", id,
		specFromLive(checkinSpec(), created.Applet), "1.0.0")
	require.NoError(t, err)
	require.True(t, result.Unchanged)
	require.Equal(t, "1.0.0", result.Version)

	entries, err := env.svc.ListVersions(ctx, "tenant1", id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestIntegration_TenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, "tenant1", "editor", checkinSpec())
	require.NoError(t, err)
	id := created.Applet.ID

	_, err = env.svc.GetLive(ctx, "tenant2", id)
	require.ErrorIs(t, err, applet.ErrAppletNotFound)

	_, err = env.svc.GetHistory(ctx, "tenant2", id, "1.0.0")
	require.ErrorIs(t, err, applet.ErrVersionNotFound)

	_, err = env.svc.ListVersions(ctx, "tenant2", id)
	require.ErrorIs(t, err, applet.ErrAppletNotFound)
}
