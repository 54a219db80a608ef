package applet

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mindlogger/applet-engine/internal/domain/version"
	"github.com/mindlogger/applet-engine/internal/repository"
)

// memStore is an in-memory Repository and HistoryRepository with the
// same conditional-write semantics as the SQLite implementation.
type memStore struct {
	live      map[uuid.UUID]*Applet
	snapshots map[string]*AppletHistory
	log       map[uuid.UUID][]VersionEntry

	// failNextUpdate simulates losing the conditional write to a
	// concurrent writer that got in after the service loaded the graph.
	failNextUpdate bool
}

func newMemStore() *memStore {
	return &memStore{
		live:      make(map[uuid.UUID]*Applet),
		snapshots: make(map[string]*AppletHistory),
		log:       make(map[uuid.UUID][]VersionEntry),
	}
}

func (m *memStore) CreateWithHistory(_ context.Context, live *Applet, hist *AppletHistory, entry VersionEntry) error {
	if _, exists := m.live[live.ID]; exists {
		return repository.ErrConflict
	}
	m.live[live.ID] = live
	m.snapshots[hist.IDVersion] = hist
	m.log[live.ID] = append(m.log[live.ID], entry)
	return nil
}

func (m *memStore) UpdateWithHistory(_ context.Context, live *Applet, expectedVersion string, hist *AppletHistory, entry VersionEntry) error {
	if m.failNextUpdate {
		m.failNextUpdate = false
		return repository.ErrConflict
	}
	cur, exists := m.live[live.ID]
	if !exists {
		return repository.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return repository.ErrConflict
	}
	m.live[live.ID] = live
	m.snapshots[hist.IDVersion] = hist
	m.log[live.ID] = append(m.log[live.ID], entry)
	return nil
}

func (m *memStore) GetLive(_ context.Context, tenantID string, id uuid.UUID) (*Applet, error) {
	live, exists := m.live[id]
	if !exists || live.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return live, nil
}

func (m *memStore) Get(_ context.Context, tenantID string, id uuid.UUID, ver string) (*AppletHistory, error) {
	hist, exists := m.snapshots[version.Encode(id, ver)]
	if !exists || hist.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return hist, nil
}

func (m *memStore) ListVersions(_ context.Context, tenantID string, id uuid.UUID) ([]VersionEntry, error) {
	live, exists := m.live[id]
	if !exists || live.TenantID != tenantID {
		return nil, nil
	}
	return m.log[id], nil
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	logger := slog.New(slog.DiscardHandler)
	return NewService(store, store, logger), store
}

func TestServiceCreate(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	result, err := svc.Create(ctx, "tenant1", "user-1", validSpec())
	require.NoError(t, err)
	require.Equal(t, version.Initial, result.Version)
	require.NotNil(t, result.Applet)

	// Live graph and initial snapshot were persisted together.
	live := store.live[result.Applet.ID]
	require.NotNil(t, live)
	require.Equal(t, version.Initial, live.Version)
	require.Contains(t, store.snapshots, version.Encode(live.ID, version.Initial))
	require.Len(t, store.log[live.ID], 1)
}

func TestServiceCreate_Invalid(t *testing.T) {
	svc, _ := newTestService(t)

	spec := validSpec()
	spec.Encryption = Encryption{}
	_, err := svc.Create(context.Background(), "tenant1", "user-1", spec)
	require.ErrorIs(t, err, ErrValidation)
}

func TestServiceUpdate(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tenant1", "user-1", validSpec())
	require.NoError(t, err)
	id := created.Applet.ID

	update := carryIDs(validSpec(), created.Applet)
	update.DisplayName = "Renamed Check-in"

	result, err := svc.Update(ctx, "tenant1", "user-2", id, update, version.Initial)
	require.NoError(t, err)
	require.Equal(t, "1.0.1", result.Version)
	require.False(t, result.Unchanged)
	require.NotNil(t, result.Changes)
	require.Equal(t, "display_name", result.Changes.Applet[0].Field)

	require.Equal(t, "1.0.1", store.live[id].Version)
	require.Contains(t, store.snapshots, version.Encode(id, "1.0.1"))
	require.Len(t, store.log[id], 2)
	require.Equal(t, "user-2", store.log[id][1].CreatedBy)
}

// A payload that resolves to the identical graph creates no version.
func TestServiceUpdate_Noop(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tenant1", "user-1", validSpec())
	require.NoError(t, err)
	id := created.Applet.ID

	result, err := svc.Update(ctx, "tenant1", "user-1", id, carryIDs(validSpec(), created.Applet), "")
	require.NoError(t, err)
	require.True(t, result.Unchanged)
	require.Equal(t, version.Initial, result.Version)
	require.Len(t, store.log[id], 1, "no-op update must not append to the version log")
}

func TestServiceUpdate_StaleExpectedVersion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tenant1", "user-1", validSpec())
	require.NoError(t, err)

	update := carryIDs(validSpec(), created.Applet)
	update.DisplayName = "Renamed"
	_, err = svc.Update(ctx, "tenant1", "user-1", created.Applet.ID, update, "0.9.9")
	require.ErrorIs(t, err, ErrStaleApplet)
}

func TestServiceUpdate_LostRace(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tenant1", "user-1", validSpec())
	require.NoError(t, err)

	update := carryIDs(validSpec(), created.Applet)
	update.DisplayName = "Renamed"
	store.failNextUpdate = true
	_, err = svc.Update(ctx, "tenant1", "user-1", created.Applet.ID, update, version.Initial)
	require.ErrorIs(t, err, ErrStaleApplet)
}

func TestServiceUpdate_EncryptionImmutable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tenant1", "user-1", validSpec())
	require.NoError(t, err)
	id := created.Applet.ID

	t.Run("different bundle rejected", func(t *testing.T) {
		update := carryIDs(validSpec(), created.Applet)
		update.Encryption.PublicKey = "other"
		_, err := svc.Update(ctx, "tenant1", "user-1", id, update, "")
		require.ErrorIs(t, err, ErrEncryptionImmutable)
	})

	t.Run("absent bundle keeps current", func(t *testing.T) {
		update := carryIDs(validSpec(), created.Applet)
		update.Encryption = Encryption{}
		result, err := svc.Update(ctx, "tenant1", "user-1", id, update, "")
		require.NoError(t, err)
		require.True(t, result.Unchanged)
	})
}

func TestServiceUpdate_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Update(context.Background(), "tenant1", "user-1", uuid.New(), validSpec(), "")
	require.ErrorIs(t, err, ErrAppletNotFound)
}

func TestServiceGetHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tenant1", "user-1", validSpec())
	require.NoError(t, err)
	id := created.Applet.ID

	hist, err := svc.GetHistory(ctx, "tenant1", id, version.Initial)
	require.NoError(t, err)
	require.Equal(t, version.Encode(id, version.Initial), hist.IDVersion)

	t.Run("malformed version", func(t *testing.T) {
		_, err := svc.GetHistory(ctx, "tenant1", id, "1.0.0_beta")
		require.ErrorIs(t, err, version.ErrMalformedIdVersion)
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := svc.GetHistory(ctx, "tenant1", id, "9.9.9")
		require.ErrorIs(t, err, ErrVersionNotFound)
	})

	t.Run("wrong tenant", func(t *testing.T) {
		_, err := svc.GetHistory(ctx, "tenant2", id, version.Initial)
		require.ErrorIs(t, err, ErrVersionNotFound)
	})
}

// Historic snapshots survive later updates untouched.
func TestServiceHistoryImmutable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tenant1", "user-1", validSpec())
	require.NoError(t, err)
	id := created.Applet.ID

	update := carryIDs(validSpec(), created.Applet)
	update.DisplayName = "Renamed Check-in"
	_, err = svc.Update(ctx, "tenant1", "user-1", id, update, "")
	require.NoError(t, err)

	v1, err := svc.GetHistory(ctx, "tenant1", id, version.Initial)
	require.NoError(t, err)
	require.Equal(t, "Daily Check-in", v1.DisplayName)
}

func TestServiceListVersions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tenant1", "user-1", validSpec())
	require.NoError(t, err)
	id := created.Applet.ID

	update := carryIDs(validSpec(), created.Applet)
	update.DisplayName = "Renamed"
	_, err = svc.Update(ctx, "tenant1", "user-2", id, update, "")
	require.NoError(t, err)

	entries, err := svc.ListVersions(ctx, "tenant1", id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, version.Initial, entries[0].Version)
	require.Equal(t, "1.0.1", entries[1].Version)

	_, err = svc.ListVersions(ctx, "tenant1", uuid.New())
	require.ErrorIs(t, err, ErrAppletNotFound)
}

func TestServiceDiffVersions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tenant1", "user-1", validSpec())
	require.NoError(t, err)
	id := created.Applet.ID

	update := carryIDs(validSpec(), created.Applet)
	update.DisplayName = "Renamed Check-in"
	update.Activities[0].Items[0].Question = TranslatedText{"en": "Feeling okay?"}
	_, err = svc.Update(ctx, "tenant1", "user-1", id, update, "")
	require.NoError(t, err)

	rec, err := svc.DiffVersions(ctx, "tenant1", id, version.Initial, "1.0.1")
	require.NoError(t, err)
	require.False(t, rec.Empty())
	require.Equal(t, "display_name", rec.Applet[0].Field)
	require.Len(t, rec.Activities, 1)
	require.Equal(t, "question", rec.Activities[0].Items[0].Fields[0].Field)

	// Diffing a version against itself is empty.
	same, err := svc.DiffVersions(ctx, "tenant1", id, version.Initial, version.Initial)
	require.NoError(t, err)
	require.True(t, same.Empty())

	_, err = svc.DiffVersions(ctx, "tenant1", id, version.Initial, "3.0.0")
	require.ErrorIs(t, err, ErrVersionNotFound)
}
