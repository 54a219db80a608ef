package applet

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists live applet graphs together with their history
// snapshots. Writes span live and history tables in one transaction:
// either both reflect the new version or neither does.
type Repository interface {
	// CreateWithHistory inserts the live graph and its initial snapshot.
	CreateWithHistory(ctx context.Context, live *Applet, hist *AppletHistory, entry VersionEntry) error

	// UpdateWithHistory replaces the live graph and appends a snapshot.
	// The applet row is updated conditionally on expectedVersion; when
	// another writer got there first the call fails with
	// repository.ErrConflict and nothing is written. Live children
	// missing from the new graph are tombstoned, never removed.
	UpdateWithHistory(ctx context.Context, live *Applet, expectedVersion string, hist *AppletHistory, entry VersionEntry) error

	// GetLive hydrates the live graph, excluding tombstoned children.
	GetLive(ctx context.Context, tenantID string, id uuid.UUID) (*Applet, error)
}

// HistoryRepository reads immutable snapshots.
type HistoryRepository interface {
	Get(ctx context.Context, tenantID string, id uuid.UUID, ver string) (*AppletHistory, error)
	ListVersions(ctx context.Context, tenantID string, id uuid.UUID) ([]VersionEntry, error)
}
