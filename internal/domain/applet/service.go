package applet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mindlogger/applet-engine/internal/domain/version"
	"github.com/mindlogger/applet-engine/internal/repository"
)

// Service orchestrates applet versioning: resolving payloads, diffing
// against the live graph, sequencing versions and persisting live state
// together with immutable history. It holds no mutable state of its own;
// concurrent updates to one applet are serialized by the conditional
// write on the applet's current version.
type Service struct {
	applets   Repository
	histories HistoryRepository
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new applet service.
func NewService(applets Repository, histories HistoryRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		applets:   applets,
		histories: histories,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateResult reports the outcome of Create.
type CreateResult struct {
	Applet  *Applet `json:"applet"`
	Version string  `json:"version"`
}

// UpdateResult reports the outcome of Update. Unchanged means the
// payload diffed empty against the live graph: no version was created
// and Version holds the existing one.
type UpdateResult struct {
	Version   string        `json:"version"`
	Unchanged bool          `json:"unchanged"`
	Changes   *ChangeRecord `json:"changes,omitempty"`
}

// Create builds a new applet from the payload and persists the live
// graph plus its 1.0.0 snapshot in one transaction.
func (s *Service) Create(ctx context.Context, tenantID, actorID string, spec Spec) (*CreateResult, error) {
	now := s.now()

	live, err := resolve(spec, nil, tenantID, now)
	if err != nil {
		return nil, err
	}
	live.Version = version.Initial

	hist, err := materialize(live, version.Initial, now, actorID)
	if err != nil {
		return nil, err
	}

	entry := VersionEntry{Version: version.Initial, CreatedAt: now, CreatedBy: actorID}
	if err := s.applets.CreateWithHistory(ctx, live, hist, entry); err != nil {
		if errors.Is(err, repository.ErrForeignKeyViolation) || errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, fmt.Errorf("creating applet: %w", err)
	}

	s.logger.Info("applet created",
		"tenant_id", tenantID, "applet_id", live.ID, "version", live.Version,
		"activities", len(live.Activities), "flows", len(live.Flows))

	return &CreateResult{Applet: live, Version: live.Version}, nil
}

// Update diffs the payload against the live graph and, when the diff is
// non-empty, persists the next version. The caller's expectedVersion is
// the optimistic-concurrency token: when it no longer matches the live
// row the update fails with ErrStaleApplet and may be retried once.
//
// Encryption is immutable: a payload carrying a different bundle is
// rejected, an absent bundle means "keep the current one".
func (s *Service) Update(ctx context.Context, tenantID, actorID string, id uuid.UUID, spec Spec, expectedVersion string) (*UpdateResult, error) {
	prev, err := s.getLive(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if expectedVersion != "" && expectedVersion != prev.Version {
		return nil, fmt.Errorf("%w: expected %s, live is %s", ErrStaleApplet, expectedVersion, prev.Version)
	}

	if !spec.Encryption.IsZero() && spec.Encryption != prev.Encryption {
		return nil, ErrEncryptionImmutable
	}
	spec.Encryption = prev.Encryption

	now := s.now()
	next, err := resolve(spec, prev, tenantID, now)
	if err != nil {
		return nil, err
	}

	changes := Diff(prev, next)
	if changes.Empty() {
		s.logger.Debug("update is a no-op", "tenant_id", tenantID, "applet_id", id, "version", prev.Version)
		return &UpdateResult{Version: prev.Version, Unchanged: true}, nil
	}

	newVersion, err := version.Next(prev.Version)
	if err != nil {
		return nil, fmt.Errorf("sequencing version after %q: %w", prev.Version, err)
	}
	next.Version = newVersion
	next.UpdatedAt = now

	hist, err := materialize(next, newVersion, now, actorID)
	if err != nil {
		return nil, err
	}

	entry := VersionEntry{Version: newVersion, CreatedAt: now, CreatedBy: actorID}
	if err := s.applets.UpdateWithHistory(ctx, next, prev.Version, hist, entry); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: %v", ErrStaleApplet, err)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrAppletNotFound, id)
		default:
			return nil, fmt.Errorf("updating applet: %w", err)
		}
	}

	s.logger.Info("applet updated",
		"tenant_id", tenantID, "applet_id", id, "version", newVersion,
		"activity_changes", len(changes.Activities), "flow_changes", len(changes.Flows))

	return &UpdateResult{Version: newVersion, Changes: changes}, nil
}

// GetLive returns the current live graph.
func (s *Service) GetLive(ctx context.Context, tenantID string, id uuid.UUID) (*Applet, error) {
	return s.getLive(ctx, tenantID, id)
}

// GetHistory returns the immutable snapshot at one version.
func (s *Service) GetHistory(ctx context.Context, tenantID string, id uuid.UUID, ver string) (*AppletHistory, error) {
	if !version.IsValid(ver) {
		return nil, fmt.Errorf("%w: %q", version.ErrMalformedIdVersion, ver)
	}
	hist, err := s.histories.Get(ctx, tenantID, id, ver)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s at %s", ErrVersionNotFound, id, ver)
		}
		return nil, fmt.Errorf("getting history: %w", err)
	}
	return hist, nil
}

// ListVersions returns the applet's version log, oldest first.
func (s *Service) ListVersions(ctx context.Context, tenantID string, id uuid.UUID) ([]VersionEntry, error) {
	entries, err := s.histories.ListVersions(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAppletNotFound, id)
	}
	return entries, nil
}

// DiffVersions computes the change record between two historic versions
// using the same engine that gates updates.
func (s *Service) DiffVersions(ctx context.Context, tenantID string, id uuid.UUID, versionA, versionB string) (*ChangeRecord, error) {
	histA, err := s.GetHistory(ctx, tenantID, id, versionA)
	if err != nil {
		return nil, err
	}
	histB, err := s.GetHistory(ctx, tenantID, id, versionB)
	if err != nil {
		return nil, err
	}

	liveA, err := histA.ToLive()
	if err != nil {
		return nil, fmt.Errorf("decoding history %s: %w", versionA, err)
	}
	liveB, err := histB.ToLive()
	if err != nil {
		return nil, fmt.Errorf("decoding history %s: %w", versionB, err)
	}

	return Diff(liveA, liveB), nil
}

func (s *Service) getLive(ctx context.Context, tenantID string, id uuid.UUID) (*Applet, error) {
	live, err := s.applets.GetLive(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAppletNotFound, id)
		}
		return nil, fmt.Errorf("loading applet: %w", err)
	}
	return live, nil
}
