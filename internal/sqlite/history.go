package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mindlogger/applet-engine/internal/domain/applet"
	"github.com/mindlogger/applet-engine/internal/repository"
)

// HistoryRepository implements applet.HistoryRepository. Snapshots are
// written through insertHistoryTx inside the live write transaction;
// this type only reads them back.
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new HistoryRepository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// insertHistoryTx appends a full snapshot. History rows are immutable:
// a duplicate id_version surfaces as a conflict, never an overwrite.
func insertHistoryTx(ctx context.Context, tx *sql.Tx, hist *applet.AppletHistory) error {
	description, err := encodeJSON(hist.Description)
	if err != nil {
		return err
	}
	about, err := encodeJSON(hist.About)
	if err != nil {
		return err
	}
	encryption, err := encodeJSON(hist.Encryption)
	if err != nil {
		return err
	}
	report, err := encodeJSON(hist.Report)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO applet_histories (
			id_version, id, version, tenant_id, display_name, description, about,
			image, watermark, encryption, report_settings, created_at, created_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		hist.IDVersion, hist.ID.String(), hist.Version, hist.TenantID,
		hist.DisplayName, description, about, hist.Image, hist.Watermark,
		encryption, report, hist.CreatedAt, hist.CreatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: snapshot %s", repository.ErrConflict, hist.IDVersion)
		}
		return fmt.Errorf("failed to insert applet history: %w", err)
	}

	for i := range hist.Activities {
		ah := &hist.Activities[i]
		description, err := encodeJSON(ah.Description)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO activity_histories (
				id_version, id, applet_id_version, name, description,
				is_reviewable, is_hidden, auto_assign, is_skippable,
				show_all_at_once, response_is_editable, ord, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			ah.IDVersion, ah.ID.String(), ah.AppletIDVersion, ah.Name, description,
			ah.IsReviewable, ah.IsHidden, ah.AutoAssign, ah.IsSkippable,
			ah.ShowAllAtOnce, ah.ResponseIsEditable, ah.Order, ah.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert activity history: %w", err)
		}

		for j := range ah.Items {
			ih := &ah.Items[j]
			question, err := encodeJSON(ih.Question)
			if err != nil {
				return err
			}
			logic, err := encodeHistoryLogic(ih.ConditionalLogic)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO activity_item_histories (
					id_version, id, activity_id_version, name, question,
					response_type, response_values, config, conditional_logic,
					ord, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				ih.IDVersion, ih.ID.String(), ih.ActivityIDVersion, ih.Name,
				question, string(ih.ResponseType), encodeRaw(ih.ResponseValues),
				string(ih.Config), logic, ih.Order, ih.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert item history: %w", err)
			}
		}
	}

	for i := range hist.Flows {
		fh := &hist.Flows[i]
		description, err := encodeJSON(fh.Description)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO flow_histories (
				id_version, id, applet_id_version, name, description,
				is_single_report, hide_badge, report_included_activity_name,
				report_included_item_name, ord, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			fh.IDVersion, fh.ID.String(), fh.AppletIDVersion, fh.Name, description,
			fh.IsSingleReport, fh.HideBadge, fh.ReportIncludedActivityName,
			fh.ReportIncludedItemName, fh.Order, fh.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert flow history: %w", err)
		}

		for j := range fh.Items {
			fih := &fh.Items[j]
			_, err := tx.ExecContext(ctx, `
				INSERT INTO flow_item_histories (
					id_version, id, flow_id_version, activity_id_version, ord, created_at
				) VALUES (?, ?, ?, ?, ?, ?)
			`,
				fih.IDVersion, fih.ID.String(), fih.FlowIDVersion,
				fih.ActivityIDVersion, fih.Order, fih.CreatedAt,
			)
			if err != nil {
				if isForeignKeyViolation(err) {
					return repository.ErrForeignKeyViolation
				}
				return fmt.Errorf("failed to insert flow item history: %w", err)
			}
		}
	}

	return nil
}

// Get returns the snapshot of applet id at the given version.
func (r *HistoryRepository) Get(ctx context.Context, tenantID string, id uuid.UUID, ver string) (*applet.AppletHistory, error) {
	var (
		hist               applet.AppletHistory
		rawID              string
		description, about string
		encryption, report string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id_version, id, version, tenant_id, display_name, description,
		       about, image, watermark, encryption, report_settings,
		       created_at, created_by
		FROM applet_histories
		WHERE id = ? AND version = ? AND tenant_id = ?
	`, id.String(), ver, tenantID).Scan(
		&hist.IDVersion, &rawID, &hist.Version, &hist.TenantID,
		&hist.DisplayName, &description, &about, &hist.Image, &hist.Watermark,
		&encryption, &report, &hist.CreatedAt, &hist.CreatedBy,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get applet history: %w", err)
	}

	if hist.ID, err = parseUUID(rawID); err != nil {
		return nil, err
	}
	if hist.Description, err = decodeText(description); err != nil {
		return nil, err
	}
	if hist.About, err = decodeText(about); err != nil {
		return nil, err
	}
	if hist.Encryption, err = decodeEncryption(encryption); err != nil {
		return nil, err
	}
	if hist.Report, err = decodeReport(report); err != nil {
		return nil, err
	}

	if hist.Activities, err = r.loadActivityHistories(ctx, hist.IDVersion); err != nil {
		return nil, err
	}
	if hist.Flows, err = r.loadFlowHistories(ctx, hist.IDVersion); err != nil {
		return nil, err
	}

	return &hist, nil
}

// ListVersions returns the applet's version log in append order.
func (r *HistoryRepository) ListVersions(ctx context.Context, tenantID string, id uuid.UUID) ([]applet.VersionEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT version, created_by, created_at
		FROM version_log
		WHERE applet_id = ? AND tenant_id = ?
		ORDER BY id
	`, id.String(), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var entries []applet.VersionEntry
	for rows.Next() {
		var entry applet.VersionEntry
		if err := rows.Scan(&entry.Version, &entry.CreatedBy, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate versions: %w", err)
	}

	return entries, nil
}

func (r *HistoryRepository) loadActivityHistories(ctx context.Context, appletIDVersion string) ([]applet.ActivityHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id_version, id, applet_id_version, name, description,
		       is_reviewable, is_hidden, auto_assign, is_skippable,
		       show_all_at_once, response_is_editable, ord, created_at
		FROM activity_histories
		WHERE applet_id_version = ?
		ORDER BY ord
	`, appletIDVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity histories: %w", err)
	}
	defer rows.Close()

	var activities []applet.ActivityHistory
	index := make(map[string]int)
	for rows.Next() {
		var (
			ah          applet.ActivityHistory
			rawID       string
			description string
		)
		if err := rows.Scan(
			&ah.IDVersion, &rawID, &ah.AppletIDVersion, &ah.Name, &description,
			&ah.IsReviewable, &ah.IsHidden, &ah.AutoAssign, &ah.IsSkippable,
			&ah.ShowAllAtOnce, &ah.ResponseIsEditable, &ah.Order, &ah.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity history: %w", err)
		}
		if ah.ID, err = parseUUID(rawID); err != nil {
			return nil, err
		}
		if ah.Description, err = decodeText(description); err != nil {
			return nil, err
		}
		index[ah.IDVersion] = len(activities)
		activities = append(activities, ah)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity histories: %w", err)
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT i.id_version, i.id, i.activity_id_version, i.name, i.question,
		       i.response_type, i.response_values, i.config, i.conditional_logic,
		       i.ord, i.created_at
		FROM activity_item_histories i
		JOIN activity_histories a ON a.id_version = i.activity_id_version
		WHERE a.applet_id_version = ?
		ORDER BY i.ord
	`, appletIDVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load item histories: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			ih               applet.ItemHistory
			rawID            string
			question, config string
			responseType     string
			values, logic    sql.NullString
		)
		if err := itemRows.Scan(
			&ih.IDVersion, &rawID, &ih.ActivityIDVersion, &ih.Name, &question,
			&responseType, &values, &config, &logic, &ih.Order, &ih.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item history: %w", err)
		}
		if ih.ID, err = parseUUID(rawID); err != nil {
			return nil, err
		}
		if ih.Question, err = decodeText(question); err != nil {
			return nil, err
		}
		ih.ResponseType = applet.ResponseType(responseType)
		ih.ResponseValues = decodeRaw(values)
		ih.Config = []byte(config)
		if ih.ConditionalLogic, err = decodeHistoryLogic(logic); err != nil {
			return nil, err
		}

		pos, ok := index[ih.ActivityIDVersion]
		if !ok {
			continue
		}
		activities[pos].Items = append(activities[pos].Items, ih)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate item histories: %w", err)
	}

	return activities, nil
}

func (r *HistoryRepository) loadFlowHistories(ctx context.Context, appletIDVersion string) ([]applet.FlowHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id_version, id, applet_id_version, name, description,
		       is_single_report, hide_badge, report_included_activity_name,
		       report_included_item_name, ord, created_at
		FROM flow_histories
		WHERE applet_id_version = ?
		ORDER BY ord
	`, appletIDVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow histories: %w", err)
	}
	defer rows.Close()

	var flows []applet.FlowHistory
	index := make(map[string]int)
	for rows.Next() {
		var (
			fh          applet.FlowHistory
			rawID       string
			description string
		)
		if err := rows.Scan(
			&fh.IDVersion, &rawID, &fh.AppletIDVersion, &fh.Name, &description,
			&fh.IsSingleReport, &fh.HideBadge, &fh.ReportIncludedActivityName,
			&fh.ReportIncludedItemName, &fh.Order, &fh.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan flow history: %w", err)
		}
		if fh.ID, err = parseUUID(rawID); err != nil {
			return nil, err
		}
		if fh.Description, err = decodeText(description); err != nil {
			return nil, err
		}
		index[fh.IDVersion] = len(flows)
		flows = append(flows, fh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flow histories: %w", err)
	}

	fiRows, err := r.db.QueryContext(ctx, `
		SELECT fi.id_version, fi.id, fi.flow_id_version, fi.activity_id_version,
		       fi.ord, fi.created_at
		FROM flow_item_histories fi
		JOIN flow_histories f ON f.id_version = fi.flow_id_version
		WHERE f.applet_id_version = ?
		ORDER BY fi.ord
	`, appletIDVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow item histories: %w", err)
	}
	defer fiRows.Close()

	for fiRows.Next() {
		var (
			fih   applet.FlowItemHistory
			rawID string
		)
		if err := fiRows.Scan(&fih.IDVersion, &rawID, &fih.FlowIDVersion, &fih.ActivityIDVersion, &fih.Order, &fih.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flow item history: %w", err)
		}
		if fih.ID, err = parseUUID(rawID); err != nil {
			return nil, err
		}

		pos, ok := index[fih.FlowIDVersion]
		if !ok {
			continue
		}
		flows[pos].Items = append(flows[pos].Items, fih)
	}
	if err := fiRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flow item histories: %w", err)
	}

	return flows, nil
}
