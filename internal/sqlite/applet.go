package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindlogger/applet-engine/internal/domain/applet"
	"github.com/mindlogger/applet-engine/internal/repository"
)

// AppletRepository implements applet.Repository for SQLite. Live and
// history writes share one transaction; history rows are only ever
// inserted, live child rows missing from a new graph are tombstoned.
type AppletRepository struct {
	db *DB
}

// NewAppletRepository creates a new AppletRepository
func NewAppletRepository(db *DB) *AppletRepository {
	return &AppletRepository{db: db}
}

// CreateWithHistory inserts the live graph and its initial snapshot in
// one transaction.
func (r *AppletRepository) CreateWithHistory(ctx context.Context, live *applet.Applet, hist *applet.AppletHistory, entry applet.VersionEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertAppletTx(ctx, tx, live); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return err
	}
	if err := upsertChildrenTx(ctx, tx, live); err != nil {
		return err
	}
	if err := insertHistoryTx(ctx, tx, hist); err != nil {
		return err
	}
	if err := insertVersionLogTx(ctx, tx, live.TenantID, live.ID, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit create: %w", err)
	}
	return nil
}

// UpdateWithHistory replaces the live graph conditionally on
// expectedVersion and appends the new snapshot. When the conditional
// write matches no row the whole transaction is rolled back.
func (r *AppletRepository) UpdateWithHistory(ctx context.Context, live *applet.Applet, expectedVersion string, hist *applet.AppletHistory, entry applet.VersionEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	description, err := encodeJSON(live.Description)
	if err != nil {
		return err
	}
	about, err := encodeJSON(live.About)
	if err != nil {
		return err
	}
	encryption, err := encodeJSON(live.Encryption)
	if err != nil {
		return err
	}
	report, err := encodeJSON(live.Report)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE applets
		SET display_name = ?, description = ?, about = ?, image = ?, watermark = ?,
		    encryption = ?, report_settings = ?, version = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND version = ? AND is_deleted = 0
	`,
		live.DisplayName, description, about, live.Image, live.Watermark,
		encryption, report, live.Version, live.UpdatedAt,
		live.ID.String(), live.TenantID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update applet: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		// Distinguish a lost race from a missing applet.
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM applets WHERE id = ? AND tenant_id = ? AND is_deleted = 0`,
			live.ID.String(), live.TenantID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check applet existence: %w", err)
		}
		if exists == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrConflict
	}

	if err := upsertChildrenTx(ctx, tx, live); err != nil {
		return err
	}
	if err := tombstoneMissingTx(ctx, tx, live); err != nil {
		return err
	}
	if err := insertHistoryTx(ctx, tx, hist); err != nil {
		return err
	}
	if err := insertVersionLogTx(ctx, tx, live.TenantID, live.ID, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit update: %w", err)
	}
	return nil
}

// GetLive hydrates the live graph without tombstoned children.
func (r *AppletRepository) GetLive(ctx context.Context, tenantID string, id uuid.UUID) (*applet.Applet, error) {
	var (
		out                                   applet.Applet
		rawID, description, about             string
		encryption, report                    string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, display_name, description, about, image, watermark,
		       encryption, report_settings, version, created_at, updated_at
		FROM applets
		WHERE id = ? AND tenant_id = ? AND is_deleted = 0
	`, id.String(), tenantID).Scan(
		&rawID, &out.TenantID, &out.DisplayName, &description, &about,
		&out.Image, &out.Watermark, &encryption, &report, &out.Version,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get applet: %w", err)
	}

	if out.ID, err = parseUUID(rawID); err != nil {
		return nil, err
	}
	if out.Description, err = decodeText(description); err != nil {
		return nil, err
	}
	if out.About, err = decodeText(about); err != nil {
		return nil, err
	}
	if out.Encryption, err = decodeEncryption(encryption); err != nil {
		return nil, err
	}
	if out.Report, err = decodeReport(report); err != nil {
		return nil, err
	}

	if out.Activities, err = r.loadActivities(ctx, id); err != nil {
		return nil, err
	}
	if out.Flows, err = r.loadFlows(ctx, id); err != nil {
		return nil, err
	}

	return &out, nil
}

func insertAppletTx(ctx context.Context, tx *sql.Tx, live *applet.Applet) error {
	description, err := encodeJSON(live.Description)
	if err != nil {
		return err
	}
	about, err := encodeJSON(live.About)
	if err != nil {
		return err
	}
	encryption, err := encodeJSON(live.Encryption)
	if err != nil {
		return err
	}
	report, err := encodeJSON(live.Report)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO applets (
			id, tenant_id, display_name, description, about, image, watermark,
			encryption, report_settings, version, is_deleted, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`,
		live.ID.String(), live.TenantID, live.DisplayName, description, about,
		live.Image, live.Watermark, encryption, report, live.Version,
		live.CreatedAt, live.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: applet %s", repository.ErrConflict, live.ID)
		}
		return fmt.Errorf("failed to insert applet: %w", err)
	}
	return nil
}

func upsertChildrenTx(ctx context.Context, tx *sql.Tx, live *applet.Applet) error {
	for i := range live.Activities {
		act := &live.Activities[i]
		description, err := encodeJSON(act.Description)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO activities (
				id, applet_id, name, description, is_reviewable, is_hidden,
				auto_assign, is_skippable, show_all_at_once, response_is_editable,
				ord, is_deleted, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				is_reviewable = excluded.is_reviewable,
				is_hidden = excluded.is_hidden,
				auto_assign = excluded.auto_assign,
				is_skippable = excluded.is_skippable,
				show_all_at_once = excluded.show_all_at_once,
				response_is_editable = excluded.response_is_editable,
				ord = excluded.ord,
				is_deleted = 0,
				updated_at = excluded.updated_at
		`,
			act.ID.String(), live.ID.String(), act.Name, description,
			act.IsReviewable, act.IsHidden, act.AutoAssign, act.IsSkippable,
			act.ShowAllAtOnce, act.ResponseIsEditable, act.Order,
			act.CreatedAt, act.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert activity: %w", err)
		}

		for j := range act.Items {
			item := &act.Items[j]
			question, err := encodeJSON(item.Question)
			if err != nil {
				return err
			}
			logic, err := encodeLogic(item.ConditionalLogic)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO activity_items (
					id, activity_id, name, question, response_type, response_values,
					config, conditional_logic, ord, is_deleted, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					question = excluded.question,
					response_type = excluded.response_type,
					response_values = excluded.response_values,
					config = excluded.config,
					conditional_logic = excluded.conditional_logic,
					ord = excluded.ord,
					is_deleted = 0,
					updated_at = excluded.updated_at
			`,
				item.ID.String(), act.ID.String(), item.Name, question,
				string(item.ResponseType), encodeRaw(item.ResponseValues),
				string(item.Config), logic, item.Order,
				item.CreatedAt, item.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert item: %w", err)
			}
		}
	}

	for i := range live.Flows {
		flow := &live.Flows[i]
		description, err := encodeJSON(flow.Description)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO flows (
				id, applet_id, name, description, is_single_report, hide_badge,
				report_included_activity_name, report_included_item_name,
				ord, is_deleted, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				is_single_report = excluded.is_single_report,
				hide_badge = excluded.hide_badge,
				report_included_activity_name = excluded.report_included_activity_name,
				report_included_item_name = excluded.report_included_item_name,
				ord = excluded.ord,
				is_deleted = 0,
				updated_at = excluded.updated_at
		`,
			flow.ID.String(), live.ID.String(), flow.Name, description,
			flow.IsSingleReport, flow.HideBadge,
			flow.ReportIncludedActivityName, flow.ReportIncludedItemName,
			flow.Order, flow.CreatedAt, flow.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert flow: %w", err)
		}

		for j := range flow.Items {
			fi := &flow.Items[j]
			_, err := tx.ExecContext(ctx, `
				INSERT INTO flow_items (
					id, flow_id, activity_id, ord, is_deleted, created_at, updated_at
				) VALUES (?, ?, ?, ?, 0, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					activity_id = excluded.activity_id,
					ord = excluded.ord,
					is_deleted = 0,
					updated_at = excluded.updated_at
			`,
				fi.ID.String(), flow.ID.String(), fi.ActivityID.String(),
				fi.Order, fi.CreatedAt, fi.UpdatedAt,
			)
			if err != nil {
				if isForeignKeyViolation(err) {
					return repository.ErrForeignKeyViolation
				}
				return fmt.Errorf("failed to upsert flow item: %w", err)
			}
		}
	}

	return nil
}

// tombstoneMissingTx soft-deletes live children that the new graph no
// longer carries. Rows are never removed: history references their
// UUIDs forever.
func tombstoneMissingTx(ctx context.Context, tx *sql.Tx, live *applet.Applet) error {
	now := time.Now()

	var activityIDs, itemIDs, flowIDs, flowItemIDs []string
	for _, act := range live.Activities {
		activityIDs = append(activityIDs, act.ID.String())
		for _, item := range act.Items {
			itemIDs = append(itemIDs, item.ID.String())
		}
	}
	for _, flow := range live.Flows {
		flowIDs = append(flowIDs, flow.ID.String())
		for _, fi := range flow.Items {
			flowItemIDs = append(flowItemIDs, fi.ID.String())
		}
	}

	appletID := live.ID.String()

	if err := execNotIn(ctx, tx,
		`UPDATE activities SET is_deleted = 1, updated_at = ? WHERE applet_id = ?`,
		[]any{now, appletID}, activityIDs); err != nil {
		return fmt.Errorf("failed to tombstone activities: %w", err)
	}
	if err := execNotIn(ctx, tx,
		`UPDATE activity_items SET is_deleted = 1, updated_at = ?
		 WHERE activity_id IN (SELECT id FROM activities WHERE applet_id = ?)`,
		[]any{now, appletID}, itemIDs); err != nil {
		return fmt.Errorf("failed to tombstone items: %w", err)
	}
	if err := execNotIn(ctx, tx,
		`UPDATE flows SET is_deleted = 1, updated_at = ? WHERE applet_id = ?`,
		[]any{now, appletID}, flowIDs); err != nil {
		return fmt.Errorf("failed to tombstone flows: %w", err)
	}
	if err := execNotIn(ctx, tx,
		`UPDATE flow_items SET is_deleted = 1, updated_at = ?
		 WHERE flow_id IN (SELECT id FROM flows WHERE applet_id = ?)`,
		[]any{now, appletID}, flowItemIDs); err != nil {
		return fmt.Errorf("failed to tombstone flow items: %w", err)
	}

	return nil
}

// execNotIn appends "AND id NOT IN (...)" with the kept ids to base.
func execNotIn(ctx context.Context, tx *sql.Tx, base string, args []any, keptIDs []string) error {
	query := base
	if len(keptIDs) > 0 {
		placeholders := strings.Repeat("?,", len(keptIDs))
		query += " AND id NOT IN (" + placeholders[:len(placeholders)-1] + ")"
		for _, id := range keptIDs {
			args = append(args, id)
		}
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func insertVersionLogTx(ctx context.Context, tx *sql.Tx, tenantID string, appletID uuid.UUID, entry applet.VersionEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO version_log (tenant_id, applet_id, version, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, tenantID, appletID.String(), entry.Version, entry.CreatedBy, entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: version %s already logged", repository.ErrConflict, entry.Version)
		}
		return fmt.Errorf("failed to insert version log: %w", err)
	}
	return nil
}

func (r *AppletRepository) loadActivities(ctx context.Context, appletID uuid.UUID) ([]applet.Activity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, applet_id, name, description, is_reviewable, is_hidden,
		       auto_assign, is_skippable, show_all_at_once, response_is_editable,
		       ord, created_at, updated_at
		FROM activities
		WHERE applet_id = ? AND is_deleted = 0
		ORDER BY ord
	`, appletID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}
	defer rows.Close()

	var activities []applet.Activity
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			act                applet.Activity
			rawID, rawAppletID string
			description        string
		)
		if err := rows.Scan(
			&rawID, &rawAppletID, &act.Name, &description,
			&act.IsReviewable, &act.IsHidden, &act.AutoAssign, &act.IsSkippable,
			&act.ShowAllAtOnce, &act.ResponseIsEditable,
			&act.Order, &act.CreatedAt, &act.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if act.ID, err = parseUUID(rawID); err != nil {
			return nil, err
		}
		if act.AppletID, err = parseUUID(rawAppletID); err != nil {
			return nil, err
		}
		if act.Description, err = decodeText(description); err != nil {
			return nil, err
		}
		index[act.ID] = len(activities)
		activities = append(activities, act)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activities: %w", err)
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.activity_id, i.name, i.question, i.response_type,
		       i.response_values, i.config, i.conditional_logic, i.ord,
		       i.created_at, i.updated_at
		FROM activity_items i
		JOIN activities a ON a.id = i.activity_id
		WHERE a.applet_id = ? AND a.is_deleted = 0 AND i.is_deleted = 0
		ORDER BY i.ord
	`, appletID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			item                  applet.Item
			rawID, rawActivityID  string
			question, config      string
			responseType          string
			values, logic         sql.NullString
		)
		if err := itemRows.Scan(
			&rawID, &rawActivityID, &item.Name, &question, &responseType,
			&values, &config, &logic, &item.Order,
			&item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if item.ID, err = parseUUID(rawID); err != nil {
			return nil, err
		}
		if item.ActivityID, err = parseUUID(rawActivityID); err != nil {
			return nil, err
		}
		if item.Question, err = decodeText(question); err != nil {
			return nil, err
		}
		item.ResponseType = applet.ResponseType(responseType)
		item.ResponseValues = decodeRaw(values)
		item.Config = []byte(config)
		if item.ConditionalLogic, err = decodeLogic(logic); err != nil {
			return nil, err
		}

		pos, ok := index[item.ActivityID]
		if !ok {
			continue
		}
		activities[pos].Items = append(activities[pos].Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}

	return activities, nil
}

func (r *AppletRepository) loadFlows(ctx context.Context, appletID uuid.UUID) ([]applet.Flow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, applet_id, name, description, is_single_report, hide_badge,
		       report_included_activity_name, report_included_item_name,
		       ord, created_at, updated_at
		FROM flows
		WHERE applet_id = ? AND is_deleted = 0
		ORDER BY ord
	`, appletID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load flows: %w", err)
	}
	defer rows.Close()

	var flows []applet.Flow
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			flow               applet.Flow
			rawID, rawAppletID string
			description        string
		)
		if err := rows.Scan(
			&rawID, &rawAppletID, &flow.Name, &description,
			&flow.IsSingleReport, &flow.HideBadge,
			&flow.ReportIncludedActivityName, &flow.ReportIncludedItemName,
			&flow.Order, &flow.CreatedAt, &flow.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		if flow.ID, err = parseUUID(rawID); err != nil {
			return nil, err
		}
		if flow.AppletID, err = parseUUID(rawAppletID); err != nil {
			return nil, err
		}
		if flow.Description, err = decodeText(description); err != nil {
			return nil, err
		}
		index[flow.ID] = len(flows)
		flows = append(flows, flow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flows: %w", err)
	}

	fiRows, err := r.db.QueryContext(ctx, `
		SELECT fi.id, fi.flow_id, fi.activity_id, fi.ord, fi.created_at, fi.updated_at
		FROM flow_items fi
		JOIN flows f ON f.id = fi.flow_id
		WHERE f.applet_id = ? AND f.is_deleted = 0 AND fi.is_deleted = 0
		ORDER BY fi.ord
	`, appletID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load flow items: %w", err)
	}
	defer fiRows.Close()

	for fiRows.Next() {
		var (
			fi                               applet.FlowItem
			rawID, rawFlowID, rawActivityID string
		)
		if err := fiRows.Scan(&rawID, &rawFlowID, &rawActivityID, &fi.Order, &fi.CreatedAt, &fi.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flow item: %w", err)
		}
		if fi.ID, err = parseUUID(rawID); err != nil {
			return nil, err
		}
		if fi.FlowID, err = parseUUID(rawFlowID); err != nil {
			return nil, err
		}
		if fi.ActivityID, err = parseUUID(rawActivityID); err != nil {
			return nil, err
		}

		pos, ok := index[fi.FlowID]
		if !ok {
			continue
		}
		flows[pos].Items = append(flows[pos].Items, fi)
	}
	if err := fiRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flow items: %w", err)
	}

	return flows, nil
}
