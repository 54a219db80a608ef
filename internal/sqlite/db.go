package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

// RunMigrations creates the schema. Live tables are mutable and
// soft-deleted; *_histories tables are append-only and addressed by
// id_version. History foreign keys point at other history rows of the
// same version, never at live rows.
func (db *DB) RunMigrations() error {
	migration := `
-- Live applets
CREATE TABLE applets (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    display_name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '{}',
    about TEXT NOT NULL DEFAULT '{}',
    image TEXT NOT NULL DEFAULT '',
    watermark TEXT NOT NULL DEFAULT '',
    encryption TEXT NOT NULL,
    report_settings TEXT NOT NULL DEFAULT '{}',
    version TEXT NOT NULL,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX idx_tenant_applets ON applets(tenant_id);

-- Live activities
CREATE TABLE activities (
    id TEXT PRIMARY KEY,
    applet_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '{}',
    is_reviewable INTEGER NOT NULL DEFAULT 0,
    is_hidden INTEGER NOT NULL DEFAULT 0,
    auto_assign INTEGER NOT NULL DEFAULT 0,
    is_skippable INTEGER NOT NULL DEFAULT 0,
    show_all_at_once INTEGER NOT NULL DEFAULT 0,
    response_is_editable INTEGER NOT NULL DEFAULT 0,
    ord INTEGER NOT NULL,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    FOREIGN KEY (applet_id) REFERENCES applets(id)
);
CREATE INDEX idx_applet_activities ON activities(applet_id);

-- Live activity items
CREATE TABLE activity_items (
    id TEXT PRIMARY KEY,
    activity_id TEXT NOT NULL,
    name TEXT NOT NULL,
    question TEXT NOT NULL DEFAULT '{}',
    response_type TEXT NOT NULL,
    response_values TEXT,
    config TEXT NOT NULL,
    conditional_logic TEXT,
    ord INTEGER NOT NULL,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    FOREIGN KEY (activity_id) REFERENCES activities(id)
);
CREATE INDEX idx_activity_items ON activity_items(activity_id);

-- Live flows
CREATE TABLE flows (
    id TEXT PRIMARY KEY,
    applet_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '{}',
    is_single_report INTEGER NOT NULL DEFAULT 0,
    hide_badge INTEGER NOT NULL DEFAULT 0,
    report_included_activity_name TEXT NOT NULL DEFAULT '',
    report_included_item_name TEXT NOT NULL DEFAULT '',
    ord INTEGER NOT NULL,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    FOREIGN KEY (applet_id) REFERENCES applets(id)
);
CREATE INDEX idx_applet_flows ON flows(applet_id);

-- Live flow items. The activity reference survives tombstoning of the
-- target activity.
CREATE TABLE flow_items (
    id TEXT PRIMARY KEY,
    flow_id TEXT NOT NULL,
    activity_id TEXT NOT NULL,
    ord INTEGER NOT NULL,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    FOREIGN KEY (flow_id) REFERENCES flows(id),
    FOREIGN KEY (activity_id) REFERENCES activities(id)
);
CREATE INDEX idx_flow_items ON flow_items(flow_id);

-- History snapshots (append-only)
CREATE TABLE applet_histories (
    id_version TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    version TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    display_name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '{}',
    about TEXT NOT NULL DEFAULT '{}',
    image TEXT NOT NULL DEFAULT '',
    watermark TEXT NOT NULL DEFAULT '',
    encryption TEXT NOT NULL,
    report_settings TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP NOT NULL,
    created_by TEXT NOT NULL DEFAULT '',
    UNIQUE (id, version)
);
CREATE INDEX idx_applet_history_id ON applet_histories(id);

CREATE TABLE activity_histories (
    id_version TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    applet_id_version TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '{}',
    is_reviewable INTEGER NOT NULL DEFAULT 0,
    is_hidden INTEGER NOT NULL DEFAULT 0,
    auto_assign INTEGER NOT NULL DEFAULT 0,
    is_skippable INTEGER NOT NULL DEFAULT 0,
    show_all_at_once INTEGER NOT NULL DEFAULT 0,
    response_is_editable INTEGER NOT NULL DEFAULT 0,
    ord INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (applet_id_version) REFERENCES applet_histories(id_version)
);
CREATE INDEX idx_activity_history_applet ON activity_histories(applet_id_version);

CREATE TABLE activity_item_histories (
    id_version TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    activity_id_version TEXT NOT NULL,
    name TEXT NOT NULL,
    question TEXT NOT NULL DEFAULT '{}',
    response_type TEXT NOT NULL,
    response_values TEXT,
    config TEXT NOT NULL,
    conditional_logic TEXT,
    ord INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (activity_id_version) REFERENCES activity_histories(id_version)
);
CREATE INDEX idx_item_history_activity ON activity_item_histories(activity_id_version);

CREATE TABLE flow_histories (
    id_version TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    applet_id_version TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '{}',
    is_single_report INTEGER NOT NULL DEFAULT 0,
    hide_badge INTEGER NOT NULL DEFAULT 0,
    report_included_activity_name TEXT NOT NULL DEFAULT '',
    report_included_item_name TEXT NOT NULL DEFAULT '',
    ord INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (applet_id_version) REFERENCES applet_histories(id_version)
);
CREATE INDEX idx_flow_history_applet ON flow_histories(applet_id_version);

CREATE TABLE flow_item_histories (
    id_version TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    flow_id_version TEXT NOT NULL,
    activity_id_version TEXT NOT NULL,
    ord INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (flow_id_version) REFERENCES flow_histories(id_version),
    FOREIGN KEY (activity_id_version) REFERENCES activity_histories(id_version)
);
CREATE INDEX idx_flow_item_history_flow ON flow_item_histories(flow_id_version);

-- Version log backing list_versions
CREATE TABLE version_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    applet_id TEXT NOT NULL,
    version TEXT NOT NULL,
    created_by TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    UNIQUE (applet_id, version)
);
CREATE INDEX idx_version_log_applet ON version_log(applet_id);

-- API keys for authentication
CREATE TABLE api_keys (
    key_hash TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_used TIMESTAMP,
    description TEXT
);
CREATE INDEX idx_tenant_keys ON api_keys(tenant_id);
`

	_, err := db.Exec(migration)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
