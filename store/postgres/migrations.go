package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Steward store (PostgreSQL).
var Migrations = migrate.NewGroup("steward")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_users",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_users (
    id                TEXT PRIMARY KEY,
    full_name         TEXT NOT NULL,
    email             TEXT NOT NULL DEFAULT '',
    is_registered     BOOLEAN NOT NULL DEFAULT FALSE,
    is_superuser      BOOLEAN NOT NULL DEFAULT FALSE,
    is_disabled       BOOLEAN NOT NULL DEFAULT FALSE,
    merged_by         TEXT,
    external_accounts JSONB NOT NULL DEFAULT '[]',
    affiliations      JSONB NOT NULL DEFAULT '[]',
    mailing_lists     JSONB NOT NULL DEFAULT '[]',
    unclaimed         JSONB NOT NULL DEFAULT '[]',
    deleted_at        TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_steward_users_email ON steward_users (LOWER(email));
CREATE INDEX IF NOT EXISTS idx_steward_users_merged ON steward_users (merged_by);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_users`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_groups",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_groups (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    creator_id  TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_steward_groups_creator ON steward_groups (creator_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_groups`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_group_memberships",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_group_memberships (
    group_id    TEXT NOT NULL REFERENCES steward_groups(id) ON DELETE CASCADE,
    user_id     TEXT NOT NULL REFERENCES steward_users(id) ON DELETE CASCADE,
    role        TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),

    PRIMARY KEY (group_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_steward_memberships_user ON steward_group_memberships (user_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_group_memberships`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_nodes",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_nodes (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    kind        TEXT NOT NULL,
    creator_id  TEXT NOT NULL,
    parent_id   TEXT REFERENCES steward_nodes(id),
    is_deleted  BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at  TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_steward_nodes_parent ON steward_nodes (parent_id);
CREATE INDEX IF NOT EXISTS idx_steward_nodes_creator ON steward_nodes (creator_id);
CREATE INDEX IF NOT EXISTS idx_steward_nodes_kind ON steward_nodes (kind);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_nodes`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_contributors",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_contributors (
    node_id     TEXT NOT NULL REFERENCES steward_nodes(id) ON DELETE CASCADE,
    user_id     TEXT NOT NULL REFERENCES steward_users(id) ON DELETE CASCADE,
    level       TEXT NOT NULL,
    visible     BOOLEAN NOT NULL DEFAULT TRUE,
    ordering    INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),

    PRIMARY KEY (node_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_steward_contributors_user ON steward_contributors (user_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_contributors`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_group_grants",
			Version: "20240101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_group_grants (
    node_id     TEXT NOT NULL REFERENCES steward_nodes(id) ON DELETE CASCADE,
    group_id    TEXT NOT NULL REFERENCES steward_groups(id) ON DELETE CASCADE,
    level       TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),

    PRIMARY KEY (node_id, group_id)
);

CREATE INDEX IF NOT EXISTS idx_steward_group_grants_group ON steward_group_grants (group_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_group_grants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_action_log",
			Version: "20240101000007",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_action_log (
    id          TEXT PRIMARY KEY,
    action      TEXT NOT NULL,
    actor_id    TEXT NOT NULL DEFAULT '',
    group_id    TEXT NOT NULL DEFAULT '',
    node_id     TEXT NOT NULL DEFAULT '',
    target_id   TEXT NOT NULL DEFAULT '',
    params      JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_steward_action_log_created ON steward_action_log (created_at);
CREATE INDEX IF NOT EXISTS idx_steward_action_log_actor ON steward_action_log (actor_id);
CREATE INDEX IF NOT EXISTS idx_steward_action_log_node ON steward_action_log (node_id);
CREATE INDEX IF NOT EXISTS idx_steward_action_log_group ON steward_action_log (group_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_action_log`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_throttle_records",
			Version: "20240101000008",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_throttle_records (
    key           TEXT PRIMARY KEY,
    last_sent_at  TIMESTAMPTZ NOT NULL
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_throttle_records`)
				return err
			},
		},
	)
}
