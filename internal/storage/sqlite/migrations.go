package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Amounts are decimal TEXT so the full uint64 range round-trips.
const schema = `
CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    organizer TEXT NOT NULL,
    total_amount TEXT NOT NULL,
    participant_count INTEGER NOT NULL CHECK (participant_count BETWEEN 1 AND 255),
    collected_amount TEXT NOT NULL,
    paid_participants INTEGER NOT NULL CHECK (paid_participants BETWEEN 0 AND participant_count),
    status TEXT NOT NULL CHECK (status IN ('active', 'completed', 'settled')),
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    settled_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS participants (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    wallet TEXT NOT NULL,
    contributed_amount TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (group_id, seq),
    FOREIGN KEY (group_id) REFERENCES groups(id)
);

CREATE TABLE IF NOT EXISTS settlements (
    group_id TEXT PRIMARY KEY,
    from_slot TEXT NOT NULL,
    to_slot TEXT NOT NULL,
    amount TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (group_id) REFERENCES groups(id)
);

CREATE TABLE IF NOT EXISTS balances (
    slot TEXT PRIMARY KEY,
    amount TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_groups_organizer ON groups(organizer);
CREATE INDEX IF NOT EXISTS idx_participants_group_id ON participants(group_id);
CREATE INDEX IF NOT EXISTS idx_participants_wallet ON participants(wallet);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
