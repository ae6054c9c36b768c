package archive

// SchemaVersion is the current archive schema version.
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    priority TEXT NOT NULL,
    status TEXT NOT NULL,
    attempts INTEGER NOT NULL,
    provider TEXT,
    data TEXT,
    context TEXT,
    result TEXT,
    error TEXT,
    created_at INTEGER NOT NULL,
    started_at INTEGER,
    completed_at INTEGER,
    archived_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_completed_at ON tasks(completed_at);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_type ON tasks(type);
`

const insertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, ?)
ON CONFLICT(version) DO NOTHING;
`

const getSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const upsertTask = `
INSERT INTO tasks (
    id, type, priority, status, attempts, provider,
    data, context, result, error,
    created_at, started_at, completed_at, archived_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    attempts = excluded.attempts,
    result = excluded.result,
    error = excluded.error,
    started_at = excluded.started_at,
    completed_at = excluded.completed_at,
    archived_at = excluded.archived_at;
`

const selectColumns = `
SELECT id, type, priority, status, attempts, provider,
       data, context, result, error,
       created_at, started_at, completed_at
FROM tasks
`
