package cache

// schemaVersion is stored in PRAGMA user_version. Older databases are
// dropped and recreated; the cache holds nothing that cannot be refetched.
const schemaVersion = 2

const schema = `
CREATE TABLE IF NOT EXISTS resolutions (
    package TEXT NOT NULL,
    descriptor TEXT NOT NULL,
    channel TEXT NOT NULL DEFAULT '',
    commit_ref TEXT NOT NULL DEFAULT '',
    version TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL,
    resolved_at TEXT NOT NULL,
    fetched_at TEXT NOT NULL,
    ttl_ms INTEGER NOT NULL,
    PRIMARY KEY (package, descriptor)
);

CREATE INDEX IF NOT EXISTS idx_resolutions_package ON resolutions(package);
`
