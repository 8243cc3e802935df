package store

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    image TEXT NOT NULL,
    architecture TEXT NOT NULL,
    digest TEXT,
    created_at TEXT NOT NULL,
    package_count INTEGER NOT NULL,
    python_count INTEGER NOT NULL,
    binary_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_packages (
    snapshot_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    package_type TEXT NOT NULL,
    version TEXT NOT NULL,
    license TEXT,
    record TEXT NOT NULL,
    PRIMARY KEY (snapshot_id, name, package_type),
    FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_snapshots_image ON snapshots(image, architecture);
CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at);
CREATE INDEX IF NOT EXISTS idx_snapshot_packages_name ON snapshot_packages(name);
`
