package db

// Schema defines the SQLite database schema.
// images tracks materialized downloads in the local cache; flashes keeps one row per
// flash attempt for the history command.
const Schema = `
CREATE TABLE IF NOT EXISTS images (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    local_path TEXT,
    digest TEXT,
    size INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL CHECK(status IN ('pending', 'downloading', 'ready', 'failed')),
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_images_url ON images(url);
CREATE INDEX IF NOT EXISTS idx_images_status ON images(status);

CREATE TABLE IF NOT EXISTS flashes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,
    image_name TEXT NOT NULL,
    image_location TEXT NOT NULL,
    device TEXT NOT NULL,
    device_label TEXT,
    bytes_total INTEGER NOT NULL,
    bytes_written INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL CHECK(status IN ('success', 'failed', 'declined')),
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_flashes_created_at ON flashes(created_at);
`

// Image status constants
const (
	StatusPending     = "pending"
	StatusDownloading = "downloading"
	StatusReady       = "ready"
	StatusFailed      = "failed"
)

// Flash status constants
const (
	FlashSuccess  = "success"
	FlashFailed   = "failed"
	FlashDeclined = "declined"
)

// Image represents a cached download
type Image struct {
	ID           int64
	URL          string
	Name         string
	LocalPath    string
	Digest       string
	Size         int64
	Status       string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}

// Flash represents one flash attempt. BytesTotal is -1 when the source size was unknown.
type Flash struct {
	ID            int64
	RunID         string
	ImageName     string
	ImageLocation string
	Device        string
	DeviceLabel   string
	BytesTotal    int64
	BytesWritten  int64
	Status        string
	ErrorMessage  string
	CreatedAt     string
}
