package store

// schemaVersion is recorded in schema_versions the first time a durable
// database is opened.
const schemaVersion = 1

// rawSchema lives in the in-memory database and is re-applied whenever that
// database is recreated.
const rawSchema = `
CREATE TABLE IF NOT EXISTS battery_raw (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp         INTEGER NOT NULL,
    state             TEXT NOT NULL,
    percentage        REAL NOT NULL,
    energy_rate       REAL NOT NULL,
    voltage           REAL NOT NULL,
    cpu_load          REAL NOT NULL,
    screen_brightness REAL NOT NULL,
    state_of_health   REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_battery_raw_ts ON battery_raw(timestamp);
CREATE INDEX IF NOT EXISTS idx_battery_raw_state ON battery_raw(state);
`

const schema = `
CREATE TABLE IF NOT EXISTS schema_versions (
    version    INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);

-- 2s buckets downsampled from battery_raw
CREATE TABLE IF NOT EXISTS battery_realtime (
    timestamp         INTEGER PRIMARY KEY,
    state             TEXT NOT NULL,
    percentage        REAL NOT NULL,
    energy_rate       REAL NOT NULL,
    voltage           REAL NOT NULL,
    cpu_load          REAL NOT NULL,
    screen_brightness REAL NOT NULL,
    state_of_health   REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_battery_realtime_state ON battery_realtime(state);

-- calendar-minute buckets downsampled from battery_realtime
CREATE TABLE IF NOT EXISTS battery_one_minute (
    timestamp         INTEGER PRIMARY KEY,
    state             TEXT NOT NULL,
    percentage        REAL NOT NULL,
    energy_rate       REAL NOT NULL,
    voltage           REAL NOT NULL,
    cpu_load          REAL NOT NULL,
    screen_brightness REAL NOT NULL,
    state_of_health   REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_battery_one_minute_state ON battery_one_minute(state);

-- one row per state interval; end_at IS NULL marks the open interval
CREATE TABLE IF NOT EXISTS battery_history (
    timestamp         INTEGER PRIMARY KEY,
    state             TEXT NOT NULL,
    prev              TEXT,
    end_at            INTEGER,
    capacity          REAL NOT NULL,
    full_capacity     REAL NOT NULL,
    design_capacity   REAL NOT NULL,
    percentage        REAL NOT NULL,
    state_of_health   REAL NOT NULL,
    energy_rate       REAL NOT NULL,
    voltage           REAL NOT NULL,
    cpu_load          REAL NOT NULL,
    screen_brightness REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_battery_history_state ON battery_history(state);
CREATE INDEX IF NOT EXISTS idx_battery_history_prev ON battery_history(prev);
CREATE INDEX IF NOT EXISTS idx_battery_history_end_at ON battery_history(end_at);
`
