package store

// SchemaVersion is the current database schema version
const SchemaVersion = 3

// schema is dialect-neutral; {{ts}}, {{money}}, {{bool}} and {{serial}} are
// expanded per dialect before execution.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'assistant',
    active {{bool}} NOT NULL DEFAULT TRUE,
    oab TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT '',
    last_login_at {{ts}},
    created_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS api_keys (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    key_hash TEXT UNIQUE NOT NULL,
    key_prefix TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    expires_at {{ts}},
    last_used_at {{ts}},
    created_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS auth_events (
    id {{serial}},
    user_id TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    event_type TEXT NOT NULL,
    ip TEXT NOT NULL DEFAULT '',
    created_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS clients (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT 'pf',
    document TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT '',
    address TEXT NOT NULL DEFAULT '',
    city TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    created_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at {{ts}}
);

CREATE TABLE IF NOT EXISTS opportunities (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    client_id TEXT NOT NULL REFERENCES clients(id),
    area TEXT NOT NULL DEFAULT '',
    stage TEXT NOT NULL DEFAULT '',
    process_number TEXT NOT NULL DEFAULT '',
    responsible_id TEXT NOT NULL DEFAULT '',
    value {{money}} NOT NULL DEFAULT 0,
    installments INTEGER NOT NULL DEFAULT 1,
    first_due_date TEXT NOT NULL DEFAULT '',
    payment_method TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'open',
    notes TEXT NOT NULL DEFAULT '',
    created_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at {{ts}}
);

CREATE TABLE IF NOT EXISTS opportunity_installments (
    id TEXT PRIMARY KEY,
    opportunity_id TEXT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
    number INTEGER NOT NULL,
    amount {{money}} NOT NULL,
    due_date TEXT NOT NULL,
    paid_at TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (opportunity_id, number)
);

CREATE TABLE IF NOT EXISTS financial_flows (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    description TEXT NOT NULL,
    amount {{money}} NOT NULL,
    due_date TEXT NOT NULL,
    paid_at TEXT,
    status TEXT NOT NULL DEFAULT 'pendente',
    client_id TEXT,
    opportunity_id TEXT,
    category TEXT NOT NULL DEFAULT '',
    created_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS templates (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '{}',
    created_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS appointments (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT '',
    starts_at {{ts}} NOT NULL,
    ends_at {{ts}} NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    client_id TEXT NOT NULL DEFAULT '',
    opportunity_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'scheduled',
    created_by TEXT NOT NULL DEFAULT '',
    created_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS parameters (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    name_key TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    active {{bool}} NOT NULL DEFAULT TRUE,
    created_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (kind, name_key)
);

CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    slug TEXT UNIQUE NOT NULL,
    body TEXT NOT NULL DEFAULT '',
    html TEXT NOT NULL DEFAULT '',
    excerpt TEXT NOT NULL DEFAULT '',
    published {{bool}} NOT NULL DEFAULT FALSE,
    published_at {{ts}},
    author_id TEXT NOT NULL DEFAULT '',
    created_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at {{ts}} NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id);
CREATE INDEX IF NOT EXISTS idx_auth_events_created ON auth_events(created_at);
`

// dataIndexes cover tables an existing CRM database may already hold with
// its own column names. Each is created only when its column is present.
var dataIndexes = []struct {
	Name, Table, Column string
}{
	{"idx_clients_deleted", "clients", "deleted_at"},
	{"idx_opportunities_client", "opportunities", "client_id"},
	{"idx_installments_due", "opportunity_installments", "due_date"},
	{"idx_flows_due", "financial_flows", "due_date"},
	{"idx_appointments_start", "appointments", "starts_at"},
}

// Migration defines a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add category column to financial_flows",
		SQL: `ALTER TABLE financial_flows ADD COLUMN category TEXT NOT NULL DEFAULT '';
		CREATE INDEX IF NOT EXISTS idx_flows_category ON financial_flows(category);`,
	},
	{
		Version:     3,
		Description: "Add location column to appointments",
		SQL:         `ALTER TABLE appointments ADD COLUMN location TEXT NOT NULL DEFAULT '';`,
	},
}
