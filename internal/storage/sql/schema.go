package sql

// schemas 各方言的建表语句。
var schemas = map[string][]string{
	DriverPostgres: postgresSchema,
	DriverPgx:      postgresSchema,
	DriverMySQL:    mysqlSchema,
	DriverSQLite:   sqliteSchema,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS inboxes (
	id VARCHAR(36) PRIMARY KEY,
	email_address VARCHAR(255) NOT NULL UNIQUE,
	created_at BIGINT NOT NULL,
	expires_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_inboxes_expires_at ON inboxes (expires_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	inbox_id VARCHAR(36) NOT NULL,
	sender TEXT NOT NULL DEFAULT '',
	recipient VARCHAR(320) NOT NULL DEFAULT '',
	subject TEXT NOT NULL,
	body TEXT NOT NULL,
	received_at BIGINT NOT NULL,
	code VARCHAR(32) NOT NULL DEFAULT '',
	code_expires_at BIGINT NULL,
	deleted BOOLEAN NOT NULL DEFAULT FALSE
)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_inbox_id ON messages (inbox_id, received_at)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS inboxes (
	id VARCHAR(36) PRIMARY KEY,
	email_address VARCHAR(255) NOT NULL,
	created_at BIGINT NOT NULL,
	expires_at BIGINT NOT NULL,
	UNIQUE KEY uk_inboxes_email_address (email_address),
	KEY idx_inboxes_expires_at (expires_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS messages (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	inbox_id VARCHAR(36) NOT NULL,
	sender TEXT NOT NULL,
	recipient VARCHAR(320) NOT NULL DEFAULT '',
	subject TEXT NOT NULL,
	body MEDIUMTEXT NOT NULL,
	received_at BIGINT NOT NULL,
	code VARCHAR(32) NOT NULL DEFAULT '',
	code_expires_at BIGINT NULL,
	deleted TINYINT(1) NOT NULL DEFAULT 0,
	KEY idx_messages_inbox_id (inbox_id, received_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS inboxes (
	id TEXT PRIMARY KEY,
	email_address TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_inboxes_expires_at ON inboxes (expires_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	inbox_id TEXT NOT NULL,
	sender TEXT NOT NULL DEFAULT '',
	recipient TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL,
	body TEXT NOT NULL,
	received_at INTEGER NOT NULL,
	code TEXT NOT NULL DEFAULT '',
	code_expires_at INTEGER NULL,
	deleted INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_inbox_id ON messages (inbox_id, received_at)`,
}
