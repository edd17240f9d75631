package store

import (
	"fmt"
	"strings"
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type dialect struct {
	name   string
	schema []string
}

var sqliteDialect = dialect{
	name: DriverSQLite,
	schema: []string{
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS segments (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			training_days INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS training_classes (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			segment_id TEXT,
			name TEXT NOT NULL,
			start_date TEXT NOT NULL,
			end_date TEXT,
			medical_exam_date TEXT,
			contract_signature_date TEXT,
			assisted_service_date TEXT,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_classes_tenant ON training_classes(tenant_id, start_date)`,
		`CREATE TABLE IF NOT EXISTS chat_exchanges (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			user_text TEXT NOT NULL,
			assistant_text TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_owner ON chat_exchanges(owner_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS document_chunks (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			source_name TEXT NOT NULL,
			seq INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_tenant ON document_chunks(tenant_id, source_name)`,
	},
}

var mysqlDialect = dialect{
	name: DriverMySQL,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS segments (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			training_days INT NOT NULL DEFAULT 0
		) DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS training_classes (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			segment_id VARCHAR(64),
			name VARCHAR(255) NOT NULL,
			start_date CHAR(10) NOT NULL,
			end_date CHAR(10),
			medical_exam_date CHAR(10),
			contract_signature_date CHAR(10),
			assisted_service_date CHAR(10),
			status VARCHAR(32) NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			INDEX idx_classes_tenant (tenant_id, start_date)
		) DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS chat_exchanges (
			id VARCHAR(64) PRIMARY KEY,
			owner_id VARCHAR(128) NOT NULL,
			tenant_id VARCHAR(64) NOT NULL,
			user_text MEDIUMTEXT NOT NULL,
			assistant_text MEDIUMTEXT NOT NULL,
			elapsed_ms BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			INDEX idx_exchanges_owner (owner_id, created_at)
		) DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS document_chunks (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			source_name VARCHAR(255) NOT NULL,
			seq INT NOT NULL,
			text MEDIUMTEXT NOT NULL,
			embedding MEDIUMBLOB NOT NULL,
			created_at BIGINT NOT NULL,
			INDEX idx_chunks_tenant (tenant_id, source_name)
		) DEFAULT CHARSET=utf8mb4`,
	},
}

// upsert builds an insert that updates every non-key column on conflict.
func (d dialect) upsert(table, key string, cols ...string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	var sets []string
	for _, c := range cols {
		if c == key || c == "created_at" {
			continue
		}
		if d.name == DriverMySQL {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)
	if d.name == DriverMySQL {
		return q + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return q + fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET ", key) + strings.Join(sets, ", ")
}
