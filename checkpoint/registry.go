/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package checkpoint mirrors confirmed write positions into an external
// SQL table so an operator can query "latest confirmed LSN per shard"
// without reading xlog file headers. It sits entirely off the
// durability path: every failure is logged and swallowed, the same
// policy the writer already applies to fsync/range-sync failures.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Registry records confirmed checkpoints. xlog.Writer calls Record once
// per successful Confirm when a Registry is configured.
type Registry interface {
	Record(ctx context.Context, shardID uint16, lsn, scn int64, filename string) error
	Close() error
}

// dialect hides the placeholder-syntax and upsert-statement difference
// between MySQL and Postgres behind one Record implementation.
type dialect int

const (
	dialectMySQL dialect = iota
	dialectPostgres
)

// SQLRegistry is a database/sql-backed Registry. The driver is selected
// by the DSN's scheme: "mysql://" picks go-sql-driver/mysql (stripping
// the scheme, since that driver's DSN has no scheme prefix of its own),
// "postgres://"/"postgresql://" picks lib/pq.
type SQLRegistry struct {
	db      *sql.DB
	dialect dialect
	table   string
}

const defaultTable = "octolog_checkpoints"

// Open connects to dsn and ensures the checkpoint table exists.
func Open(ctx context.Context, dsn string) (*SQLRegistry, error) {
	driver, dial, connDSN, err := resolveDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, connDSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	r := &SQLRegistry{db: db, dialect: dial, table: defaultTable}
	if err := r.ensureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func resolveDSN(dsn string) (driver string, dial dialect, connDSN string, err error) {
	switch {
	case strings.HasPrefix(dsn, "mysql://"):
		return "mysql", dialectMySQL, strings.TrimPrefix(dsn, "mysql://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dialectPostgres, dsn, nil
	default:
		return "", 0, "", fmt.Errorf("checkpoint: unrecognized DSN scheme in %q (want mysql:// or postgres://)", dsn)
	}
}

func createTableStmt(dial dialect, table string) string {
	switch dial {
	case dialectMySQL:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			shard_id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
			lsn BIGINT NOT NULL,
			scn BIGINT NOT NULL,
			filename VARCHAR(255) NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)`, table)
	default:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			shard_id BIGINT PRIMARY KEY,
			lsn BIGINT NOT NULL,
			scn BIGINT NOT NULL,
			filename TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table)
	}
}

func upsertStmt(dial dialect, table string) string {
	switch dial {
	case dialectMySQL:
		return fmt.Sprintf(`INSERT INTO %s (shard_id, lsn, scn, filename) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE lsn = VALUES(lsn), scn = VALUES(scn), filename = VALUES(filename), updated_at = CURRENT_TIMESTAMP`, table)
	default:
		return fmt.Sprintf(`INSERT INTO %s (shard_id, lsn, scn, filename) VALUES ($1, $2, $3, $4)
			ON CONFLICT (shard_id) DO UPDATE SET lsn = EXCLUDED.lsn, scn = EXCLUDED.scn, filename = EXCLUDED.filename, updated_at = now()`, table)
	}
}

func (r *SQLRegistry) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, createTableStmt(r.dialect, r.table))
	return err
}

// Record upserts the (shard_id, lsn, scn, filename) row.
func (r *SQLRegistry) Record(ctx context.Context, shardID uint16, lsn, scn int64, filename string) error {
	_, err := r.db.ExecContext(ctx, upsertStmt(r.dialect, r.table), shardID, lsn, scn, filename)
	return err
}

// Close releases the underlying connection pool.
func (r *SQLRegistry) Close() error { return r.db.Close() }
