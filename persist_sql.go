package cachez

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultSQLTable = "cachez_entries"

var sqlIdentPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLConfig describes a database/sql backed store. DriverName is one of
// "sqlite", "pgx"/"postgres" or "mysql".
type SQLConfig struct {
	DriverName string
	DSN        string
	Table      string
	Prefix     string
}

type sqlBackend struct {
	db         *sql.DB
	table      string
	driverName string
	prefix     string
	getStmt    *sql.Stmt
	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
}

// NewSQLBackend opens the database, creates the entry table when missing and
// prepares the statements used by Load and Save.
//
// Example: sqlite-backed persisted function
//
//	backend, err := cachez.NewSQLBackend(ctx, cachez.SQLConfig{
//		DriverName: "sqlite",
//		DSN:        "file:cachez.db",
//	})
//	if err != nil {
//		return err
//	}
//	opt := cachez.WithBackend(backend)
func NewSQLBackend(ctx context.Context, cfg SQLConfig) (Backend, error) {
	if cfg.DriverName == "" || cfg.DSN == "" {
		return nil, errors.New("cachez: sql backend requires driver name and dsn")
	}
	table := cfg.Table
	if table == "" {
		table = defaultSQLTable
	}
	if err := validateSQLTableName(table); err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.DriverName, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	b := &sqlBackend{
		db:         db,
		table:      table,
		driverName: cfg.DriverName,
		prefix:     cfg.Prefix,
	}
	if err := b.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := b.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *sqlBackend) Driver() Driver { return DriverSQL }

func (b *sqlBackend) ensureSchema(ctx context.Context) error {
	var stmt string
	switch b.driverName {
	case "postgres", "pgx":
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BYTEA NOT NULL,
			sa BIGINT NOT NULL
		);`, b.table)
	case "mysql":
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k VARBINARY(255) PRIMARY KEY,
			v LONGBLOB NOT NULL,
			sa BIGINT NOT NULL
		) ENGINE=InnoDB;`, b.table)
	default: // sqlite
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BLOB NOT NULL,
			sa INTEGER NOT NULL
		);`, b.table)
	}
	_, err := b.db.ExecContext(ctx, stmt)
	return err
}

func (b *sqlBackend) Load(ctx context.Context, name string) (Entry, bool, error) {
	var v []byte
	var savedAt int64
	err := b.getStmt.QueryRowContext(ctx, b.key(name)).Scan(&v, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Blob: cloneBytes(v), ModTime: time.Unix(0, savedAt)}, true, nil
}

func (b *sqlBackend) Save(ctx context.Context, name string, blob []byte) error {
	savedAt := time.Now().UnixNano()
	_, err := b.upsertStmt.ExecContext(ctx, b.key(name), blob, savedAt, blob, savedAt)
	return err
}

func (b *sqlBackend) Delete(ctx context.Context, name string) error {
	_, err := b.deleteStmt.ExecContext(ctx, b.key(name))
	return err
}

func (b *sqlBackend) Flush(ctx context.Context) error {
	if b.prefix == "" {
		_, err := b.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", b.table))
		return err
	}
	scope := b.prefix + ":"
	_, err := b.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE SUBSTR(k, 1, %d) = %s", b.table, b.keyLen(scope), b.ph(1)),
		scope,
	)
	return err
}

// keyLen measures s the way SUBSTR counts the k column: bytes for mysql's
// VARBINARY, characters elsewhere.
func (b *sqlBackend) keyLen(s string) int {
	if b.driverName == "mysql" {
		return len(s)
	}
	return utf8.RuneCountInString(s)
}

// Close releases the database handle.
func (b *sqlBackend) Close() error {
	return b.db.Close()
}

func (b *sqlBackend) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return b.prefix + ":" + name
}

func (b *sqlBackend) upsertSQL() string {
	// Placeholders must be positional for postgres/pgx.
	p1, p2, p3, p4, p5 := b.ph(1), b.ph(2), b.ph(3), b.ph(4), b.ph(5)
	switch b.driverName {
	case "postgres", "pgx":
		return fmt.Sprintf("INSERT INTO %s (k, v, sa) VALUES (%s, %s, %s) ON CONFLICT (k) DO UPDATE SET v = %s, sa = %s", b.table, p1, p2, p3, p4, p5)
	case "mysql":
		return fmt.Sprintf("INSERT INTO %s (k, v, sa) VALUES (%s, %s, %s) ON DUPLICATE KEY UPDATE v = %s, sa = %s", b.table, p1, p2, p3, p4, p5)
	default: // sqlite
		return fmt.Sprintf("INSERT INTO %s (k, v, sa) VALUES (%s, %s, %s) ON CONFLICT(k) DO UPDATE SET v = %s, sa = %s", b.table, p1, p2, p3, p4, p5)
	}
}

func (b *sqlBackend) getSQL() string {
	return fmt.Sprintf("SELECT v, sa FROM %s WHERE k = %s", b.table, b.ph(1))
}

func (b *sqlBackend) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE k = %s", b.table, b.ph(1))
}

func (b *sqlBackend) prepareStatements(ctx context.Context) error {
	var err error
	if b.getStmt, err = b.db.PrepareContext(ctx, b.getSQL()); err != nil {
		return err
	}
	if b.upsertStmt, err = b.db.PrepareContext(ctx, b.upsertSQL()); err != nil {
		return err
	}
	if b.deleteStmt, err = b.db.PrepareContext(ctx, b.deleteSQL()); err != nil {
		return err
	}
	return nil
}

func (b *sqlBackend) ph(i int) string {
	if b.driverName == "postgres" || b.driverName == "pgx" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func validateSQLTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("cachez: sql table name is required")
	}
	for _, part := range strings.Split(name, ".") {
		if !sqlIdentPartRE.MatchString(part) {
			return fmt.Errorf("cachez: invalid sql table name %q", name)
		}
	}
	return nil
}
