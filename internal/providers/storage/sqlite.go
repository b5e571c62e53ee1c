package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
)

const schemaSQL = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;

CREATE TABLE IF NOT EXISTS profiles (
    account_id TEXT PRIMARY KEY,
    profile_id TEXT NOT NULL,
    auth_state TEXT NOT NULL,
    instance_id TEXT NOT NULL,
    avd_name TEXT NOT NULL,
    last_view TEXT DEFAULT '',
    has_snapshot INTEGER DEFAULT 0,
    snapshot_at INTEGER DEFAULT 0,
    was_running INTEGER DEFAULT 0,
    last_activity INTEGER DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profiles_was_running ON profiles(was_running);
`

const profileColumns = `account_id, profile_id, auth_state, instance_id, avd_name, last_view,
	has_snapshot, snapshot_at, was_running, last_activity, created_at, updated_at`

// SQLite stores profiles in a single-file database
type SQLite struct {
	db   *sql.DB
	path string

	stmtLoad   *sql.Stmt
	stmtUpsert *sql.Stmt
	stmtDelete *sql.Stmt
	stmtList   *sql.Stmt
}

// NewSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func NewSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{db: db, path: path}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLite) prepareStatements() error {
	var err error

	s.stmtLoad, err = s.db.Prepare(`SELECT ` + profileColumns + ` FROM profiles WHERE account_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare load: %w", err)
	}

	s.stmtUpsert, err = s.db.Prepare(`
		INSERT INTO profiles (` + profileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			profile_id = excluded.profile_id,
			auth_state = excluded.auth_state,
			instance_id = excluded.instance_id,
			avd_name = excluded.avd_name,
			last_view = excluded.last_view,
			has_snapshot = excluded.has_snapshot,
			snapshot_at = excluded.snapshot_at,
			was_running = excluded.was_running,
			last_activity = excluded.last_activity,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}

	s.stmtDelete, err = s.db.Prepare(`DELETE FROM profiles WHERE account_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}

	s.stmtList, err = s.db.Prepare(`SELECT ` + profileColumns + ` FROM profiles ORDER BY account_id`)
	if err != nil {
		return fmt.Errorf("prepare list: %w", err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, accountID string) (*account.Profile, error) {
	p, err := scanProfile(s.stmtLoad.QueryRowContext(ctx, account.NormalizeID(accountID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

func (s *SQLite) Save(ctx context.Context, p *account.Profile) error {
	_, err := s.stmtUpsert.ExecContext(ctx,
		account.NormalizeID(p.AccountID),
		p.ProfileID,
		string(p.AuthState),
		p.InstanceID,
		p.AVDName,
		p.LastView,
		boolToInt(p.HasSnapshot),
		toMillis(p.SnapshotAt),
		boolToInt(p.WasRunning),
		toMillis(p.LastActivity),
		toMillis(p.CreatedAt),
		toMillis(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, accountID string) error {
	res, err := s.stmtDelete.ExecContext(ctx, account.NormalizeID(accountID))
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]*account.Profile, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []*account.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close releases statements and the database handle
func (s *SQLite) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtLoad, s.stmtUpsert, s.stmtDelete, s.stmtList} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row scanner) (*account.Profile, error) {
	var p account.Profile
	var auth string
	var hasSnapshot, wasRunning int
	var snapshotAt, lastActivity, createdAt, updatedAt int64
	err := row.Scan(
		&p.AccountID, &p.ProfileID, &auth, &p.InstanceID, &p.AVDName, &p.LastView,
		&hasSnapshot, &snapshotAt, &wasRunning, &lastActivity, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.AuthState = account.AuthState(auth)
	p.HasSnapshot = hasSnapshot != 0
	p.WasRunning = wasRunning != 0
	p.SnapshotAt = fromMillis(snapshotAt)
	p.LastActivity = fromMillis(lastActivity)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
