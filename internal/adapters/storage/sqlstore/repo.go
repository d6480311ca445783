package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
)

// Dialect names a supported SQL backend.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// driver names registered by the imported database/sql drivers.
const (
	sqliteDriverName   = "sqlite"
	postgresDriverName = "pgx"
)

var _ app.Repository = (*Repository)(nil)

// memoryDBCounter keeps in-memory database names unique per process.
var memoryDBCounter atomic.Int64

// Repository stores funnels, stages, entities, comments, and the change ledger.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens a repository for driver ("sqlite" or "postgres").
func Open(driver, path, dsn string) (*Repository, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(driver))) {
	case DialectSQLite, "":
		return OpenSQLite(path)
	case DialectPostgres, "postgresql", "pgx":
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenSQLite opens a file-backed sqlite database, creating its directory.
func OpenSQLite(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(sqliteDriverName, path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newRepository(db, DialectSQLite)
}

// OpenInMemory opens a private in-memory sqlite database.
func OpenInMemory() (*Repository, error) {
	name := fmt.Sprintf("file:pipedesk-mem-%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", memoryDBCounter.Add(1))
	db, err := sql.Open(sqliteDriverName, name)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newRepository(db, DialectSQLite)
}

// OpenPostgres opens a postgres database through the pgx stdlib driver.
func OpenPostgres(dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open(postgresDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newRepository(db, DialectPostgres)
}

func newRepository(db *sql.DB, dialect Dialect) (*Repository, error) {
	repo := &Repository{db: db, dialect: dialect}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping verifies the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Dialect reports the backend in use.
func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// migrate creates the schema. Statements are idempotent.
func (r *Repository) migrate(ctx context.Context) error {
	eventID := `id INTEGER PRIMARY KEY AUTOINCREMENT`
	if r.dialect == DialectPostgres {
		eventID = `id BIGSERIAL PRIMARY KEY`
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS funnels (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS funnel_stages (
			id TEXT PRIMARY KEY,
			funnel_id TEXT NOT NULL,
			name TEXT NOT NULL,
			position INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(funnel_id) REFERENCES funnels(id) ON DELETE CASCADE
		)`,
		// placement columns are plain references; stage deletes clear them explicitly.
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			funnel_id TEXT,
			stage_id TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subprojects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			project_id TEXT,
			parent_subproject_id TEXT,
			funnel_id TEXT,
			stage_id TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL,
			body_markdown TEXT NOT NULL,
			author_id TEXT NOT NULL DEFAULT '',
			author_name TEXT NOT NULL DEFAULT 'pipedesk-user',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS change_events (
			` + eventID + `,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			funnel_id TEXT NOT NULL DEFAULT '',
			operation TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_funnels_scope ON funnels(scope, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_funnel_stages_funnel_position ON funnel_stages(funnel_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_placement ON projects(funnel_id, stage_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subprojects_placement ON subprojects(funnel_id, stage_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subprojects_parents ON subprojects(project_id, parent_subproject_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_target_created_at ON comments(target_type, target_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", r.dialect, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (r *Repository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// withTx runs fn inside a transaction, rolling back when it fails.
func (r *Repository) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// queryRower represents a query-only DB contract used by DB and Tx implementations.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// insertChangeEvent inserts a change-event ledger record attributed to the context actor.
func (r *Repository) insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	actorID := strings.TrimSpace(event.ActorID)
	if actorID == "" {
		actorID = app.ActorIDFromContext(ctx)
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	_, err = execer.ExecContext(ctx, r.rebind(`
		INSERT INTO change_events(entity_type, entity_id, funnel_id, operation, actor_id, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`),
		string(event.EntityType),
		event.EntityID,
		event.FunnelID,
		string(event.Operation),
		actorID,
		string(metadataJSON),
		ts(occurredAt),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// translateNoRows maps an update that touched nothing to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// translateScanErr maps sql.ErrNoRows to app.ErrNotFound.
func translateScanErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return app.ErrNotFound
	}
	return err
}

// ts formats a timestamp for storage.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses a stored timestamp.
func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

// nullableID stores empty ids as NULL.
func nullableID(id string) any {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return id
}

// idFromNull reads a nullable id column.
func idFromNull(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return strings.TrimSpace(v.String)
}
