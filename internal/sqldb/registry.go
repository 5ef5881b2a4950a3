package sqldb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/fauxcloud/fauxcloud/internal/sqltypes"
)

// Registry owns one embedded sqlite handle per logical database name. It is
// the only state shared across connections; creation is idempotent under
// concurrent first access and at most one handle is ever open per name.
type Registry struct {
	dataDir string
	logger  *zap.Logger

	mu        sync.Mutex
	databases map[string]*Database
}

// NewRegistry purges any previous on-disk state under dataDir and recreates
// the directory; the emulator always starts from an empty data set.
func NewRegistry(dataDir string, logger *zap.Logger) (*Registry, error) {
	if err := os.RemoveAll(dataDir); err != nil {
		return nil, fmt.Errorf("purging data directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Registry{
		dataDir:   dataDir,
		logger:    logger,
		databases: make(map[string]*Database),
	}, nil
}

// Open returns the database registered under name, creating its backing
// store on first reference.
func (r *Registry) Open(ctx context.Context, name string) (*Database, error) {
	if name == "" {
		return nil, newError(codeNoDB, "No database selected")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if aDatabase, ok := r.databases[name]; ok {
		return aDatabase, nil
	}

	path := filepath.Join(r.dataDir, sanitizeName(name)+".db")
	handle, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening backing store for %q: %w", name, err)
	}

	aDatabase := &Database{
		name:   name,
		handle: handle,
		logger: r.logger.With(zap.String("database", name)),
	}
	if err := aDatabase.RefreshMetadata(ctx); err != nil {
		handle.Close()
		return nil, err
	}

	r.databases[name] = aDatabase
	r.logger.Info("database created", zap.String("name", name), zap.String("path", path))

	return aDatabase, nil
}

// Get returns the database registered under name without creating it.
func (r *Registry) Get(name string) (*Database, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	aDatabase, ok := r.databases[name]
	return aDatabase, ok
}

// Names lists all registered logical database names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.databases))
	for name := range r.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every open backing store handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, aDatabase := range r.databases {
		if err := aDatabase.handle.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %q: %w", name, err)
		}
		delete(r.databases, name)
	}
	return firstErr
}

// sanitizeName strips everything but alphanumerics and underscores so a
// logical name is safe as a file name.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TableInfo is one entry of a database's metadata cache.
type TableInfo struct {
	Name     string
	Columns  []string
	RowCount int
}

// Database is one logical database: a name, its sqlite handle and a cached
// table metadata snapshot rebuilt after every mutation.
type Database struct {
	name   string
	handle *sqlx.DB
	logger *zap.Logger

	metaMu sync.RWMutex
	tables []TableInfo
}

func (d *Database) Name() string {
	return d.name
}

// RefreshMetadata rebuilds the cached table list with ordered column names
// and row counts.
func (d *Database) RefreshMetadata(ctx context.Context) error {
	var names []string
	err := d.handle.SelectContext(ctx, &names,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}

	tables := make([]TableInfo, 0, len(names))
	for _, tableName := range names {
		info := TableInfo{Name: tableName}

		rows, err := d.handle.QueryxContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(tableName)))
		if err != nil {
			return fmt.Errorf("describing table %q: %w", tableName, err)
		}
		for rows.Next() {
			var col struct {
				CID       int    `db:"cid"`
				Name      string `db:"name"`
				Type      string `db:"type"`
				NotNull   int    `db:"notnull"`
				DfltValue any    `db:"dflt_value"`
				PK        int    `db:"pk"`
			}
			if err := rows.StructScan(&col); err != nil {
				rows.Close()
				return fmt.Errorf("describing table %q: %w", tableName, err)
			}
			info.Columns = append(info.Columns, col.Name)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if err := d.handle.GetContext(ctx, &info.RowCount,
			fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(tableName))); err != nil {
			return fmt.Errorf("counting rows of %q: %w", tableName, err)
		}

		tables = append(tables, info)
	}

	d.metaMu.Lock()
	d.tables = tables
	d.metaMu.Unlock()

	return nil
}

// Tables returns the cached metadata snapshot.
func (d *Database) Tables() []TableInfo {
	d.metaMu.RLock()
	defer d.metaMu.RUnlock()
	out := make([]TableInfo, len(d.tables))
	copy(out, d.tables)
	return out
}

// TableNames returns the cached table names in order.
func (d *Database) TableNames() []string {
	d.metaMu.RLock()
	defer d.metaMu.RUnlock()
	names := make([]string, 0, len(d.tables))
	for _, info := range d.tables {
		names = append(names, info.Name)
	}
	return names
}

// Table looks a table up in the metadata cache.
func (d *Database) Table(name string) (TableInfo, bool) {
	d.metaMu.RLock()
	defer d.metaMu.RUnlock()
	for _, info := range d.tables {
		if info.Name == name {
			return info, true
		}
	}
	return TableInfo{}, false
}

// Query runs a statement returning rows and converts every cell into the
// tagged value representation.
func (d *Database) Query(ctx context.Context, sql string, args []sqltypes.Value) ([]string, [][]sqltypes.Value, error) {
	rows, err := d.handle.QueryxContext(ctx, sql, nativeArgs(args)...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]sqltypes.Value
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return nil, nil, err
		}
		row := make([]sqltypes.Value, len(raw))
		for i, cell := range raw {
			row[i] = sqltypes.FromNative(cell)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return columns, out, nil
}

// Exec runs a statement for effect and returns the engine's affected row
// count and last insert id.
func (d *Database) Exec(ctx context.Context, sql string, args []sqltypes.Value) (uint64, uint64, error) {
	res, err := d.handle.ExecContext(ctx, sql, nativeArgs(args)...)
	if err != nil {
		return 0, 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		lastID = 0
	}
	return uint64(affected), uint64(lastID), nil
}

func nativeArgs(args []sqltypes.Value) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	for i, v := range args {
		out[i] = v.Native()
	}
	return out
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
