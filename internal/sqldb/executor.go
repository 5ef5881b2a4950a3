package sqldb

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fauxcloud/fauxcloud/internal/sqltypes"
)

// Error is a client-addressable execution failure. The protocol layer
// forwards Code/State/Message in an ERR packet; the connection stays alive.
type Error struct {
	Code    uint16
	State   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

const (
	codeUnknown      uint16 = 1105
	codeNoDB         uint16 = 1046
	codeUnknownTable uint16 = 1051
	codeSyntax       uint16 = 1064
)

func newError(code uint16, format string, args ...any) *Error {
	return &Error{Code: code, State: "HY000", Message: fmt.Sprintf(format, args...)}
}

// Session is the per-connection execution state the adapter needs: the
// currently selected database, if any.
type Session struct {
	Database string
}

// Result is the outcome of one statement. Either Columns/Rows are set (a
// result set) or they are empty and RowsAffected counts the mutation.
type Result struct {
	Columns      []string
	Rows         [][]sqltypes.Value
	RowsAffected uint64
	LastInsertID uint64
}

// defaultDatabase backs SELECT/mutation statements issued before any USE or
// handshake default database.
const defaultDatabase = "default"

// Executor classifies SQL text and routes it to the registry. It holds no
// per-statement state; everything lives in the registry and the caller's
// session.
type Executor struct {
	registry *Registry
	logger   *zap.Logger

	queryCount atomic.Uint64
}

func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	return &Executor{
		registry: registry,
		logger:   logger,
	}
}

// Registry exposes the underlying database registry, used by the metrics
// side channel.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// QueryCount reports how many statements have been executed process-wide.
func (e *Executor) QueryCount() uint64 {
	return e.queryCount.Load()
}

// SelectDatabase switches the session to the named database, creating it on
// first reference and refreshing its metadata cache.
func (e *Executor) SelectDatabase(ctx context.Context, sess *Session, name string) error {
	if name == "" {
		return newError(codeNoDB, "No database selected")
	}
	aDatabase, err := e.registry.Open(ctx, name)
	if err != nil {
		return err
	}
	if err := aDatabase.RefreshMetadata(ctx); err != nil {
		return err
	}
	sess.Database = name
	return nil
}

// ResolveColumns resolves result column names for a parameterless SELECT by
// running it; any other statement shape resolves to no columns. Used for
// best-effort column metadata at statement prepare time.
func (e *Executor) ResolveColumns(ctx context.Context, sess *Session, sql string) ([]string, error) {
	if classify(sql).kind != stmtSelect {
		return nil, nil
	}
	aDatabase, err := e.current(ctx, sess)
	if err != nil {
		return nil, err
	}
	columns, _, err := aDatabase.Query(ctx, sql, nil)
	if err != nil {
		return nil, err
	}
	return columns, nil
}

// Execute classifies and runs one statement. Engine failures come back as
// *Error values carrying the engine's message, never as panics or
// connection-fatal conditions.
func (e *Executor) Execute(ctx context.Context, sess *Session, sql string, args []sqltypes.Value) (*Result, error) {
	e.queryCount.Add(1)

	aStatement := classify(sql)
	switch aStatement.kind {
	case stmtUse:
		if err := e.SelectDatabase(ctx, sess, aStatement.arg); err != nil {
			return nil, err
		}
		return &Result{}, nil

	case stmtShowDatabases:
		rows := make([][]sqltypes.Value, 0, 4)
		for _, name := range e.registry.Names() {
			rows = append(rows, []sqltypes.Value{sqltypes.NewText(name)})
		}
		return &Result{Columns: []string{"Database"}, Rows: rows}, nil

	case stmtShowTables:
		if sess.Database == "" {
			return nil, newError(codeNoDB, "No database selected")
		}
		aDatabase, err := e.registry.Open(ctx, sess.Database)
		if err != nil {
			return nil, err
		}
		rows := make([][]sqltypes.Value, 0, 4)
		for _, name := range aDatabase.TableNames() {
			rows = append(rows, []sqltypes.Value{sqltypes.NewText(name)})
		}
		return &Result{
			Columns: []string{"Tables_in_" + sess.Database},
			Rows:    rows,
		}, nil

	case stmtDescribe:
		if sess.Database == "" {
			return nil, newError(codeNoDB, "No database selected")
		}
		aDatabase, err := e.registry.Open(ctx, sess.Database)
		if err != nil {
			return nil, err
		}
		info, ok := aDatabase.Table(aStatement.arg)
		if !ok {
			return nil, newError(codeUnknownTable, "Unknown table '%s'", aStatement.arg)
		}
		rows := make([][]sqltypes.Value, 0, len(info.Columns))
		for _, column := range info.Columns {
			rows = append(rows, []sqltypes.Value{sqltypes.NewText(column)})
		}
		return &Result{Columns: []string{"Field"}, Rows: rows}, nil

	case stmtCreateDatabase:
		if aStatement.arg == "" {
			return nil, newError(codeSyntax, "Unsupported query")
		}
		aDatabase, err := e.registry.Open(ctx, aStatement.arg)
		if err != nil {
			return nil, err
		}
		if err := aDatabase.RefreshMetadata(ctx); err != nil {
			return nil, err
		}
		return &Result{}, nil

	case stmtSelect:
		aDatabase, err := e.current(ctx, sess)
		if err != nil {
			return nil, err
		}
		columns, rows, err := aDatabase.Query(ctx, aStatement.sql, args)
		if err != nil {
			return nil, engineError(err)
		}
		return &Result{Columns: columns, Rows: rows}, nil

	case stmtMutation:
		aDatabase, err := e.current(ctx, sess)
		if err != nil {
			return nil, err
		}
		affected, lastID, err := aDatabase.Exec(ctx, aStatement.sql, args)
		if err != nil {
			return nil, engineError(err)
		}
		// The sole mutation point for cached table metadata.
		if err := aDatabase.RefreshMetadata(ctx); err != nil {
			e.logger.Warn("metadata refresh failed",
				zap.String("database", aDatabase.Name()), zap.Error(err))
		}
		return &Result{RowsAffected: affected, LastInsertID: lastID}, nil

	default:
		return nil, newError(codeSyntax, "Unsupported query")
	}
}

// current resolves the session's database, falling back to the shared
// default database when none was ever selected.
func (e *Executor) current(ctx context.Context, sess *Session) (*Database, error) {
	name := sess.Database
	if name == "" {
		name = defaultDatabase
	}
	return e.registry.Open(ctx, name)
}

// engineError converts an embedded engine failure into a client-addressable
// error carrying the engine's message.
func engineError(err error) *Error {
	return newError(codeUnknown, "%s", err.Error())
}
