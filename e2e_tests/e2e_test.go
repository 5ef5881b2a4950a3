package e2etests

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fauxcloud/fauxcloud/internal/metrics"
	"github.com/fauxcloud/fauxcloud/internal/mysql"
	"github.com/fauxcloud/fauxcloud/internal/sqldb"
)

type testServer struct {
	srv       *mysql.Server
	collector *metrics.Collector
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	aRegistry, err := sqldb.NewRegistry(filepath.Join(t.TempDir(), "data"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		aRegistry.Close()
	})

	anExecutor := sqldb.NewExecutor(aRegistry, zap.NewNop())
	srv, err := mysql.NewServer(anExecutor, zap.NewNop(), 0)
	require.NoError(t, err)
	srv.Serve(context.Background())
	t.Cleanup(srv.Stop)

	return &testServer{
		srv:       srv,
		collector: metrics.NewCollector(anExecutor),
	}
}

func (s *testServer) connect(t *testing.T, database string) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("root:anything@tcp(%s)/%s?timeout=5s", s.srv.Addr(), database)
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	db.SetConnMaxLifetime(time.Minute)
	db.SetMaxOpenConns(1)

	require.NoError(t, db.Ping())

	return db
}

func TestEndToEnd(t *testing.T) {
	aServer := startServer(t)
	db := aServer.connect(t, "")

	t.Run("Create and select a database", func(t *testing.T) {
		res, err := db.Exec("CREATE DATABASE demo")
		require.NoError(t, err)
		affected, err := res.RowsAffected()
		require.NoError(t, err)
		assert.Equal(t, int64(0), affected)

		_, err = db.Exec("USE demo")
		require.NoError(t, err)
	})

	t.Run("Create a table and insert a row", func(t *testing.T) {
		_, err := db.Exec("CREATE TABLE items(id INTEGER PRIMARY KEY, name TEXT)")
		require.NoError(t, err)

		res, err := db.Exec("INSERT INTO items(name) VALUES('foo')")
		require.NoError(t, err)
		affected, err := res.RowsAffected()
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)
	})

	t.Run("Select returns the inserted row", func(t *testing.T) {
		rows, err := db.Query("SELECT * FROM items")
		require.NoError(t, err)
		defer rows.Close()

		columns, err := rows.Columns()
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name"}, columns)

		require.True(t, rows.Next())
		var (
			id   int64
			name string
		)
		require.NoError(t, rows.Scan(&id, &name))
		assert.Equal(t, int64(1), id)
		assert.Equal(t, "foo", name)
		assert.False(t, rows.Next())
		require.NoError(t, rows.Err())
	})

	t.Run("Prepared statement with binary parameters", func(t *testing.T) {
		stmt, err := db.Prepare("UPDATE items SET name=? WHERE id=?")
		require.NoError(t, err)
		defer stmt.Close()

		res, err := stmt.Exec("bar", 1)
		require.NoError(t, err)
		affected, err := res.RowsAffected()
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)

		var name string
		require.NoError(t, db.QueryRow("SELECT name FROM items WHERE id=1").Scan(&name))
		assert.Equal(t, "bar", name)
	})

	t.Run("Prepared select with parameter", func(t *testing.T) {
		stmt, err := db.Prepare("SELECT id, name FROM items WHERE id = ?")
		require.NoError(t, err)
		defer stmt.Close()

		var (
			id   int64
			name string
		)
		require.NoError(t, stmt.QueryRow(1).Scan(&id, &name))
		assert.Equal(t, int64(1), id)
		assert.Equal(t, "bar", name)
	})

	t.Run("NULL values round trip", func(t *testing.T) {
		_, err := db.Exec("INSERT INTO items(name) VALUES(NULL)")
		require.NoError(t, err)

		var name sql.NullString
		require.NoError(t, db.QueryRow("SELECT name FROM items WHERE id=2").Scan(&name))
		assert.False(t, name.Valid)
	})

	t.Run("Meta commands", func(t *testing.T) {
		var database string
		require.NoError(t, db.QueryRow("SHOW DATABASES").Scan(&database))
		assert.Equal(t, "demo", database)

		var table string
		require.NoError(t, db.QueryRow("SHOW TABLES").Scan(&table))
		assert.Equal(t, "items", table)

		fields := make([]string, 0, 2)
		rows, err := db.Query("DESCRIBE items")
		require.NoError(t, err)
		defer rows.Close()
		for rows.Next() {
			var field string
			require.NoError(t, rows.Scan(&field))
			fields = append(fields, field)
		}
		require.NoError(t, rows.Err())
		assert.Equal(t, []string{"id", "name"}, fields)
	})

	t.Run("Engine errors do not kill the connection", func(t *testing.T) {
		_, err := db.Exec("INSERT INTO missing(name) VALUES('x')")
		require.Error(t, err)

		require.NoError(t, db.Ping())
	})

	t.Run("Unsupported statements return an error", func(t *testing.T) {
		_, err := db.Exec("DROP TABLE items")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Unsupported query")
	})

	t.Run("Metrics snapshot reflects activity", func(t *testing.T) {
		snap := aServer.collector.Snapshot()
		assert.NotZero(t, snap.QueryCount)
		assert.Equal(t, 1, snap.DatabaseCount)
		require.Len(t, snap.Databases, 1)
		require.Len(t, snap.Databases[0].Tables, 1)
		assert.Equal(t, "items", snap.Databases[0].Tables[0].Name)
		assert.Equal(t, 2, snap.Databases[0].Tables[0].ColumnCount)
		assert.Equal(t, 2, snap.Databases[0].Tables[0].RowCount)
	})
}

func TestEndToEnd_HandshakeDefaultDatabase(t *testing.T) {
	aServer := startServer(t)

	// The database named in the DSN is created lazily during handshake
	db := aServer.connect(t, "crm")

	_, err := db.Exec("CREATE TABLE leads(id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	var table string
	require.NoError(t, db.QueryRow("SHOW TABLES").Scan(&table))
	assert.Equal(t, "leads", table)
}

func TestEndToEnd_ConcurrentConnections(t *testing.T) {
	aServer := startServer(t)

	dbA := aServer.connect(t, "shared")
	dbB := aServer.connect(t, "shared")

	_, err := dbA.Exec("CREATE TABLE events(id INTEGER PRIMARY KEY, payload TEXT)")
	require.NoError(t, err)

	// Writes from one connection are visible to the other
	_, err = dbA.Exec("INSERT INTO events(payload) VALUES('from A')")
	require.NoError(t, err)

	var payload string
	require.NoError(t, dbB.QueryRow("SELECT payload FROM events WHERE id=1").Scan(&payload))
	assert.Equal(t, "from A", payload)
}
