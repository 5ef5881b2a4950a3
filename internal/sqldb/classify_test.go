package sqldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		Name         string
		SQL          string
		ExpectedKind stmtKind
		ExpectedArg  string
	}{
		{
			"Use with semicolon",
			"USE demo;",
			stmtUse,
			"demo",
		},
		{
			"Use lowercase with backticks",
			"use `my_db`",
			stmtUse,
			"my_db",
		},
		{
			"Show databases",
			"show databases",
			stmtShowDatabases,
			"",
		},
		{
			"Show tables",
			"SHOW TABLES;",
			stmtShowTables,
			"",
		},
		{
			"Describe",
			"DESCRIBE items",
			stmtDescribe,
			"items",
		},
		{
			"Desc shorthand",
			"desc items",
			stmtDescribe,
			"items",
		},
		{
			"Create database",
			"CREATE DATABASE demo",
			stmtCreateDatabase,
			"demo",
		},
		{
			"Create table is a mutation",
			"CREATE TABLE items(id INTEGER PRIMARY KEY)",
			stmtMutation,
			"",
		},
		{
			"Select",
			"  select * from items ",
			stmtSelect,
			"",
		},
		{
			"Insert",
			"INSERT INTO items(name) VALUES('x')",
			stmtMutation,
			"",
		},
		{
			"Update",
			"UPDATE items SET name='y'",
			stmtMutation,
			"",
		},
		{
			"Delete",
			"delete from items",
			stmtMutation,
			"",
		},
		{
			"Drop is unsupported",
			"DROP TABLE items",
			stmtUnsupported,
			"",
		},
		{
			"Garbage is unsupported",
			"EXPLAIN ANALYZE things",
			stmtUnsupported,
			"",
		},
	}

	for _, aTestCase := range testCases {
		t.Run(aTestCase.Name, func(t *testing.T) {
			aStatement := classify(aTestCase.SQL)
			assert.Equal(t, aTestCase.ExpectedKind, aStatement.kind)
			assert.Equal(t, aTestCase.ExpectedArg, aStatement.arg)
		})
	}
}
