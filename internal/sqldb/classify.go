package sqldb

import (
	"strings"
)

// Statement classification. Incoming SQL is classified exactly once into a
// closed variant before any execution branch looks at it.

type stmtKind int

const (
	stmtUnsupported stmtKind = iota
	stmtUse
	stmtShowDatabases
	stmtShowTables
	stmtDescribe
	stmtCreateDatabase
	stmtSelect
	stmtMutation
)

type classified struct {
	kind stmtKind
	// arg carries the database name for Use/CreateDatabase and the table
	// name for Describe.
	arg string
	sql string
}

func classify(sql string) classified {
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSuffix(trimmed, ";")
	trimmed = strings.TrimSpace(trimmed)
	upper := strings.ToUpper(trimmed)

	switch {
	case strings.HasPrefix(upper, "USE "):
		return classified{kind: stmtUse, arg: unquoteIdent(trimmed[4:]), sql: trimmed}

	case upper == "SHOW DATABASES":
		return classified{kind: stmtShowDatabases, sql: trimmed}

	case upper == "SHOW TABLES":
		return classified{kind: stmtShowTables, sql: trimmed}

	case strings.HasPrefix(upper, "DESCRIBE "):
		return classified{kind: stmtDescribe, arg: unquoteIdent(trimmed[9:]), sql: trimmed}

	case strings.HasPrefix(upper, "DESC "):
		return classified{kind: stmtDescribe, arg: unquoteIdent(trimmed[5:]), sql: trimmed}

	case strings.HasPrefix(upper, "CREATE DATABASE "):
		return classified{kind: stmtCreateDatabase, arg: unquoteIdent(trimmed[16:]), sql: trimmed}

	case strings.HasPrefix(upper, "SELECT"):
		return classified{kind: stmtSelect, sql: trimmed}

	case strings.HasPrefix(upper, "CREATE"),
		strings.HasPrefix(upper, "INSERT"),
		strings.HasPrefix(upper, "UPDATE"),
		strings.HasPrefix(upper, "DELETE"):
		return classified{kind: stmtMutation, sql: trimmed}

	default:
		return classified{kind: stmtUnsupported, sql: trimmed}
	}
}

// unquoteIdent trims whitespace and one level of backtick, single or double
// quoting from an identifier argument.
func unquoteIdent(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		switch s[0] {
		case '`', '\'', '"':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}
