package mysql

// Prepared statement registry. Each connection owns exactly one; no
// locking is needed because a connection is serviced by a single
// goroutine.

type paramType struct {
	typ      byte
	unsigned bool
}

type preparedStatement struct {
	id         uint32
	sql        string
	paramCount int
	// paramTypes survives across executions, the client only resends
	// types when it sets the new-params-bound flag.
	paramTypes []paramType
	// columns is the best-effort column pre-resolution done at prepare
	// time for parameterless SELECTs; empty otherwise.
	columns []string
}

type stmtRegistry struct {
	nextID uint32
	stmts  map[uint32]*preparedStatement
}

func newStmtRegistry() *stmtRegistry {
	return &stmtRegistry{stmts: make(map[uint32]*preparedStatement)}
}

// Prepare registers sql under a fresh statement id, ids start at 1.
func (r *stmtRegistry) Prepare(sql string) *preparedStatement {
	r.nextID++
	aStatement := &preparedStatement{
		id:         r.nextID,
		sql:        sql,
		paramCount: countPlaceholders(sql),
	}
	r.stmts[aStatement.id] = aStatement
	return aStatement
}

func (r *stmtRegistry) Get(id uint32) (*preparedStatement, bool) {
	aStatement, ok := r.stmts[id]
	return aStatement, ok
}

func (r *stmtRegistry) Close(id uint32) {
	delete(r.stmts, id)
}

// countPlaceholders counts unescaped ? placeholders outside single, double
// and backtick quoted regions.
func countPlaceholders(sql string) int {
	var (
		quote byte
		n     int
	)
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if quote != 0 {
			switch c {
			case '\\':
				// Skip the escaped character; backticks have no escapes.
				if quote != '`' && i+1 < len(sql) {
					i++
				}
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '?':
			n++
		}
	}
	return n
}
