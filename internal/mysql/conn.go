package mysql

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/fauxcloud/fauxcloud/internal/sqldb"
	"github.com/fauxcloud/fauxcloud/internal/sqltypes"
)

type sessionState int

const (
	stateInitial sessionState = iota
	stateHandshakePending
	stateReady
	stateClosed
)

// errConnClosed signals an orderly client-initiated teardown (COM_QUIT).
var errConnClosed = errors.New("connection closed by client")

// maxBufferedBytes caps unframed backlog from a client that declares a huge
// packet length and never completes it.
const maxBufferedBytes = 64 << 20

// conn is one client connection: its socket, session state and prepared
// statement registry. A conn is owned by a single goroutine, none of its
// state is shared.
type conn struct {
	id       uint32
	netConn  net.Conn
	logger   *zap.Logger
	executor *sqldb.Executor

	state        sessionState
	capabilities uint32
	session      *sqldb.Session
	stmts        *stmtRegistry
	buf          buffer
	authData     [20]byte
}

func newConn(id uint32, netConn net.Conn, executor *sqldb.Executor, logger *zap.Logger) *conn {
	return &conn{
		id:       id,
		netConn:  netConn,
		logger:   logger.With(zap.Uint32("conn", id)),
		executor: executor,
		state:    stateInitial,
		session:  new(sqldb.Session),
		stmts:    newStmtRegistry(),
	}
}

func (c *conn) Close() {
	c.state = stateClosed
	c.netConn.Close()
}

// writeHandshake sends the unsolicited protocol 10 greeting and moves the
// connection to the handshake-pending state.
func (c *conn) writeHandshake() error {
	if _, err := rand.Read(c.authData[:]); err != nil {
		return fmt.Errorf("generating auth data: %w", err)
	}

	payload := make([]byte, 0, 128)
	payload = append(payload, protocolVersion)
	payload = append(payload, serverVersion...)
	payload = append(payload, 0x00)
	payload = binary.LittleEndian.AppendUint32(payload, c.id)
	payload = append(payload, c.authData[:8]...)
	payload = append(payload, 0x00) // filler
	caps := uint32(serverCapabilities)
	payload = append(payload, byte(caps), byte(caps>>8))
	payload = append(payload, charsetUTF8)
	payload = binary.LittleEndian.AppendUint16(payload, statusAutocommit)
	payload = append(payload, byte(caps>>16), byte(caps>>24))
	payload = append(payload, byte(len(c.authData)+1)) // auth data length incl. terminator
	payload = append(payload, make([]byte, 10)...)     // reserved
	payload = append(payload, c.authData[8:]...)
	payload = append(payload, 0x00)
	payload = append(payload, authPluginName...)
	payload = append(payload, 0x00)

	if err := writePacket(c.netConn, 0, payload); err != nil {
		return err
	}
	c.state = stateHandshakePending
	return nil
}

// Receive feeds raw socket bytes into the connection. Complete packets are
// processed in arrival order; a returned error is fatal to the connection.
func (c *conn) Receive(ctx context.Context, data []byte) error {
	c.buf.Append(data)
	if c.buf.Len() > maxBufferedBytes {
		return fmt.Errorf("client buffered %d unframed bytes, dropping connection", c.buf.Len())
	}

	for {
		payload, seq, ok := c.buf.TryReadPacket()
		if !ok {
			return nil
		}
		var err error
		switch c.state {
		case stateHandshakePending:
			err = c.handleHandshakeResponse(ctx, payload, seq)
		case stateReady:
			err = c.handleCommand(ctx, payload, seq)
		default:
			err = fmt.Errorf("packet received in state %d", c.state)
		}
		if err != nil {
			return err
		}
	}
}

// handleHandshakeResponse parses the client's reply to the greeting. No
// credential check is performed, any username and auth response is
// accepted. A response whose offsets run past the buffer is fatal, replying
// to a desynchronized client would only make things worse.
func (c *conn) handleHandshakeResponse(ctx context.Context, payload []byte, seq uint8) error {
	if len(payload) < 32 {
		return fmt.Errorf("handshake response of %d bytes is too short", len(payload))
	}
	c.capabilities = binary.LittleEndian.Uint32(payload)
	if c.capabilities&CapabilityProtocol41 == 0 {
		return errors.New("client does not speak protocol 4.1")
	}

	// Skip max packet size (4), charset (1) and the reserved block (23).
	pos := 32

	username, pos := readNullTerminatedString(payload, pos)

	// The auth response length style depends on the advertised capability.
	switch {
	case c.capabilities&CapabilityPluginAuthLenencClientData != 0:
		var ok bool
		_, pos, ok = readLenEncBytes(payload, pos)
		if !ok {
			return errors.New("malformed auth response in handshake")
		}
	case c.capabilities&CapabilitySecureConnection != 0:
		if pos >= len(payload) {
			return errors.New("malformed auth response in handshake")
		}
		authLen := int(payload[pos])
		pos++
		if pos+authLen > len(payload) {
			return errors.New("malformed auth response in handshake")
		}
		pos += authLen
	default:
		_, pos = readNullTerminatedString(payload, pos)
	}

	var database string
	if c.capabilities&CapabilityConnectWithDB != 0 && pos < len(payload) {
		database, pos = readNullTerminatedString(payload, pos)
	}
	if c.capabilities&CapabilityPluginAuth != 0 && pos < len(payload) {
		_, _ = readNullTerminatedString(payload, pos)
	}

	c.logger.Debug("handshake response",
		zap.String("username", username),
		zap.String("database", database))

	pw := &packetWriter{w: c.netConn, seq: seq + 1}
	if database != "" {
		if err := c.executor.SelectDatabase(ctx, c.session, database); err != nil {
			if writeErr := c.writeExecError(pw, err); writeErr != nil {
				return writeErr
			}
			return fmt.Errorf("opening handshake database %q: %w", database, err)
		}
	}

	if err := pw.write(okPayload(0, 0, statusAutocommit, 0, "")); err != nil {
		return err
	}
	c.state = stateReady
	return nil
}

// packetWriter emits reply packets in strict sequence order, wrapping at
// 256 per protocol convention.
type packetWriter struct {
	w   io.Writer
	seq uint8
}

func (pw *packetWriter) write(payload []byte) error {
	if err := writePacket(pw.w, pw.seq, payload); err != nil {
		return err
	}
	pw.seq++
	return nil
}

// handleCommand dispatches one ready-state packet on its command byte.
func (c *conn) handleCommand(ctx context.Context, payload []byte, seq uint8) error {
	pw := &packetWriter{w: c.netConn, seq: seq + 1}
	if len(payload) == 0 {
		return pw.write(errPayload(ERUnknownComError, sqlStateGeneral, "Command not supported"))
	}

	cmd, args := payload[0], payload[1:]
	switch cmd {
	case ComQuit:
		return errConnClosed

	case ComPing:
		return pw.write(okPayload(0, 0, statusAutocommit, 0, "Pong"))

	case ComInitDB:
		name := string(args)
		if name == "" {
			return pw.write(errPayload(ERNoDB, sqlStateGeneral, "No database selected"))
		}
		if err := c.executor.SelectDatabase(ctx, c.session, name); err != nil {
			return c.writeExecError(pw, err)
		}
		return pw.write(okPayload(0, 0, statusAutocommit, 0, ""))

	case ComQuery:
		return c.runQuery(ctx, pw, string(args), nil, false)

	case ComStmtPrepare:
		return c.handleStmtPrepare(ctx, pw, string(args))

	case ComStmtExecute:
		return c.handleStmtExecute(ctx, pw, args)

	case ComStmtClose:
		// Fire and forget, no reply per protocol convention.
		if len(args) >= 4 {
			c.stmts.Close(binary.LittleEndian.Uint32(args))
		}
		return nil

	default:
		c.logger.Debug("unsupported command", zap.Uint8("command", cmd))
		return pw.write(errPayload(ERUnknownComError, sqlStateGeneral, "Command not supported"))
	}
}

// runQuery executes sql and writes either an OK packet or a full result set
// in the requested row encoding.
func (c *conn) runQuery(ctx context.Context, pw *packetWriter, sql string, args []sqltypes.Value, binaryRows bool) error {
	aResult, err := c.executor.Execute(ctx, c.session, sql, args)
	if err != nil {
		return c.writeExecError(pw, err)
	}
	if aResult.Columns == nil {
		return pw.write(okPayload(aResult.RowsAffected, aResult.LastInsertID, statusAutocommit, 0, ""))
	}
	return c.writeResultSet(pw, aResult, binaryRows)
}

func (c *conn) writeResultSet(pw *packetWriter, aResult *sqldb.Result, binaryRows bool) error {
	if err := pw.write(appendLenEncInt(nil, uint64(len(aResult.Columns)))); err != nil {
		return err
	}

	colTypes := make([]byte, len(aResult.Columns))
	for i, name := range aResult.Columns {
		colTypes[i] = binaryTypeFor(aResult.Rows, i)
		var flags uint16
		if colTypes[i] == TypeBlob {
			flags |= flagBinary
		}
		def := columnDefinitionPayload(c.session.Database, "", name, colTypes[i], flags)
		if err := pw.write(def); err != nil {
			return err
		}
	}
	if err := pw.write(eofPayload(0, statusAutocommit)); err != nil {
		return err
	}

	for _, row := range aResult.Rows {
		var payload []byte
		if binaryRows {
			payload = binaryRowPayload(row, colTypes)
		} else {
			payload = textRowPayload(row)
		}
		if err := pw.write(payload); err != nil {
			return err
		}
	}
	return pw.write(eofPayload(0, statusAutocommit))
}

// handleStmtPrepare allocates a statement id, counts placeholders and
// replies with the prepare-OK sequence. Column metadata is pre-resolved
// best effort for parameterless SELECTs; failures still prepare with zero
// columns.
func (c *conn) handleStmtPrepare(ctx context.Context, pw *packetWriter, sql string) error {
	aStatement := c.stmts.Prepare(sql)
	if aStatement.paramCount == 0 {
		columns, err := c.executor.ResolveColumns(ctx, c.session, sql)
		if err == nil {
			aStatement.columns = columns
		} else {
			c.logger.Debug("column pre-resolution failed",
				zap.String("sql", sql), zap.Error(err))
		}
	}

	header := make([]byte, 0, 12)
	header = append(header, 0x00)
	header = binary.LittleEndian.AppendUint32(header, aStatement.id)
	header = binary.LittleEndian.AppendUint16(header, uint16(len(aStatement.columns)))
	header = binary.LittleEndian.AppendUint16(header, uint16(aStatement.paramCount))
	header = append(header, 0x00)       // filler
	header = append(header, 0x00, 0x00) // warning count
	if err := pw.write(header); err != nil {
		return err
	}

	if aStatement.paramCount > 0 {
		for i := 0; i < aStatement.paramCount; i++ {
			if err := pw.write(columnDefinitionPayload("", "", "?", TypeVarString, 0)); err != nil {
				return err
			}
		}
		if err := pw.write(eofPayload(0, statusAutocommit)); err != nil {
			return err
		}
	}
	if len(aStatement.columns) > 0 {
		for _, name := range aStatement.columns {
			if err := pw.write(columnDefinitionPayload(c.session.Database, "", name, TypeVarString, 0)); err != nil {
				return err
			}
		}
		if err := pw.write(eofPayload(0, statusAutocommit)); err != nil {
			return err
		}
	}
	return nil
}

// handleStmtExecute decodes the statement id, the null bitmap and the bound
// parameters, then executes with binary result rows.
func (c *conn) handleStmtExecute(ctx context.Context, pw *packetWriter, args []byte) error {
	if len(args) < 9 {
		return pw.write(errPayload(ERUnknownError, sqlStateGeneral, "Malformed EXECUTE packet"))
	}
	stmtID := binary.LittleEndian.Uint32(args)
	// args[4] is the cursor flags byte, args[5:9] the iteration count;
	// neither affects execution here.

	aStatement, ok := c.stmts.Get(stmtID)
	if !ok {
		return pw.write(errPayload(ERUnknownStmt, sqlStateGeneral,
			fmt.Sprintf("Unknown prepared statement handler (%d) given to EXECUTE", stmtID)))
	}

	var params []sqltypes.Value
	if aStatement.paramCount > 0 {
		pos := 9
		bitmapLen := (aStatement.paramCount + 7) / 8
		if pos+bitmapLen+1 > len(args) {
			return pw.write(errPayload(ERUnknownError, sqlStateGeneral, "Malformed EXECUTE packet"))
		}
		bitmap := args[pos : pos+bitmapLen]
		pos += bitmapLen

		newParamsBound := args[pos]
		pos++
		if newParamsBound != 0 {
			if pos+2*aStatement.paramCount > len(args) {
				return pw.write(errPayload(ERUnknownError, sqlStateGeneral, "Malformed EXECUTE packet"))
			}
			types := make([]paramType, aStatement.paramCount)
			for i := range types {
				types[i] = paramType{
					typ:      args[pos],
					unsigned: args[pos+1]&paramUnsignedFlag != 0,
				}
				pos += 2
			}
			aStatement.paramTypes = types
		} else if len(aStatement.paramTypes) != aStatement.paramCount {
			return pw.write(errPayload(ERUnknownError, sqlStateGeneral, "No parameter types bound"))
		}

		params = make([]sqltypes.Value, aStatement.paramCount)
		for i := 0; i < aStatement.paramCount; i++ {
			if bitmap[i/8]&(1<<(uint(i)&7)) != 0 {
				params[i] = sqltypes.NULL
				continue
			}
			value, next, err := decodeBinaryValue(args, pos, aStatement.paramTypes[i].typ, aStatement.paramTypes[i].unsigned)
			if err != nil {
				return pw.write(errPayload(ERUnknownError, sqlStateGeneral,
					fmt.Sprintf("Malformed parameter %d: %s", i, err)))
			}
			params[i] = value
			pos = next
		}
	}

	return c.runQuery(ctx, pw, aStatement.sql, params, true)
}

// writeExecError surfaces an execution failure as an ERR packet; the
// connection stays usable.
func (c *conn) writeExecError(pw *packetWriter, err error) error {
	var sqlErr *sqldb.Error
	if errors.As(err, &sqlErr) {
		return pw.write(errPayload(sqlErr.Code, sqlErr.State, sqlErr.Message))
	}
	return pw.write(errPayload(ERUnknownError, sqlStateGeneral, err.Error()))
}
