package mysql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fauxcloud/fauxcloud/internal/sqldb"
)

const defaultIdleTimeout = 5 * time.Minute

// Server accepts TCP connections and runs one goroutine per connection.
// Connections share nothing but the executor's database registry.
type Server struct {
	listener net.Listener
	executor *sqldb.Executor
	quit     chan struct{}
	wg       sync.WaitGroup
	logger   *zap.Logger

	idleTimeout time.Duration

	connections map[uint32]*conn
	nextConnID  uint32
	connMu      sync.RWMutex
}

func NewServer(executor *sqldb.Executor, logger *zap.Logger, port int) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}

	logger.Info("listening on port", zap.Int("port", port))

	srv := &Server{
		listener:    listener,
		executor:    executor,
		quit:        make(chan struct{}),
		logger:      logger,
		idleTimeout: defaultIdleTimeout,
		connections: make(map[uint32]*conn),
	}

	return srv, nil
}

// Addr returns the listener address, useful when the server was started on
// port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Serve(ctx context.Context) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		for {
			tcpConn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.quit:
					return
				default:
					s.logger.Error("accept error", zap.Error(err))
				}
			} else {
				s.wg.Add(1)
				go func(tcpConn net.Conn) {
					defer s.wg.Done()

					s.connMu.Lock()
					s.nextConnID++
					aConn := newConn(s.nextConnID, tcpConn, s.executor, s.logger)
					s.connections[aConn.id] = aConn
					s.connMu.Unlock()

					s.logger.Debug("new connection", zap.Uint32("id", aConn.id))

					s.handleConnection(ctx, aConn)

					s.connMu.Lock()
					delete(s.connections, aConn.id)
					s.connMu.Unlock()

					s.logger.Debug("connection closed", zap.Uint32("id", aConn.id))
				}(tcpConn)
			}
		}
	}()
}

func (s *Server) Stop() {
	close(s.quit)
	s.listener.Close()
	s.wg.Wait()
}

func (s *Server) handleConnection(ctx context.Context, aConn *conn) {
	defer aConn.Close()

	if err := aConn.writeHandshake(); err != nil {
		s.logger.Error("error sending handshake", zap.Error(err))
		return
	}

	buf := make([]byte, 4096)
	lastActivity := time.Now()

ReadLoop:
	for {
		select {
		case <-s.quit:
			return
		default:
			aConn.netConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
			n, err := aConn.netConn.Read(buf)
			if err != nil {
				if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
					if time.Since(lastActivity) > s.idleTimeout {
						s.logger.Debug("closing idle connection", zap.Uint32("id", aConn.id))
						return
					}
					continue ReadLoop
				} else if err != io.EOF {
					s.logger.Error("read error", zap.Error(err))
				}
				return
			}
			if n == 0 {
				return
			}
			lastActivity = time.Now()

			if err := aConn.Receive(ctx, buf[:n]); err != nil {
				if !errors.Is(err, errConnClosed) {
					s.logger.Error("error handling packets", zap.Error(err))
				}
				return
			}
		}
	}
}
