package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/jolt-daemon/jolt/internal/jerr"
	"github.com/jolt-daemon/jolt/internal/model"
)

// Store is the subset of *storage.DB the IPC server needs to answer
// queries. Narrowed to an interface so the server is testable against
// an in-memory fake.
type Store interface {
	RecentSamples(limit int) ([]model.Sample, error)
	HourlyStatsRange(from, to int64) ([]model.HourlyStat, error)
	DailyStatsRange(fromDay, toDay string) ([]model.DailyStat, error)
	SessionsRange(from, to int64, kind *model.SessionKind) ([]model.ChargeSession, error)
	TopProcesses(day string) ([]model.DailyTopProcess, error)
}

// StatusProvider supplies the live daemon status GetStatus answers with.
type StatusProvider interface {
	Status() StatusResponse
}

// Server accepts connections on a Unix domain socket and answers jolt's
// IPC protocol. Killing a process is the one operation with no storage
// or business-logic equivalent; it is implemented directly against the
// OS process table (os.FindProcess + Signal).
type Server struct {
	log      *slog.Logger
	store    Store
	status   StatusProvider
	hub      *Hub
	listener net.Listener

	shutdown chan struct{}
}

// NewServer constructs a Server; call Serve to start accepting.
func NewServer(log *slog.Logger, store Store, status StatusProvider, hub *Hub) *Server {
	return &Server{
		log:      log,
		store:    store,
		status:   status,
		hub:      hub,
		shutdown: make(chan struct{}),
	}
}

// Shutdown returns a channel closed when a client sends a KindShutdown
// request; the daemon's start command selects on it to exit cleanly.
func (s *Server) Shutdown() <-chan struct{} { return s.shutdown }

// Serve listens on the Unix socket at path (mode 0600, removing any
// stale socket file left by a prior unclean exit) and blocks accepting
// connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen on socket %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = listener

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var sub *Subscriber
	defer func() {
		if sub != nil {
			s.hub.Unregister(sub)
		}
	}()

	writeCh := make(chan []byte, outboxCapacity)
	done := make(chan struct{})
	go s.writePump(conn, writeCh, done)
	defer func() {
		close(writeCh)
		<-done
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			s.writeError(writeCh, jerr.InvalidRequest, "malformed request")
			continue
		}

		if msg.V < MinSupportedVersion || msg.V > ProtocolVersion {
			s.writeError(writeCh, jerr.ProtocolVersion,
				fmt.Sprintf("unsupported protocol version %d", msg.V))
			continue
		}

		switch msg.Kind {
		case KindSubscribe:
			var req SubscribeRequest
			_ = Decode(msg, &req)
			sub = s.hub.NewSubscriber(writeCh)
			s.writeOK(writeCh)
			s.hub.Register(sub)
			go s.watchDropped(sub, conn, done)
		case KindShutdown:
			_ = s.hub.BroadcastShutdown()
			s.writeOK(writeCh)
			close(s.shutdown)
		default:
			s.dispatch(msg, writeCh)
		}
	}
}

// watchDropped waits for a subscriber's writeCh to overflow (the
// connection's single point of backpressure truth — see hub.go) and,
// when it does, sends a lagging error and force-closes the connection
// so the slow reader can't silently miss further events. done signals
// handleConn has already torn the connection down through the normal
// path, so this goroutine never outlives the connection it watches.
func (s *Server) watchDropped(sub *Subscriber, conn net.Conn, done <-chan struct{}) {
	select {
	case <-sub.Dropped():
	case <-done:
		return
	}

	errMsg, err := LaggingError()
	if err == nil {
		if data, err := json.Marshal(errMsg); err == nil {
			select {
			case sub.writeCh <- data:
			default:
			}
		}
	}
	s.hub.Unregister(sub)
	conn.Close()
}

func (s *Server) dispatch(msg Message, writeCh chan<- []byte) {
	switch msg.Kind {
	case KindGetStatus:
		s.write(writeCh, KindStatus, s.status.Status())

	case KindGetRecentSamples:
		var req GetRecentSamplesRequest
		_ = Decode(msg, &req)
		samples, err := s.store.RecentSamples(req.Limit)
		if err != nil {
			s.writeStoreErr(writeCh, err)
			return
		}
		s.write(writeCh, KindSamples, SamplesResponse{Samples: samples})

	case KindGetHourlyStats:
		var req RangeRequest
		_ = Decode(msg, &req)
		stats, err := s.store.HourlyStatsRange(req.From, req.To)
		if err != nil {
			s.writeStoreErr(writeCh, err)
			return
		}
		s.write(writeCh, KindHourlyStats, HourlyStatsResponse{Stats: stats})

	case KindGetDailyStats:
		var req struct {
			From string `json:"from"`
			To   string `json:"to"`
		}
		_ = Decode(msg, &req)
		stats, err := s.store.DailyStatsRange(req.From, req.To)
		if err != nil {
			s.writeStoreErr(writeCh, err)
			return
		}
		s.write(writeCh, KindDailyStats, DailyStatsResponse{Stats: stats})

	case KindGetSessions:
		var req GetSessionsRequest
		_ = Decode(msg, &req)
		sessions, err := s.store.SessionsRange(req.From, req.To, req.Kind)
		if err != nil {
			s.writeStoreErr(writeCh, err)
			return
		}
		s.write(writeCh, KindSessions, SessionsResponse{Sessions: sessions})

	case KindGetTopProcesses:
		var req GetTopProcessesRequest
		_ = Decode(msg, &req)
		procs, err := s.store.TopProcesses(req.Day)
		if err != nil {
			s.writeStoreErr(writeCh, err)
			return
		}
		s.write(writeCh, KindTopProcesses, TopProcessesResponse{Processes: procs})

	case KindKillProcess:
		var req KillProcessRequest
		_ = Decode(msg, &req)
		if err := killProcess(req.PID); err != nil {
			s.writeError(writeCh, jerr.Internal, err.Error())
			return
		}
		s.writeOK(writeCh)

	default:
		s.writeError(writeCh, jerr.InvalidRequest, fmt.Sprintf("unknown request kind %q", msg.Kind))
	}
}

func killProcess(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

func (s *Server) write(writeCh chan<- []byte, kind Kind, payload any) {
	msg, err := Encode(kind, payload)
	if err != nil {
		s.writeError(writeCh, jerr.Internal, "encode response: "+err.Error())
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.writeError(writeCh, jerr.Internal, "marshal response: "+err.Error())
		return
	}
	select {
	case writeCh <- data:
	default:
	}
}

func (s *Server) writeOK(writeCh chan<- []byte) {
	s.write(writeCh, KindOk, nil)
}

func (s *Server) writeError(writeCh chan<- []byte, code jerr.Code, message string) {
	s.write(writeCh, KindError, ErrorResponse{Code: string(code), Message: message})
}

func (s *Server) writeStoreErr(writeCh chan<- []byte, err error) {
	var je *jerr.Error
	if errors.As(err, &je) {
		s.writeError(writeCh, je.Code, je.Message)
		return
	}
	s.writeError(writeCh, jerr.Internal, err.Error())
}

func (s *Server) writePump(conn net.Conn, writeCh <-chan []byte, done chan<- struct{}) {
	defer close(done)
	writer := bufio.NewWriter(conn)
	for data := range writeCh {
		if _, err := writer.Write(data); err != nil {
			return
		}
		if err := writer.WriteByte('\n'); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// pollInterval is the pause tests use between broadcasts while waiting
// for a subscriber's writeCh to drain or for the server to react to it.
const pollInterval = 5 * time.Millisecond
