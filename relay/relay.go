package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"guestbook/logger"
	"guestbook/metrics"
	"guestbook/models"
)

// Sink is the persistence boundary the relay writes to.
type Sink interface {
	Insert(ctx context.Context, rec models.Record) error
}

// Server receives URL-encoded form datagrams, stamps them with a server-side
// timestamp and hands them to the sink. One-way: no reply is ever sent.
type Server struct {
	addr       string
	bufferSize int
	maxMsgLen  int
	sink       Sink
	conn       *net.UDPConn
}

func New(addr string, bufferSize, maxMsgLen int, sink Sink) *Server {
	return &Server{addr: addr, bufferSize: bufferSize, maxMsgLen: maxMsgLen, sink: sink}
}

// Start binds the UDP socket. Serve must be called afterwards.
func (s *Server) Start() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("resolve udp address %s: %w", s.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", s.addr, err)
	}
	s.conn = conn
	logger.Info("udp relay listening", logger.FieldKV("addr", conn.LocalAddr().String()))
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve blocks on the receive loop until the socket is closed or ctx is
// cancelled. Datagrams are handled one at a time; a bad or failed record
// never stops the listener.
func (s *Server) Serve(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("relay not started")
	}
	buf := make([]byte, s.bufferSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error("udp read", err)
			continue
		}
		metrics.IncDatagramsReceived()
		s.handle(ctx, buf[:n], from)
	}
}

// Stop closes the socket, unblocking Serve.
func (s *Server) Stop() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Server) handle(ctx context.Context, payload []byte, from *net.UDPAddr) {
	rec, err := models.DecodeForm(payload)
	if err != nil {
		metrics.IncRecordsDropped()
		logger.Error("decode datagram", err, logger.FieldKV("from", from.String()))
		return
	}
	if err := rec.Validate(s.maxMsgLen); err != nil {
		metrics.IncRecordsDropped()
		logger.Debug("skipped insert", logger.FieldKV("reason", err.Error()), logger.FieldKV("from", from.String()))
		return
	}

	// Bare UDP senders may omit the message id the HTTP server assigns.
	if rec.MessageID == "" {
		rec.MessageID = uuid.NewString()
	}
	rec.Timestamp = time.Now().Format(models.TimestampLayout)

	if err := s.sink.Insert(ctx, rec); err != nil {
		metrics.IncStoreErrors()
		logger.Error("insert record", err, logger.FieldKV("message_id", rec.MessageID))
		return
	}
	metrics.IncRecordsStored()
	logger.Info("record stored",
		logger.FieldKV("message_id", rec.MessageID),
		logger.FieldKV("username", rec.Username),
	)
}
