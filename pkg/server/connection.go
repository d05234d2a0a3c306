package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/dd0wney/cluso-apx/pkg/filemanager"
	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/rmf"
)

// conn is one accepted client connection
type conn struct {
	id       uint32
	netConn  net.Conn
	fm       *filemanager.Manager
	accepted time.Time
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// acceptBackoff doubles the wait after a failed Accept, from minAcceptDelay
// up to maxAcceptDelay. Running out of file descriptors fails every Accept
// until a connection closes.
func acceptBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}
	return min(2*prev, maxAcceptDelay)
}

// acceptConnections accepts clients until the listener closes. A semaphore
// bounds the connection handlers; past the limit a connection is closed at
// once.
func (s *Server) acceptConnections(ln net.Listener) {
	defer s.wg.Done()

	sem := make(chan struct{}, s.cfg.MaxConnections)
	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			delay = acceptBackoff(delay)
			s.logger.Warn("accept failed", logging.Error(err), logging.Duration("retry_in", delay))
			if s.metrics != nil {
				s.metrics.RecordProtocolError("accept")
			}
			select {
			case <-s.stopCh:
				return
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		select {
		case sem <- struct{}{}:
			c, ok := s.register(nc)
			if !ok {
				<-sem
				nc.Close()
				continue
			}
			s.wg.Add(1)
			go func() {
				defer func() { <-sem }()
				s.handleConnection(c)
			}()
		default:
			s.logger.Warn("connection rejected: at capacity",
				logging.Remote(nc.RemoteAddr().String()), logging.Count(s.cfg.MaxConnections))
			if s.metrics != nil {
				s.metrics.RecordConnectionRejected()
			}
			nc.Close()
		}
	}
}

// register assigns nc a connection id. It fails once Stop has begun.
func (s *Server) register(nc net.Conn) (*conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopCh:
		return nil, false
	default:
	}
	id := s.allocateID()
	c := &conn{
		id:      id,
		netConn: nc,
		fm: filemanager.New(filemanager.ModeServer, id,
			filemanager.WithLogger(s.logger),
			filemanager.WithMetrics(s.metrics)),
		accepted: time.Now(),
	}
	s.conns[id] = c
	return c, true
}

func (s *Server) release(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

// handleConnection runs one client session: attach the file manager, wait
// for the greeting, acknowledge it, then feed every message to the file
// manager until the client goes away.
func (s *Server) handleConnection(c *conn) {
	defer s.wg.Done()
	defer s.release(c)
	defer c.netConn.Close()

	logger := s.logger.With(logging.ConnectionID(c.id), logging.Remote(c.netConn.RemoteAddr().String()))
	if s.metrics != nil {
		s.metrics.RecordConnectionAccepted()
		defer func() { s.metrics.RecordConnectionClosed(time.Since(c.accepted)) }()
	}

	if err := s.nodes.AttachFileManager(c.fm); err != nil {
		logger.Error("failed to attach file manager", logging.Error(err))
		return
	}
	if err := s.events.AttachConnection(c.fm); err != nil {
		logger.Warn("failed to attach event stream", logging.Error(err))
	}
	s.eachListener(func(l ConnectionListener) { l.ConnectionOpened(c.id) })
	logger.Info("client connected")

	defer func() {
		c.fm.Stop()
		s.events.DetachConnection(c.fm)
		s.nodes.DetachFileManager(c.fm)
		s.eachListener(func(l ConnectionListener) { l.ConnectionClosed(c.id) })
		logger.Info("client disconnected", logging.Duration("lifetime", time.Since(c.accepted)))
	}()

	reader := rmf.NewReader(c.netConn, rmf.DefaultMaxMessage)
	writer := rmf.NewWriter(c.netConn)

	if err := s.readGreeting(c.netConn, reader); err != nil {
		logger.Warn("handshake failed", logging.Error(err))
		return
	}

	c.fm.Start(filemanager.TransmitFunc(writer.WriteMessage))
	c.fm.SendAck()
	c.fm.OnHeaderAccepted()

	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("read failed", logging.Error(err))
			}
			return
		}
		if err := c.fm.ParseMessage(msg); err != nil {
			logger.Debug("message rejected", logging.Bytes(len(msg)), logging.Error(err))
		}
	}
}

// readGreeting reads the greeting under the handshake deadline
func (s *Server) readGreeting(nc net.Conn, reader *rmf.Reader) error {
	timeout := s.cfg.HandshakeTimeout
	if err := nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	msg, err := reader.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read greeting (timeout=%v): %w", timeout, err)
	}
	if _, err := rmf.ParseGreeting(msg); err != nil {
		return err
	}
	return nc.SetReadDeadline(time.Time{})
}
