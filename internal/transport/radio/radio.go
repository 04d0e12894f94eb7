// ABOUTME: Real radio backend: dials the radio bridge daemon over TCP.
// ABOUTME: Speaks a line handshake followed by length-prefixed frames.

package radio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/macp"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/transport"
)

// DefaultBridgeAddr is where the radio bridge daemon listens.
const DefaultBridgeAddr = "127.0.0.1:19850"

const defaultDialTimeout = 5 * time.Second

// Options configures the radio backend.
type Options struct {
	// BridgeAddr is the TCP address of the radio bridge daemon.
	BridgeAddr string
	// DialTimeout bounds the dial plus handshake.
	DialTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BridgeAddr == "" {
		o.BridgeAddr = DefaultBridgeAddr
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	return o
}

// Transport connects agents through the radio bridge daemon. Each
// Connect opens one TCP session that carries exactly one radio link.
type Transport struct {
	opts   Options
	logger *slog.Logger
}

// New creates a radio transport.
func New(logger *slog.Logger, opts Options) *Transport {
	return &Transport{
		opts:   opts.withDefaults(),
		logger: logger.With("component", "radio"),
	}
}

// Connect dials the bridge and asks it to open the radio link for uri.
// The handshake is one text line each way:
//
//	-> CONNECT <uri> <address as 16 hex digits>
//	<- OK  |  ERR <reason>
//
// After OK both directions switch to frames prefixed with one length
// byte.
func (t *Transport) Connect(ctx context.Context, uri string, address uint64) (transport.Link, error) {
	d := net.Dialer{Timeout: t.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.opts.BridgeAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial bridge %s: %v", transport.ErrConnect, t.opts.BridgeAddr, err)
	}

	deadline := time.Now().Add(t.opts.DialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(conn, "CONNECT %s %016X\n", uri, address); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake write: %v", transport.ErrConnect, err)
	}

	br := bufio.NewReader(conn)
	line, err := br.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake read: %v", transport.ErrConnect, err)
	}
	line = strings.TrimSpace(line)
	if line != "OK" {
		conn.Close()
		reason := strings.TrimPrefix(line, "ERR ")
		return nil, fmt.Errorf("%w: bridge refused %s: %s", transport.ErrConnect, uri, reason)
	}
	_ = conn.SetDeadline(time.Time{})

	l := &link{
		uri:    uri,
		conn:   conn,
		br:     br,
		events: make(chan transport.Event, 64),
		logger: t.logger.With("uri", uri),
	}
	go l.readLoop()

	t.logger.Info("radio link opened", "uri", uri, "bridge", t.opts.BridgeAddr)
	return l, nil
}

type link struct {
	uri    string
	conn   net.Conn
	br     *bufio.Reader
	logger *slog.Logger

	events chan transport.Event

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
	closedMu  sync.Mutex
}

// Send writes one MACP frame prefixed with its length byte.
func (l *link) Send(frame []byte) error {
	if len(frame) == 0 || len(frame) > macp.HeaderSize+macp.MaxPayload {
		return fmt.Errorf("frame of %d bytes exceeds the radio mtu", len(frame))
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	buf := make([]byte, 0, 1+len(frame))
	buf = append(buf, byte(len(frame)))
	buf = append(buf, frame...)
	if _, err := l.conn.Write(buf); err != nil {
		return fmt.Errorf("%w: %s: %v", transport.ErrLinkClosed, l.uri, err)
	}
	return nil
}

func (l *link) Events() <-chan transport.Event { return l.events }

// Close shuts the TCP session down; the read loop then reports a
// clean disconnect.
func (l *link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closedMu.Lock()
		l.closed = true
		l.closedMu.Unlock()
		err = l.conn.Close()
	})
	return err
}

func (l *link) readLoop() {
	for {
		length, err := l.br.ReadByte()
		if err != nil {
			l.finish(err)
			return
		}
		if length == 0 {
			// Bridge keepalive.
			continue
		}
		frame := make([]byte, length)
		if _, err := io.ReadFull(l.br, frame); err != nil {
			l.finish(err)
			return
		}
		l.emit(frame)
	}
}

// emit queues an inbound frame. Frames are dropped when the consumer
// lags; the radio is lossy anyway.
func (l *link) emit(frame []byte) {
	select {
	case l.events <- transport.Event{Frame: frame}:
	default:
		l.logger.Debug("event buffer full, dropping frame")
	}
}

// finish reports the end of the session. A close requested by us is a
// clean disconnect; anything else surfaces as a transport error. The
// terminal event is always delivered, evicting buffered frames if the
// consumer is behind.
func (l *link) finish(cause error) {
	l.closedMu.Lock()
	requested := l.closed
	l.closedMu.Unlock()

	ev := transport.Event{Disconnected: true}
	if !requested {
		ev.Err = fmt.Errorf("%w: %s: %v", transport.ErrLinkClosed, l.uri, cause)
		l.logger.Warn("radio link lost", "error", cause)
	} else {
		l.logger.Info("radio link closed")
	}
	_ = l.conn.Close()

	for {
		select {
		case l.events <- ev:
			close(l.events)
			return
		default:
			select {
			case <-l.events:
			default:
			}
		}
	}
}
