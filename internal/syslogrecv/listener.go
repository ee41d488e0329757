// Package syslogrecv implements the UDP syslog receiver ((ADDED),
// named in the §2 share table and specified on the wire in §6): a
// cancellable listener that decodes RFC 3164/5424 frames and fans
// them out on a channel for internal/events.NormalizeSyslog to
// consume.
package syslogrecv

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// readBufferSize bounds one UDP datagram read.
const readBufferSize = 64 * 1024

// Config configures a Listener.
type Config struct {
	Addr  string // e.g. ":5514"
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Listener owns a UDP socket and decodes inbound datagrams into
// Frames, publishing them on a channel. It has no reference back to
// its consumer, mirroring the teacher's broadcaster-not-caller
// logging hub shape, to avoid a receiver->pipeline->receiver cycle.
type Listener struct {
	cfg    Config
	conn   *net.UDPConn
	frames chan Frame
	log    zerolog.Logger
}

// New resolves addr and binds the UDP socket. The socket is not
// listening for reads until Run is called.
func New(cfg Config, log zerolog.Logger) (*Listener, error) {
	cfg = cfg.withDefaults()
	addr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{
		cfg:    cfg,
		conn:   conn,
		frames: make(chan Frame, 256),
		log:    log,
	}, nil
}

// Frames returns the channel Run publishes decoded frames on. Callers
// must keep draining it; Run drops a frame rather than blocking
// indefinitely once the buffer is full.
func (l *Listener) Frames() <-chan Frame {
	return l.frames
}

// Run reads datagrams until ctx is cancelled, then closes the socket
// and the frames channel.
func (l *Listener) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.conn.Close()
	}()
	defer close(l.frames)

	buf := make([]byte, readBufferSize)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Warn().Err(err).Msg("syslogrecv: read failed")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		frame := ParseFrame(data, l.cfg.Clock())

		select {
		case l.frames <- frame:
		default:
			l.log.Warn().Msg("syslogrecv: frame buffer full, dropping datagram")
		}
	}
}
