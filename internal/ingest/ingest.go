// Package ingest is the TCP front door for the demuxer: it accepts a raw
// pushed FLV byte stream on one connection, drives it through
// internal/flvdemux, and republishes the two resulting sample streams as
// independent smux streams so a downstream consumer can read audio and
// video without its own framing.
//
// Grounded on the teacher's device_connect/core.Source subscribe/channel
// idiom (one channel per sample kind, fed by a single source goroutine),
// adapted here to smux streams instead of Go channels since the consumer
// is a separate process over the network rather than an in-process reader.
package ingest

import (
	"io"
	"log/slog"
	"net"

	"github.com/pires/go-proxyproto"
	"github.com/pkg/errors"
	"github.com/xtaci/smux"

	"github.com/streamworks/flvdemux/internal/flvdemux"
)

// Server accepts FLV ingest connections on a TCP listener.
type Server struct {
	log        *slog.Logger
	ln         net.Listener
	proxyProto bool
}

// Config controls how the ingest server listens.
type Config struct {
	Addr string
	// ProxyProtocol, when true, wraps the listener so it expects a PROXY
	// protocol v1/v2 header as the first bytes of each connection, for
	// deployments fronted by an L4 load balancer.
	ProxyProtocol bool
}

// New creates a Server bound to cfg.Addr. It does not start accepting
// connections until Serve is called.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "ingest: listen on %s", cfg.Addr)
	}
	if cfg.ProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln}
	}
	return &Server{log: logger, ln: ln, proxyProto: cfg.ProxyProtocol}, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Serve accepts connections until the listener is closed, handling each on
// its own goroutine.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "ingest: accept")
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	log := s.log.With("remote", conn.RemoteAddr().String())
	log.Info("ingest: connection accepted")

	sess, err := smux.Server(conn, smux.DefaultConfig())
	if err != nil {
		log.Warn("ingest: smux handshake failed", "error", err)
		return
	}
	defer sess.Close()

	audioStream, err := sess.AcceptStream()
	if err != nil {
		log.Warn("ingest: audio stream accept failed", "error", err)
		return
	}
	videoStream, err := sess.AcceptStream()
	if err != nil {
		log.Warn("ingest: video stream accept failed", "error", err)
		return
	}

	d := flvdemux.New(log)
	if err := d.Start(nil, false); err != nil {
		log.Warn("ingest: demuxer start failed", "error", err)
		return
	}
	defer d.Stop()

	buf := make([]byte, 32*1024)
	for {
		n, readErr := conn.Read(buf)
		var chunk []byte
		if n > 0 {
			chunk = append([]byte{}, buf[:n]...)
		}

		for {
			ev, err := d.HandleBuffer(chunk)
			chunk = nil // only the first HandleBuffer in this inner loop pushes new bytes
			if err != nil {
				log.Warn("ingest: fatal demux error", "error", err)
				return
			}
			if !dispatchEvent(log, audioStream, videoStream, ev) {
				break
			}
		}

		if readErr != nil {
			if readErr != io.EOF {
				log.Warn("ingest: read error", "error", readErr)
			}
			return
		}
	}
}

// dispatchEvent writes a BufferForStream payload to the matching smux
// stream and reports whether the caller should immediately poll again
// (false only for EventNeedMoreData, when the loop must wait for more
// bytes; true for every other event kind).
func dispatchEvent(log *slog.Logger, audioStream, videoStream *smux.Stream, ev flvdemux.Event) bool {
	switch ev.Kind {
	case flvdemux.EventNeedMoreData:
		return false
	case flvdemux.EventAgain:
		return true
	case flvdemux.EventBufferForStream:
		dst := audioStream
		if ev.StreamID == flvdemux.VideoStreamID {
			dst = videoStream
		}
		if _, err := dst.Write(ev.Buffer.Data); err != nil {
			log.Warn("ingest: smux write failed", "stream", ev.StreamID, "error", err)
		}
		return true
	case flvdemux.EventStreamAdded, flvdemux.EventStreamChanged:
		log.Info("ingest: stream caps", "kind", ev.Stream.Kind, "caps", ev.Stream.Caps.String())
		return true
	case flvdemux.EventStreamsChanged:
		for _, st := range ev.Streams {
			log.Info("ingest: stream caps changed", "kind", st.Kind, "caps", st.Caps.String())
		}
		return true
	case flvdemux.EventHaveAllStreams:
		log.Info("ingest: all streams discovered")
		return true
	}
	return true
}
