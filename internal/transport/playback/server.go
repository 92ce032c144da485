package playback

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"ticktrace.gg/internal/persistence/tracefile"
	"ticktrace.gg/internal/trace"
	"ticktrace.gg/internal/traceproto"
)

// Caps on the PLAY handshake.
const (
	maxRate = 1000 // tick advances per second
)

// Server replays stored traces over websockets. One connection streams one
// session, start to end, then closes.
type Server struct {
	dir string
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(dir string, logger *log.Logger) *Server {
	return &Server{
		dir: dir,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) SessionsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		infos, err := tracefile.List(s.dir)
		if err != nil {
			s.log.Printf("list %s: %v", s.dir, err)
			http.Error(rw, "list failed", http.StatusInternalServerError)
			return
		}
		resp := traceproto.SessionsResponse{
			ProtocolVersion: traceproto.Version,
			Sessions:        make([]traceproto.SessionInfo, 0, len(infos)),
		}
		for _, in := range infos {
			resp.Sessions = append(resp.Sessions, traceproto.SessionInfo{Name: in.Name, Size: in.Size})
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) PlayHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send PLAY first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := traceproto.DecodeBase(msg)
		if err != nil || base.Type != traceproto.TypePlay {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected PLAY"), time.Now().Add(time.Second))
			return
		}
		var play traceproto.PlayMsg
		if err := json.Unmarshal(msg, &play); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected PLAY"), time.Now().Add(time.Second))
			return
		}
		if play.ProtocolVersion != traceproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
			return
		}

		s.stream(conn, play)
	}
}

// stream runs the whole post-handshake exchange on one connection.
func (s *Server) stream(conn *websocket.Conn, play traceproto.PlayMsg) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan []byte, 256)

	// Writer goroutine.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-out:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Reader goroutine: the client sends nothing after PLAY, but a read
	// error is how we learn it went away.
	go func() {
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	s.produce(ctx, out, play)
	close(out)

	// Let queued messages drain before the close frame; END must not be cut
	// off by it.
	select {
	case <-writeDone:
	case <-time.After(2 * time.Second):
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
}

// produce decodes the requested session into out.
func (s *Server) produce(ctx context.Context, out chan<- []byte, play traceproto.PlayMsg) {
	fail := func(code, message string, offset int) {
		s.send(ctx, out, traceproto.ErrorMsg{
			Type:            traceproto.TypeError,
			ProtocolVersion: traceproto.Version,
			Code:            code,
			Message:         message,
			Offset:          offset,
		})
	}

	if play.FromTick < 0 || play.Rate < 0 || play.Rate > maxRate {
		fail(traceproto.ErrBadRequest, "bad from_tick or rate", 0)
		return
	}
	path, err := tracefile.Resolve(s.dir, play.Session)
	if err != nil {
		fail(traceproto.ErrBadRequest, err.Error(), 0)
		return
	}
	data, err := tracefile.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fail(traceproto.ErrUnknownSession, play.Session, 0)
			return
		}
		s.log.Printf("read %s: %v", path, err)
		fail(traceproto.ErrInternal, "read failed", 0)
		return
	}

	r, err := trace.NewReader(data)
	if err != nil {
		fail(traceproto.CodeFor(err), err.Error(), traceproto.OffsetFor(err))
		return
	}
	if !s.send(ctx, out, traceproto.FromHeader(play.Session, r.Header())) {
		return
	}

	var limiter *rate.Limiter
	if play.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(play.Rate), play.Rate)
	}

	events := 0
	for {
		ev, err := r.Next()
		if err == io.EOF {
			s.send(ctx, out, traceproto.EndMsg{
				Type:            traceproto.TypeEnd,
				ProtocolVersion: traceproto.Version,
				FinalTick:       r.Tick(),
				Events:          events,
			})
			return
		}
		if err != nil {
			fail(traceproto.CodeFor(err), err.Error(), traceproto.OffsetFor(err))
			return
		}
		if ev.Tick < play.FromTick {
			continue
		}
		if limiter != nil && ev.Kind == trace.EventTick && ev.Delta > 0 {
			// Pace by the ticks this record advances, capped at one
			// second's worth.
			n := int(ev.Delta)
			if n > play.Rate {
				n = play.Rate
			}
			if err := limiter.WaitN(ctx, n); err != nil {
				return
			}
		}
		if !s.send(ctx, out, traceproto.FromEvent(ev)) {
			return
		}
		events++
	}
}

func (s *Server) send(ctx context.Context, out chan<- []byte, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case out <- b:
		return true
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
