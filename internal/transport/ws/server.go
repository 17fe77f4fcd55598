package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"itemconverter.ai/internal/protocol"
	"itemconverter.ai/internal/sim/session"
)

type Server struct {
	session *session.Session
	log     *log.Logger
	// Token, when set, must match HELLO auth.token.
	Token string

	upgrader websocket.Upgrader
}

func NewServer(s *session.Session, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		session: s,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		playerID, out := s.handshake(conn)
		if playerID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
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

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			env, ok := s.decode(playerID, msg)
			if !ok {
				continue
			}
			select {
			case s.session.Inbox() <- env:
			default:
				s.busy(out, env)
			}
		}

		// Cleanup.
		s.session.Leave() <- playerID
	}
}

// decode turns one client frame into an envelope. Frames with an unknown
// type, a foreign protocol version or a malformed body are dropped.
func (s *Server) decode(playerID string, msg []byte) (session.Envelope, bool) {
	env := session.Envelope{PlayerID: playerID}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.log.Printf("WARN %s: undecodable frame dropped: %v", playerID, err)
		return env, false
	}
	if base.ProtocolVersion != protocol.Version {
		s.log.Printf("WARN %s: %s with protocol_version %q dropped", playerID, base.Type, base.ProtocolVersion)
		return env, false
	}
	switch base.Type {
	case protocol.TypeConvert:
		var m protocol.ConvertMsg
		if err = json.Unmarshal(msg, &m); err == nil {
			m.RequestID = ensureID(m.RequestID)
			env.Convert = &m
		}
	case protocol.TypeConvertTarget:
		var m protocol.ConvertTargetMsg
		if err = json.Unmarshal(msg, &m); err == nil {
			m.RequestID = ensureID(m.RequestID)
			env.Target = &m
		}
	case protocol.TypeTargetsQuery:
		var m protocol.TargetsQueryMsg
		if err = json.Unmarshal(msg, &m); err == nil {
			m.RequestID = ensureID(m.RequestID)
			env.Query = &m
		}
	default:
		s.log.Printf("WARN %s: unexpected message type %q dropped", playerID, base.Type)
		return env, false
	}
	if err != nil {
		s.log.Printf("WARN %s: malformed %s dropped: %v", playerID, base.Type, err)
		return env, false
	}
	return env, true
}

func ensureID(id string) string {
	if strings.TrimSpace(id) == "" {
		return uuid.NewString()
	}
	return id
}

// busy answers a request the session had no room for.
func (s *Server) busy(out chan []byte, env session.Envelope) {
	var id string
	switch {
	case env.Convert != nil:
		id = env.Convert.RequestID
	case env.Target != nil:
		id = env.Target.RequestID
	case env.Query != nil:
		id = env.Query.RequestID
	}
	b, _ := json.Marshal(protocol.ConvertResultMsg{
		Type:            protocol.TypeConvertResult,
		ProtocolVersion: protocol.Version,
		RequestID:       id,
		Code:            protocol.ErrBusy,
		Message:         "session queue full",
	})
	select {
	case out <- b:
	default:
	}
}

func (s *Server) handshake(conn *websocket.Conn) (playerID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "bad HELLO")
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}
	if s.Token != "" && (hello.Auth == nil || strings.TrimSpace(hello.Auth.Token) != s.Token) {
		s.log.Printf("WARN rejected HELLO from %q: bad token", hello.PlayerName)
		closeWith(conn, "bad token")
		return "", nil
	}
	if hello.PlayerName == "" {
		hello.PlayerName = "player"
	}

	out = make(chan []byte, 32)
	respCh := make(chan session.JoinResponse, 1)
	s.session.Join() <- session.JoinRequest{
		Name:     hello.PlayerName,
		Creative: hello.Creative,
		Network:  hello.Network,
		Out:      out,
		Resp:     respCh,
	}
	resp := <-respCh

	// Send welcome + catalog immediately.
	if !s.greet(func(v any) error { return writeJSON(conn, v) }, resp) {
		return "", nil
	}
	return resp.Welcome.PlayerID, out
}

// greet writes the join response. If the client is gone the player is handed
// back to the session.
func (s *Server) greet(write func(any) error, resp session.JoinResponse) bool {
	for _, v := range []any{resp.Welcome, resp.Catalog} {
		if err := write(v); err != nil {
			s.log.Printf("handshake write to %s: %v", resp.Welcome.PlayerID, err)
			s.session.Leave() <- resp.Welcome.PlayerID
			return false
		}
	}
	return true
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
