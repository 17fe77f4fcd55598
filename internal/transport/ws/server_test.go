package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/protocol"
	"itemconverter.ai/internal/sim/catalogs"
	"itemconverter.ai/internal/sim/session"
)

// syncBuffer is a log sink safe to read while the session writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testServer struct {
	url  string
	srv  *Server
	logs *syncBuffer
}

func startServer(t *testing.T, token string, creative ...string) testServer {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	require.NoError(t, err)
	logs := &syncBuffer{}
	logger := log.New(logs, "", 0)
	s := session.New(session.Config{
		TickRateHz:      50,
		SpecialTags:     []string{"currency"},
		RulesDir:        "../../../configs/rules",
		CreativePlayers: creative,
	}, cats, session.Deps{Logger: logger})
	_, err = s.Reload()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()

	srv := NewServer(s, logger)
	srv.Token = token
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		cancel()
	})
	return testServer{url: "ws" + strings.TrimPrefix(hs.URL, "http"), srv: srv, logs: logs}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

// readUntil skips frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, b, err := conn.ReadMessage()
		require.NoError(t, err)
		base, err := protocol.DecodeBase(b)
		require.NoError(t, err)
		if base.Type != want {
			continue
		}
		if v != nil {
			require.NoError(t, json.Unmarshal(b, v))
		}
		return
	}
}

func hello(t *testing.T, conn *websocket.Conn, creative bool, token string) protocol.WelcomeMsg {
	t.Helper()
	m := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      "tester",
		Creative:        creative,
	}
	if token != "" {
		m.Auth = &protocol.HelloAuth{Token: token}
	}
	send(t, conn, m)
	var w protocol.WelcomeMsg
	readUntil(t, conn, protocol.TypeWelcome, &w)
	var c protocol.CatalogMsg
	readUntil(t, conn, protocol.TypeCatalog, &c)
	require.NotEmpty(t, c.Items)
	return w
}

func creativeConvert(t *testing.T, conn *websocket.Conn) protocol.ConvertResultMsg {
	t.Helper()
	send(t, conn, protocol.ConvertMsg{
		Type:            protocol.TypeConvert,
		ProtocolVersion: protocol.Version,
		Source:          protocol.SourceRef{Kind: protocol.SourceCreative, Item: &item.Spec{Item: "GOLD_INGOT"}},
		Target:          item.Spec{Item: "GOLD_NUGGET"},
		Count:           1,
		Policy:          "TO_STORAGE",
	})
	var res protocol.ConvertResultMsg
	readUntil(t, conn, protocol.TypeConvertResult, &res)
	return res
}

func TestServer_HandshakeAndCreativeConvert(t *testing.T) {
	conn := dial(t, startServer(t, "", "tester").url)
	w := hello(t, conn, true, "")
	require.NotEmpty(t, w.PlayerID)
	require.Equal(t, protocol.Version, w.ProtocolVersion)

	res := creativeConvert(t, conn)
	require.True(t, res.OK, "result: %+v", res)
	require.NotEmpty(t, res.RequestID)
	require.NotNil(t, res.Produced)
	require.Equal(t, "GOLD_NUGGET", res.Produced.Item)
	require.Equal(t, int64(9), res.Produced.Count)
}

func TestServer_CreativeClaimWithoutPermission(t *testing.T) {
	ts := startServer(t, "", "someone-else")
	conn := dial(t, ts.url)
	w := hello(t, conn, true, "")

	res := creativeConvert(t, conn)
	require.False(t, res.OK)
	require.Equal(t, protocol.ErrBadRequest, res.Code)
	require.Nil(t, res.Produced)
	require.Contains(t, ts.logs.String(), "WARN join: "+w.PlayerID+` name="tester" claimed creative mode without permission`)
}

func TestServer_FailedGreetingReleasesPlayer(t *testing.T) {
	ts := startServer(t, "")
	respCh := make(chan session.JoinResponse, 1)
	ts.srv.session.Join() <- session.JoinRequest{Name: "ghost", Out: make(chan []byte, 1), Resp: respCh}
	resp := <-respCh
	require.NotEmpty(t, resp.Welcome.PlayerID)

	var wrote int
	ok := ts.srv.greet(func(any) error {
		wrote++
		if wrote == 2 {
			return errors.New("connection reset")
		}
		return nil
	}, resp)
	require.False(t, ok)
	require.Eventually(t, func() bool {
		return strings.Contains(ts.logs.String(), "leave: "+resp.Welcome.PlayerID)
	}, 3*time.Second, 10*time.Millisecond)
}

func TestServer_DropsForeignVersionAndAnswersNextQuery(t *testing.T) {
	conn := dial(t, startServer(t, "").url)
	hello(t, conn, false, "")

	send(t, conn, protocol.TargetsQueryMsg{
		Type:            protocol.TypeTargetsQuery,
		ProtocolVersion: "0.9",
		RequestID:       "stale",
		Source:          item.Spec{Item: "GOLD_INGOT"},
	})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	send(t, conn, protocol.TargetsQueryMsg{
		Type:            protocol.TypeTargetsQuery,
		ProtocolVersion: protocol.Version,
		RequestID:       "q1",
		Source:          item.Spec{Item: "GOLD_INGOT"},
	})

	var tm protocol.TargetsMsg
	readUntil(t, conn, protocol.TypeTargets, &tm)
	require.Equal(t, "q1", tm.RequestID)
	require.Len(t, tm.Targets, 1)
	require.Equal(t, "GOLD_NUGGET", tm.Targets[0].Item.Item)
	require.Equal(t, int64(9), tm.Targets[0].Item.Count)
	require.True(t, tm.Targets[0].Special)
}

func TestServer_RejectsNonHello(t *testing.T) {
	conn := dial(t, startServer(t, "").url)
	send(t, conn, protocol.TargetsQueryMsg{Type: protocol.TypeTargetsQuery, ProtocolVersion: protocol.Version})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "err: %v", err)
}

func TestServer_RequiresToken(t *testing.T) {
	url := startServer(t, "s3cret").url

	bad := dial(t, url)
	send(t, bad, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "x"})
	_ = bad.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := bad.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "err: %v", err)

	good := dial(t, url)
	w := hello(t, good, false, "s3cret")
	require.NotEmpty(t, w.PlayerID)
}
