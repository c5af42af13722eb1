package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrnlp/internal/extract"
	"github.com/MeKo-Tech/ocrnlp/internal/testutil/fake"
)

func dialExtract(t *testing.T, s *Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/extract"
	return websocket.DefaultDialer.Dial(url, header)
}

// readMessage reads one message and returns its type and raw payload.
func readMessage(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var head struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(data, &head))
	return head.Type, data
}

func TestWebSocket_StreamsPages(t *testing.T) {
	x := fake.NewExtractor(t, fake.WidthEngine(), fake.PDF(3), fake.Options{MaxPages: 2})
	conn, _, err := dialExtract(t, newTestServer(t, x), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteJSON(WebSocketExtractRequest{
		Filename:    "doc.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.7 stub"),
	}))

	for _, want := range []int{1, 2} {
		typ, data := readMessage(t, conn)
		require.Equal(t, wsTypePage, typ)
		var msg WebSocketPageMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, want, msg.Page)
		require.Len(t, msg.Blocks, 1)
		assert.Equal(t, want, msg.Blocks[0].Page)
	}

	typ, data := readMessage(t, conn)
	require.Equal(t, wsTypeResult, typ)
	var res WebSocketResultMessage
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, 2, res.Count)
}

func TestWebSocket_Errors(t *testing.T) {
	x := fake.NewExtractor(t, fake.Engine([]any{nil, "text", 0.5}), fake.PDF(1), fake.Options{})
	conn, _, err := dialExtract(t, newTestServer(t, x), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	readError := func() WebSocketErrorMessage {
		typ, data := readMessage(t, conn)
		require.Equal(t, wsTypeError, typ)
		var msg WebSocketErrorMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, kindBadRequest, readError().Kind)

	require.NoError(t, conn.WriteJSON(WebSocketExtractRequest{Filename: "empty.png"}))
	msg := readError()
	assert.Equal(t, string(extract.KindEmptyInput), msg.Kind)
	assert.Equal(t, "empty upload", msg.Detail)

	require.NoError(t, conn.WriteJSON(WebSocketExtractRequest{Filename: "notes.txt", ContentType: "text/plain", Data: []byte("hello")}))
	assert.Equal(t, string(extract.KindUnsupportedFormat), readError().Kind)

	// The connection survives failed requests.
	require.NoError(t, conn.WriteJSON(WebSocketExtractRequest{Filename: "scan.png", Data: pngBytes(t)}))
	typ, _ := readMessage(t, conn)
	assert.Equal(t, wsTypePage, typ)
	typ, _ = readMessage(t, conn)
	assert.Equal(t, wsTypeResult, typ)
}

func TestWebSocket_CheckOrigin(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, func(c *Config) { c.CORSOrigin = "https://app.example" })

	_, resp, err := dialExtract(t, s, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dialExtract(t, s, http.Header{"Origin": []string{"https://app.example"}})
	require.NoError(t, err)
	_ = conn.Close()
}
