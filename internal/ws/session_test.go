package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades every request and hands the server side of the
// connection to the test.
func echoServer(t *testing.T) (string, <-chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Gateway-Token") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func open(t *testing.T, url string) *Session {
	t.Helper()
	header := http.Header{}
	header.Set("X-Gateway-Token", "secret")
	s, err := Open(context.Background(), Options{URL: url, Header: header, HandshakeTimeout: 2 * time.Second})
	require.NoError(t, err)
	return s
}

func TestSendAndReceive(t *testing.T) {
	url, conns := echoServer(t)
	s := open(t, url)
	defer s.Close()
	server := <-conns
	defer server.Close()

	require.NoError(t, s.Send([]byte(`{"type":"events"}`)))
	mt, data, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, `{"type":"events"}`, string(data))

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)))
	got, err := s.Receive()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"hello"}`, string(got))
}

func TestHandshakeStatusIsReported(t *testing.T) {
	url, _ := echoServer(t)
	_, err := Open(context.Background(), Options{URL: url, HandshakeTimeout: 2 * time.Second})

	var hsErr *HandshakeError
	require.ErrorAs(t, err, &hsErr)
	assert.Equal(t, http.StatusForbidden, hsErr.StatusCode)
	assert.Contains(t, err.Error(), "gateway token invalid")
}

func TestDialFailureIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := Open(context.Background(), Options{URL: url, HandshakeTimeout: time.Second})
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, url, connErr.URL)
}

func TestReceiveReportsServerClose(t *testing.T) {
	url, conns := echoServer(t)
	s := open(t, url)
	defer s.Close()
	server := <-conns

	require.NoError(t, server.Close())
	_, err := s.Receive()
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestCloseUnblocksReceive(t *testing.T) {
	url, conns := echoServer(t)
	s := open(t, url)
	server := <-conns
	defer server.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := s.Receive()
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(3 * time.Second):
		t.Fatal("Receive still blocked after Close")
	}
}

func TestCloseIsIdempotentAndNilSafe(t *testing.T) {
	url, conns := echoServer(t)
	s := open(t, url)
	server := <-conns
	defer server.Close()

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send([]byte("{}")), ErrConnectionClosed)

	var none *Session
	assert.NoError(t, none.Close())
	assert.True(t, errors.Is(none.Send(nil), ErrConnectionClosed))
}

func TestConcurrentSendsProduceWholeFrames(t *testing.T) {
	url, conns := echoServer(t)
	s := open(t, url)
	defer s.Close()
	server := <-conns
	defer server.Close()

	const writers, each = 10, 20
	payload := `{"type":"measurements","measurements":[` + strings.Repeat(`{"v":1},`, 200) + `{"v":1}]}`

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				assert.NoError(t, s.Send([]byte(payload)))
			}
		}()
	}

	for i := 0; i < writers*each; i++ {
		_, data, err := server.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, payload, string(data))
	}
	wg.Wait()
}
