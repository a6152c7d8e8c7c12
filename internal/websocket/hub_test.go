package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crm/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testSecret = []byte("hub-test-secret")

func newServer(t *testing.T, ctx context.Context, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ServeWs(ctx, hub, c, testSecret) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, org uuid.UUID) *websocket.Conn {
	t.Helper()
	token, err := middleware.IssueToken(testSecret, middleware.Claims{
		UserID: uuid.New(), Role: "Sales", OrganizationID: org,
	}, time.Minute)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_DeliversToOwnOrganizationOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(8, zap.NewNop(), nil)
	go hub.Run(ctx)
	srv := newServer(t, ctx, hub)

	orgA, orgB := uuid.New(), uuid.New()
	connA := dial(t, srv, orgA)
	connB := dial(t, srv, orgB)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	quoteID := uuid.New()
	hub.Publish(Event{Type: EventApprovalApproved, OrganizationID: orgA, QuoteID: quoteID, Role: "Manager"})

	require.NoError(t, connA.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := connA.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, EventApprovalApproved, got.Type)
	assert.Equal(t, quoteID, got.QuoteID)
	assert.Equal(t, "Manager", got.Role)
	assert.False(t, got.At.IsZero())

	require.NoError(t, connB.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = connB.ReadMessage()
	assert.Error(t, err, "organization B must not receive organization A's events")
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	hub := NewHub(1, zap.New(core), nil)

	done := make(chan struct{})
	go func() {
		hub.Publish(Event{Type: EventQuoteSent})
		hub.Publish(Event{Type: EventQuoteSent})
		hub.Publish(Event{Type: EventQuoteSent})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
	assert.Equal(t, 2, logs.FilterMessage("notification dropped: hub buffer full").Len())
}

func TestServeWs_RejectsBadToken(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(1, zap.NewNop(), nil)
	go hub.Run(ctx)
	srv := newServer(t, ctx, hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	for _, q := range []string{"", "?token=garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(url+q, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, 401, resp.StatusCode)
	}
}
