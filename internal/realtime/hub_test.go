package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
	"github.com/rinkdesk/ice-booking-api/internal/dto"
)

func dial(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func TestHubBroadcastsOccupancyChanges(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn, _, err := dial(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.OccupancyChanged(context.Background(), []booking.Date{booking.NewDate(2025, 3, 6), booking.NewDate(2025, 3, 13)})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var notice dto.OccupancyNotice
	require.NoError(t, json.Unmarshal(raw, &notice))
	assert.Equal(t, NoticeOccupancyChanged, notice.Type)
	assert.Equal(t, []string{"2025-03-06", "2025-03-13"}, notice.Days)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := dial(t, srv, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	hub.OccupancyChanged(context.Background(), nil)
}

func TestHubRejectsForeignOrigins(t *testing.T) {
	hub := NewHub([]string{"https://rink.example.com/"}, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	_, resp, err := dial(t, srv, http.Header{"Origin": []string{"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, srv, http.Header{"Origin": []string{"https://rink.example.com"}})
	require.NoError(t, err)
	conn.Close()
}
