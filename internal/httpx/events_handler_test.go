package httpx

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-hardware-checkout/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openStream(t *testing.T, b *events.Broadcaster, keepalive time.Duration) (*bufio.Reader, func()) {
	t.Helper()
	log := zap.NewNop()
	srv := httptest.NewServer(NewRouter(log, &EventsHandler{Broadcaster: b, Keepalive: keepalive, Log: log}))

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/low-stock", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	return bufio.NewReader(resp.Body), func() {
		cancel()
		_ = resp.Body.Close()
		srv.Close()
	}
}

func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var sb strings.Builder
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" {
			return sb.String()
		}
		sb.WriteString(line)
	}
}

func TestLowStockStreamDeliversAlerts(t *testing.T) {
	b := events.NewBroadcaster(4, zap.NewNop())
	defer b.Close()

	r, done := openStream(t, b, time.Hour)
	require.Eventually(t, func() bool { return b.Len() == 1 }, time.Second, 5*time.Millisecond)

	b.Publish(events.LowStockAlert{ProductID: 7, ProductName: "Martillo", BranchID: 2, BranchName: "Centro", CurrentStock: 8})

	frame := readFrame(t, r)
	assert.Contains(t, frame, "event: low_stock_alert\n")
	assert.Contains(t, frame, `"productId":7`)
	assert.Contains(t, frame, `"currentStock":8`)

	done()
	assert.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestLowStockStreamKeepalive(t *testing.T) {
	b := events.NewBroadcaster(4, zap.NewNop())
	defer b.Close()

	r, done := openStream(t, b, 20*time.Millisecond)
	defer done()

	assert.Equal(t, ": keepalive\n", readFrame(t, r))
}
