package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	base := testutil.ToFloat64(DroppedSends.WithLabelValues("not_participant"))
	DroppedSends.WithLabelValues("not_participant").Inc()
	if got := testutil.ToFloat64(DroppedSends.WithLabelValues("not_participant")); got != base+1 {
		t.Fatalf("DroppedSends = %v, want %v", got, base+1)
	}

	SessionsActive.Set(2)
	BackendFallbacks.WithLabelValues("presence", "set_online").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{
		"chat_sessions_active 2",
		"chat_dropped_sends_total",
		`chat_backend_fallbacks_total{op="set_online",store="presence"}`,
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}
