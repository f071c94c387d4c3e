package teclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/config"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/signer"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelay_FollowsFixedScheduleThenClamps(t *testing.T) {
	assert.Equal(t, 1*time.Second, backoffDelay(1))
	assert.Equal(t, 2*time.Second, backoffDelay(2))
	assert.Equal(t, 4*time.Second, backoffDelay(3))
	assert.Equal(t, 4*time.Second, backoffDelay(4))
	assert.Equal(t, 4*time.Second, backoffDelay(100))
}

// TestDoRequest_SignsTheSameVersionedPathItRequests guards against the
// signed path silently drifting from the requested one: the base URL's
// version prefix (e.g. "/v9") must appear in both, or TE rejects the
// signature with a 401.
func TestDoRequest_SignsTheSameVersionedPathItRequests(t *testing.T) {
	var gotPath, gotSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSig = r.Header.Get("X-Signature")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := config.TEConfig{BaseURL: server.URL + "/v9", Token: "tok", Secret: "sekret", Timeout: 5}
	client, err := New(cfg, 1, logrus.New())
	require.NoError(t, err)

	var out map[string]interface{}
	err = client.getJSON(context.Background(), "/listings", map[string]string{"event_id": "42"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "/v9/listings", gotPath)

	host := strings.TrimPrefix(strings.TrimPrefix(server.URL, "http://"), "https://")
	expectedSig := signer.Sign("sekret", http.MethodGet, host, "/v9/listings", map[string]string{"event_id": "42"})
	assert.Equal(t, expectedSig, gotSig)
}
