package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captjreacher/pimp-my-brand/internal/audit"
	"github.com/captjreacher/pimp-my-brand/internal/content"
	"github.com/captjreacher/pimp-my-brand/internal/database"
	"github.com/captjreacher/pimp-my-brand/internal/database/boltstore"
	"github.com/captjreacher/pimp-my-brand/internal/events"
	"github.com/captjreacher/pimp-my-brand/internal/modqueue"
	"github.com/captjreacher/pimp-my-brand/internal/notify"
	"github.com/captjreacher/pimp-my-brand/internal/orchestrator"
	"github.com/captjreacher/pimp-my-brand/internal/pipeline"
	"github.com/captjreacher/pimp-my-brand/internal/risk"
)

// testServer wraps the HTTP server with the content store so tests can seed
// records for fetch-then-scan requests.
type testServer struct {
	*httptest.Server
	content *boltstore.ContentStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := database.Open(ctx, database.BackendBolt, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	contentStore, ok := store.Content().(*boltstore.ContentStore)
	require.True(t, ok)

	queue := modqueue.NewQueue(store.Queue())
	trail := audit.NewTrail(store.Audit())
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	orch := orchestrator.New(trail, bus, notify.NewLogDispatcher(), queue, nil)
	orch.RegisterHealthCheck("queue", func(ctx context.Context) error {
		_, err := store.Queue().CountByStatus(ctx)
		return err
	})

	api := &apiServer{
		pipe:    pipeline.New(risk.NewAnalyzer(), orch, queue, bus),
		queue:   queue,
		orch:    orch,
		trail:   trail,
		content: store.Content(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", api.handleHealthz)
	mux.HandleFunc("POST /v1/content/scan", api.handleScan)
	mux.HandleFunc("GET /v1/queue", api.handleListQueue)
	mux.HandleFunc("GET /v1/queue/stats", api.handleQueueStats)
	mux.HandleFunc("POST /v1/queue/{id}/moderate", api.handleModerate)
	mux.HandleFunc("POST /v1/queue/{id}/escalate", api.handleEscalate)
	mux.HandleFunc("GET /v1/audit", api.handleListAudit)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, content: contentStore}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func riskyScanRequest(contentID string) map[string]any {
	return map[string]any{
		"content_type": "brand",
		"content_id":   contentID,
		"user_id":      "user-9",
		"title":        "Cheap cracked software",
		"description": "We sell cracked and hacked licenses from stolen corporate accounts, no shit. " +
			"Only an asshole pays retail; this is not a scam, it is a fucking good deal. " +
			strings.Repeat("Every serious professional needs reliable software at a fair price point. ", 6),
	}
}

func TestScanAndModerateFlow(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/content/scan", riskyScanRequest("brand-1"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var scan struct {
		Score   risk.Score     `json:"score"`
		Flagged bool           `json:"flagged"`
		Item    *modqueue.Item `json:"queue_item"`
	}
	decodeJSON(t, resp, &scan)

	require.True(t, scan.Flagged)
	require.NotNil(t, scan.Item)
	assert.True(t, scan.Score.AutoFlag)
	assert.Equal(t, modqueue.StatusPending, scan.Item.Status)
	assert.True(t, scan.Item.AutoFlagged)

	t.Run("moderate the flagged item", func(t *testing.T) {
		resp := postJSON(t, fmt.Sprintf("%s/v1/queue/%s/moderate", srv.URL, scan.Item.ID), map[string]any{
			"moderator_id": "mod-1",
			"status":       "approved",
			"notes":        "false positive",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Data    modqueue.Item `json:"data"`
			AuditID string        `json:"audit_id"`
		}
		decodeJSON(t, resp, &out)
		assert.Equal(t, modqueue.StatusApproved, out.Data.Status)
		assert.NotEmpty(t, out.AuditID)
	})

	t.Run("second decision conflicts", func(t *testing.T) {
		resp := postJSON(t, fmt.Sprintf("%s/v1/queue/%s/moderate", srv.URL, scan.Item.ID), map[string]any{
			"moderator_id": "mod-2",
			"status":       "rejected",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("queue reflects the decision", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/v1/queue?status=approved")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Items []modqueue.Item `json:"items"`
		}
		decodeJSON(t, resp, &out)
		require.Len(t, out.Items, 1)
		assert.Equal(t, scan.Item.ID, out.Items[0].ID)
	})

	t.Run("actions are audited", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/v1/audit?actor_id=mod-1")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Entries []audit.Entry `json:"entries"`
		}
		decodeJSON(t, resp, &out)
		require.Len(t, out.Entries, 1)
		assert.Equal(t, "moderate_content", out.Entries[0].ActionType)
		require.NotNil(t, out.Entries[0].Success)
		assert.True(t, *out.Entries[0].Success)
	})
}

func TestScanCleanContent(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/content/scan", map[string]any{
		"content_type": "cv",
		"content_id":   "cv-1",
		"user_id":      "user-1",
		"title":        "Senior Backend Engineer",
		"description": "Ten years building distributed systems in Go and Rust. " +
			strings.Repeat("Led platform teams through several successful migrations. ", 4),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var scan struct {
		Flagged bool           `json:"flagged"`
		Item    *modqueue.Item `json:"queue_item"`
	}
	decodeJSON(t, resp, &scan)
	assert.False(t, scan.Flagged)
	assert.Nil(t, scan.Item)
}

func TestScanRejectsUnknownContentType(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/content/scan", map[string]any{
		"content_type": "video",
		"content_id":   "v-1",
		"user_id":      "user-1",
		"description":  "some text",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScanFetchesFromContentStore(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	risky := riskyScanRequest("brand-7")
	require.NoError(t, srv.content.PutRecord(ctx, content.Record{
		ID:          "brand-7",
		ContentType: content.TypeBrand,
		UserID:      "user-7",
		Title:       risky["title"].(string),
		Description: risky["description"].(string),
		CreatedAt:   time.Now().UTC(),
	}))

	// Only a content id: the server loads the record itself.
	resp := postJSON(t, srv.URL+"/v1/content/scan", map[string]any{
		"content_type": "brand",
		"content_id":   "brand-7",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var scan struct {
		Flagged bool           `json:"flagged"`
		Item    *modqueue.Item `json:"queue_item"`
	}
	decodeJSON(t, resp, &scan)
	require.True(t, scan.Flagged)
	require.NotNil(t, scan.Item)
	assert.Equal(t, "user-7", scan.Item.UserID, "user id comes from the stored record")

	t.Run("unknown content id", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/v1/content/scan", map[string]any{
			"content_type": "brand",
			"content_id":   "brand-missing",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestEscalateViaAPI(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/content/scan", riskyScanRequest("brand-esc"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var scan struct {
		Item *modqueue.Item `json:"queue_item"`
	}
	decodeJSON(t, resp, &scan)
	require.NotNil(t, scan.Item)

	resp = postJSON(t, fmt.Sprintf("%s/v1/queue/%s/escalate", srv.URL, scan.Item.ID), map[string]any{
		"moderator_id": "mod-1",
		"reason":       "needs senior review",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data modqueue.Item `json:"data"`
	}
	decodeJSON(t, resp, &out)
	assert.Equal(t, modqueue.StatusEscalated, out.Data.Status)
	assert.Equal(t, modqueue.EscalatedPriority, out.Data.Priority)
}

func TestQueueStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/content/scan", riskyScanRequest("brand-stats"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	statsResp, err := http.Get(srv.URL + "/v1/queue/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, statsResp.StatusCode)

	var stats modqueue.Stats
	decodeJSON(t, statsResp, &stats)
	assert.Equal(t, 1, stats.CountsByStatus[modqueue.StatusPending])
}

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report orchestrator.HealthReport
	decodeJSON(t, resp, &report)
	assert.Equal(t, orchestrator.StateHealthy, report.State)
	require.Len(t, report.Services, 1)
	assert.True(t, report.Services[0].Up)
	assert.Less(t, report.Services[0].Latency, 2*time.Second)
}
