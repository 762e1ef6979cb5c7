package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/types"
)

type stubEventRepo struct {
	rows []*types.RawEvent
}

func (s *stubEventRepo) Create(ctx context.Context, tx *gorm.DB, events []*types.RawEvent) ([]*types.RawEvent, error) {
	s.rows = append(s.rows, events...)
	return events, nil
}

func (s *stubEventRepo) GetByUserAndModule(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleID string, limit int) ([]*types.RawEvent, error) {
	var out []*types.RawEvent
	for _, r := range s.rows {
		if r.UserID == userID && r.ModuleID == moduleID {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubEventRepo) CountByBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) (int64, error) {
	var n int64
	for _, r := range s.rows {
		if r.BatchID == batchID {
			n++
		}
	}
	return n, nil
}

func newEventsRouter(repo *stubEventRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewEventHistoryHandler(logger.NewNop(), repo)
	router := gin.New()
	router.GET("/api/events/:user_id/:module_id", h.History)
	router.GET("/api/batches/:batch_id", h.BatchStatus)
	return router
}

func TestEventHistoryReturnsStoredRows(t *testing.T) {
	userID := uuid.New()
	repo := &stubEventRepo{rows: []*types.RawEvent{
		{ID: uuid.New(), UserID: userID, ModuleID: "m1", ActionLabel: "course_module_viewed", OccurredAt: time.Now().UTC()},
		{ID: uuid.New(), UserID: userID, ModuleID: "m2", ActionLabel: "attempt_submitted", OccurredAt: time.Now().UTC()},
	}}
	router := newEventsRouter(repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/events/"+userID.String()+"/m1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Events []types.RawEvent `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(body.Events))
	}
	if body.Events[0].ModuleID != "m1" {
		t.Fatalf("module = %q, want m1", body.Events[0].ModuleID)
	}
}

func TestEventHistoryRejectsBadInput(t *testing.T) {
	router := newEventsRouter(&stubEventRepo{})

	cases := []struct {
		name string
		path string
	}{
		{"bad user id", "/api/events/not-a-uuid/m1"},
		{"bad limit", "/api/events/" + uuid.NewString() + "/m1?limit=zero"},
		{"bad batch id", "/api/batches/not-a-uuid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			router.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestBatchStatusCountsPersistedEvents(t *testing.T) {
	batchID := uuid.New()
	repo := &stubEventRepo{rows: []*types.RawEvent{
		{ID: uuid.New(), BatchID: batchID, UserID: uuid.New(), ModuleID: "m1"},
		{ID: uuid.New(), BatchID: batchID, UserID: uuid.New(), ModuleID: "m2"},
		{ID: uuid.New(), BatchID: uuid.New(), UserID: uuid.New(), ModuleID: "m1"},
	}}
	router := newEventsRouter(repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/batches/"+batchID.String(), nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		StoredEvents int64 `json:"stored_events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.StoredEvents != 2 {
		t.Fatalf("stored_events = %d, want 2", body.StoredEvents)
	}
}
