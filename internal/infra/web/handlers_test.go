package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"story-scheduler/internal/domain"
	"story-scheduler/internal/domain/model"
	"story-scheduler/internal/domain/ports/repository"
	"story-scheduler/internal/infra/queue"
	"story-scheduler/internal/usecase"
)

const testSecret = "test-secret"

// --- minimal in-memory backing for the use case ---

type memTxManager struct{}

func (m *memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

type memPostRepo struct {
	byID map[string]*model.ScheduledPost
}

func newMemPostRepo() *memPostRepo { return &memPostRepo{byID: map[string]*model.ScheduledPost{}} }

func (m *memPostRepo) Create(ctx context.Context, tx repository.Tx, p *model.ScheduledPost) error {
	for _, existing := range m.byID {
		if existing.UserID == p.UserID && existing.PostID == p.PostID && existing.Status.Active() {
			return domain.ErrActiveJobExists
		}
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}
func (m *memPostRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ScheduledPost, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
func (m *memPostRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string, status model.PostStatus) ([]*model.ScheduledPost, error) {
	var out []*model.ScheduledPost
	for _, p := range m.byID {
		if p.UserID != userID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}
func (m *memPostRepo) Transition(ctx context.Context, tx repository.Tx, id string, from []model.PostStatus, to model.PostStatus, patch repository.TransitionPatch) error {
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	allowed := false
	for _, f := range from {
		if p.Status == f {
			allowed = true
		}
	}
	if !allowed {
		return domain.ErrConflict
	}
	p.Status = to
	if patch.ScheduledFor != nil {
		p.ScheduledFor = *patch.ScheduledFor
	}
	if patch.ErrorMessage != nil {
		p.ErrorMessage = *patch.ErrorMessage
	}
	return nil
}
func (m *memPostRepo) Reclaim(ctx context.Context, tx repository.Tx, id string, staleBefore time.Time) error {
	p, ok := m.byID[id]
	if !ok || p.Status != model.PostStatusProcessing || p.UpdatedAt.After(staleBefore) {
		return domain.ErrConflict
	}
	p.UpdatedAt = time.Now()
	return nil
}
func (m *memPostRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status == model.PostStatusProcessing {
		return domain.ErrInvalidState
	}
	delete(m.byID, id)
	return nil
}
func (m *memPostRepo) SetPostedAt(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.PostedAt = &at
	return nil
}

type memNotifRepo struct{ notifs []*model.Notification }

func (m *memNotifRepo) Save(ctx context.Context, tx repository.Tx, n *model.Notification) error {
	m.notifs = append(m.notifs, n)
	return nil
}
func (m *memNotifRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Notification, error) {
	return m.notifs, nil
}

type memQueue struct{ entries map[string]time.Time }

func newMemQueue() *memQueue { return &memQueue{entries: map[string]time.Time{}} }

func (m *memQueue) Enqueue(ctx context.Context, id string, fireAt time.Time) error {
	m.entries[id] = fireAt
	return nil
}
func (m *memQueue) Cancel(ctx context.Context, id string) error {
	delete(m.entries, id)
	return nil
}
func (m *memQueue) Lease(ctx context.Context, now time.Time, leaseFor time.Duration) (*queue.Entry, error) {
	return nil, domain.ErrNotFound
}
func (m *memQueue) Ack(ctx context.Context, id string) error               { return nil }
func (m *memQueue) Nack(ctx context.Context, id string, cause error) error { return nil }
func (m *memQueue) Release(ctx context.Context, id string) error           { return nil }
func (m *memQueue) RequeueStale(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
func (m *memQueue) Prune(ctx context.Context, doneBefore, deadBefore time.Time) (int64, error) {
	return 0, nil
}
func (m *memQueue) Stats(ctx context.Context) (queue.Stats, error) { return queue.Stats{}, nil }

// --- helpers ---

type webFixture struct {
	repo   *memPostRepo
	queue  *memQueue
	router http.Handler
}

func newWebFixture() *webFixture {
	logger := zerolog.Nop()
	repo := newMemPostRepo()
	q := newMemQueue()
	uc := usecase.NewScheduleUseCase(&memTxManager{}, repo, &memNotifRepo{}, q, &logger)
	srv := NewServer(uc, testSecret, &logger)
	return &webFixture{repo: repo, queue: q, router: srv.Router()}
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func (f *webFixture) do(t *testing.T, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func scheduleBody(postID string, fireAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		"postId":       postID,
		"text":         "hello world",
		"authorName":   "Ada Lovelace",
		"theme":        "SHINY_PURPLE",
		"postType":     "STORY",
		"scheduledFor": fireAt.Format(time.RFC3339),
	}
}

// --- tests ---

func TestScheduleEndpoint(t *testing.T) {
	fireAt := time.Now().Add(time.Hour)

	t.Run("Success - creates the job and returns 201", func(t *testing.T) {
		f := newWebFixture()
		rec := f.do(t, http.MethodPost, "/api/v1/schedule", bearerToken(t, "user-1"), scheduleBody("post-1", fireAt))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var out struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if out.ID != model.JobID("post-1") || out.Status != "PENDING" {
			t.Errorf("unexpected response: %+v", out)
		}
		if _, ok := f.queue.entries[out.ID]; !ok {
			t.Error("expected a queue entry for the new job")
		}
	})

	t.Run("Failure - duplicate active job returns 409", func(t *testing.T) {
		f := newWebFixture()
		f.do(t, http.MethodPost, "/api/v1/schedule", bearerToken(t, "user-1"), scheduleBody("post-1", fireAt))
		rec := f.do(t, http.MethodPost, "/api/v1/schedule", bearerToken(t, "user-1"), scheduleBody("post-1", fireAt))
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("Failure - past fire time returns 400", func(t *testing.T) {
		f := newWebFixture()
		rec := f.do(t, http.MethodPost, "/api/v1/schedule", bearerToken(t, "user-1"), scheduleBody("post-1", time.Now().Add(-time.Minute)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("Failure - missing or garbage token returns 401", func(t *testing.T) {
		f := newWebFixture()
		for name, auth := range map[string]string{
			"no header":    "",
			"not bearer":   "Basic abc",
			"bad token":    "Bearer not.a.jwt",
			"wrong secret": wrongSecretToken(t),
		} {
			rec := f.do(t, http.MethodPost, "/api/v1/schedule", auth, scheduleBody("post-1", fireAt))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("%s: expected 401, got %d", name, rec.Code)
			}
		}
	})
}

func wrongSecretToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1"})
	signed, err := token.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func TestCancelEndpoint(t *testing.T) {
	fireAt := time.Now().Add(time.Hour)

	t.Run("Success - pending job is cancelled with 204", func(t *testing.T) {
		f := newWebFixture()
		f.do(t, http.MethodPost, "/api/v1/schedule", bearerToken(t, "user-1"), scheduleBody("post-1", fireAt))
		id := model.JobID("post-1")

		rec := f.do(t, http.MethodDelete, "/api/v1/schedule/"+id, bearerToken(t, "user-1"), nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if _, ok := f.queue.entries[id]; ok {
			t.Error("queue entry should be cancelled")
		}
	})

	t.Run("Failure - processing job returns 409", func(t *testing.T) {
		f := newWebFixture()
		f.do(t, http.MethodPost, "/api/v1/schedule", bearerToken(t, "user-1"), scheduleBody("post-1", fireAt))
		id := model.JobID("post-1")
		f.repo.byID[id].Status = model.PostStatusProcessing

		rec := f.do(t, http.MethodDelete, "/api/v1/schedule/"+id, bearerToken(t, "user-1"), nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("Failure - another user's job returns 404", func(t *testing.T) {
		f := newWebFixture()
		f.do(t, http.MethodPost, "/api/v1/schedule", bearerToken(t, "user-1"), scheduleBody("post-1", fireAt))

		rec := f.do(t, http.MethodDelete, "/api/v1/schedule/"+model.JobID("post-1"), bearerToken(t, "user-2"), nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestRetryEndpoint(t *testing.T) {
	fireAt := time.Now().Add(time.Hour)

	t.Run("Success - failed job is re-queued", func(t *testing.T) {
		f := newWebFixture()
		f.do(t, http.MethodPost, "/api/v1/schedule", bearerToken(t, "user-1"), scheduleBody("post-1", fireAt))
		id := model.JobID("post-1")
		f.repo.byID[id].Status = model.PostStatusFailed
		f.repo.byID[id].ErrorMessage = "render: boom"

		rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/schedule/%s/retry", id), bearerToken(t, "user-1"), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if f.repo.byID[id].Status != model.PostStatusPending {
			t.Errorf("expected PENDING after retry, got %s", f.repo.byID[id].Status)
		}
		if f.repo.byID[id].ErrorMessage != "" {
			t.Error("retry should clear the error message")
		}
		if _, ok := f.queue.entries[id]; !ok {
			t.Error("retry should enqueue a new execution")
		}
	})

	t.Run("Failure - completed job returns 409", func(t *testing.T) {
		f := newWebFixture()
		f.do(t, http.MethodPost, "/api/v1/schedule", bearerToken(t, "user-1"), scheduleBody("post-1", fireAt))
		id := model.JobID("post-1")
		f.repo.byID[id].Status = model.PostStatusCompleted

		rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/schedule/%s/retry", id), bearerToken(t, "user-1"), nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})
}

func TestMarkPostedEndpoint(t *testing.T) {
	fireAt := time.Now().Add(time.Hour)

	f := newWebFixture()
	f.do(t, http.MethodPost, "/api/v1/schedule", bearerToken(t, "user-1"), scheduleBody("post-1", fireAt))
	id := model.JobID("post-1")
	f.repo.byID[id].Status = model.PostStatusCompleted

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/schedule/%s/mark-posted", id), bearerToken(t, "user-1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.repo.byID[id].PostedAt == nil {
		t.Error("expected posted-at to be stamped")
	}
}

func TestListEndpoint(t *testing.T) {
	fireAt := time.Now().Add(time.Hour)

	f := newWebFixture()
	f.do(t, http.MethodPost, "/api/v1/schedule", bearerToken(t, "user-1"), scheduleBody("post-1", fireAt))
	f.do(t, http.MethodPost, "/api/v1/schedule", bearerToken(t, "user-1"), scheduleBody("post-2", fireAt))
	f.repo.byID[model.JobID("post-2")].Status = model.PostStatusFailed

	rec := f.do(t, http.MethodGet, "/api/v1/schedule?status=FAILED", bearerToken(t, "user-1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		Data []jobResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.Data) != 1 || out.Data[0].PostID != "post-2" {
		t.Errorf("expected only the failed job, got %+v", out.Data)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newWebFixture()
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
