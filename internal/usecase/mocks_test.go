package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"

	"story-scheduler/internal/domain/model"
	"story-scheduler/internal/domain/ports/repository"
	"story-scheduler/internal/infra/queue"
)

type mockTxManager struct{}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

type mockPostRepo struct {
	CreateFunc      func(ctx context.Context, post *model.ScheduledPost) error
	FindByIDFunc    func(ctx context.Context, id string) (*model.ScheduledPost, error)
	FindByUserFunc  func(ctx context.Context, userID string, status model.PostStatus) ([]*model.ScheduledPost, error)
	TransitionFunc  func(ctx context.Context, id string, from []model.PostStatus, to model.PostStatus, patch repository.TransitionPatch) error
	DeleteFunc      func(ctx context.Context, id string) error
	SetPostedAtFunc func(ctx context.Context, id string, at time.Time) error
}

func (m *mockPostRepo) Create(ctx context.Context, tx repository.Tx, post *model.ScheduledPost) error {
	return m.CreateFunc(ctx, post)
}
func (m *mockPostRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ScheduledPost, error) {
	return m.FindByIDFunc(ctx, id)
}
func (m *mockPostRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string, status model.PostStatus) ([]*model.ScheduledPost, error) {
	return m.FindByUserFunc(ctx, userID, status)
}
func (m *mockPostRepo) Transition(ctx context.Context, tx repository.Tx, id string, from []model.PostStatus, to model.PostStatus, patch repository.TransitionPatch) error {
	return m.TransitionFunc(ctx, id, from, to, patch)
}
func (m *mockPostRepo) Reclaim(ctx context.Context, tx repository.Tx, id string, staleBefore time.Time) error {
	return errors.New("not implemented")
}
func (m *mockPostRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	return m.DeleteFunc(ctx, id)
}
func (m *mockPostRepo) SetPostedAt(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	return m.SetPostedAtFunc(ctx, id, at)
}

type mockNotificationRepo struct {
	FindByUserFunc func(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
}

func (m *mockNotificationRepo) Save(ctx context.Context, tx repository.Tx, n *model.Notification) error {
	return errors.New("not implemented")
}
func (m *mockNotificationRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Notification, error) {
	return m.FindByUserFunc(ctx, userID, limit)
}

type enqueueCall struct {
	ID     string
	FireAt time.Time
}

type mockQueue struct {
	EnqueueFunc func(ctx context.Context, id string, fireAt time.Time) error
	enqueued    []enqueueCall
	cancelled   []string
}

func (m *mockQueue) Enqueue(ctx context.Context, id string, fireAt time.Time) error {
	m.enqueued = append(m.enqueued, enqueueCall{ID: id, FireAt: fireAt})
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, id, fireAt)
	}
	return nil
}
func (m *mockQueue) Cancel(ctx context.Context, id string) error {
	m.cancelled = append(m.cancelled, id)
	return nil
}
func (m *mockQueue) Lease(ctx context.Context, now time.Time, leaseFor time.Duration) (*queue.Entry, error) {
	return nil, errors.New("not implemented")
}
func (m *mockQueue) Ack(ctx context.Context, id string) error              { return errors.New("not implemented") }
func (m *mockQueue) Nack(ctx context.Context, id string, cause error) error {
	return errors.New("not implemented")
}
func (m *mockQueue) Release(ctx context.Context, id string) error { return errors.New("not implemented") }
func (m *mockQueue) RequeueStale(ctx context.Context, now time.Time) (int64, error) {
	return 0, errors.New("not implemented")
}
func (m *mockQueue) Prune(ctx context.Context, doneBefore, deadBefore time.Time) (int64, error) {
	return 0, errors.New("not implemented")
}
func (m *mockQueue) Stats(ctx context.Context) (queue.Stats, error) {
	return queue.Stats{}, errors.New("not implemented")
}
