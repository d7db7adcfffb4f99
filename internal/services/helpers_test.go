package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"modelhub-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.APIKey{},
		&models.Model{},
		&models.ModelVersion{},
		&models.Task{},
	))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// fakeDispatcher records calls and returns canned answers.
type fakeDispatcher struct {
	mu         sync.Mutex
	enqueueErr error
	revokeErr  error
	status     DispatchStatus
	statusErr  error
	enqueued   []fakeEnqueue
	revoked    []string

	// onEnqueue and onRevoke run before the call returns, standing in for a
	// worker that acts while the API request is still in flight.
	onEnqueue func(kwargs map[string]interface{})
	onRevoke  func(handle string)
}

type fakeEnqueue struct {
	Name   string
	Args   []interface{}
	Kwargs map[string]interface{}
	Queue  string
}

func (f *fakeDispatcher) Enqueue(ctx context.Context, name string, args []interface{}, kwargs map[string]interface{}, queue string) (string, error) {
	f.mu.Lock()
	if f.enqueueErr != nil {
		f.mu.Unlock()
		return "", f.enqueueErr
	}
	f.enqueued = append(f.enqueued, fakeEnqueue{Name: name, Args: args, Kwargs: kwargs, Queue: queue})
	handle := fmt.Sprintf("%s:%d", queue, len(f.enqueued))
	hook := f.onEnqueue
	f.mu.Unlock()

	if hook != nil {
		hook(kwargs)
	}
	return handle, nil
}

func (f *fakeDispatcher) Revoke(ctx context.Context, handle string, terminate bool) error {
	f.mu.Lock()
	if f.revokeErr != nil {
		f.mu.Unlock()
		return f.revokeErr
	}
	f.revoked = append(f.revoked, handle)
	hook := f.onRevoke
	f.mu.Unlock()

	if hook != nil {
		hook(handle)
	}
	return nil
}

func (f *fakeDispatcher) Status(ctx context.Context, handle string) (DispatchStatus, error) {
	return f.status, f.statusErr
}

var errBrokerDown = errors.New("broker down")

// interleaveUpdate runs write once, inside the next UPDATE statement and
// right before it executes, as a concurrent writer would.
func interleaveUpdate(t *testing.T, db *gorm.DB, write func(tx *gorm.DB)) {
	t.Helper()
	var once sync.Once
	name := "test:interleave:" + uuid.NewString()
	err := db.Callback().Update().Before("gorm:update").Register(name, func(tx *gorm.DB) {
		once.Do(func() { write(tx.Session(&gorm.Session{NewDB: true})) })
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Callback().Update().Remove(name) })
}

type taskFixture struct {
	db         *gorm.DB
	cache      *TaskCache
	dispatcher *fakeDispatcher
	svc        *TaskService
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	db := setupTestDB(t)
	_, rdb := setupTestRedis(t)
	cache := NewTaskCache(rdb, time.Hour, 2*time.Hour)
	d := &fakeDispatcher{}
	return &taskFixture{
		db:         db,
		cache:      cache,
		dispatcher: d,
		svc:        NewTaskService(db, cache, d, nil, zaptest.NewLogger(t)),
	}
}
