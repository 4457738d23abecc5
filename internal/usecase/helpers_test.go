package usecase_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadstitch/internal/entity"
	"github.com/xavierca1/leadstitch/internal/infra/database"
	"github.com/xavierca1/leadstitch/internal/usecase"
)

var baseTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// store liga os repositórios SQL reais num SQLite temporário.
type store struct {
	Leads       *database.LeadRepository
	Bridges     *database.BridgeRepository
	Touchpoints *database.TouchpointRepository
	Funnels     *database.FunnelRepository
}

func newStore(t *testing.T) *store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "usecase.db") + "?_pragma=foreign_keys(1)"
	db, err := database.NewDBConnection(database.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))

	return &store{
		Leads:       database.NewLeadRepository(db),
		Bridges:     database.NewBridgeRepository(db),
		Touchpoints: database.NewTouchpointRepository(db),
		Funnels:     database.NewFunnelRepository(db),
	}
}

type recordingMetrics struct {
	mu        sync.Mutex
	resolved  map[string]int
	conflicts map[string]int
	hits      int
	misses    int
	created   int
	stages    map[string]int
	partial   map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		resolved:  map[string]int{},
		conflicts: map[string]int{},
		stages:    map[string]int{},
		partial:   map[string]int{},
	}
}

func (m *recordingMetrics) IdentityResolved(matchedBy string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved[matchedBy]++
}

func (m *recordingMetrics) IdentityConflict(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[kind]++
}

func (m *recordingMetrics) BridgeConsumed(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *recordingMetrics) TouchpointCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *recordingMetrics) FunnelUpdated(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage]++
}

func (m *recordingMetrics) PartialWrite(step string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partial[step]++
}

// MockLeadRepository
type MockLeadRepository struct {
	mock.Mock
}

func (m *MockLeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Lead), args.Error(1)
}

func (m *MockLeadRepository) FindByEmail(ctx context.Context, email string) (*entity.Lead, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Lead), args.Error(1)
}

func (m *MockLeadRepository) FindByVisitorID(ctx context.Context, visitorID string) (*entity.Lead, error) {
	args := m.Called(ctx, visitorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Lead), args.Error(1)
}

func (m *MockLeadRepository) CreateWithIdentity(ctx context.Context, lead *entity.Lead, email *entity.LeadEmail, visitor *entity.LeadVisitorID) error {
	args := m.Called(ctx, lead, email, visitor)
	return args.Error(0)
}

func (m *MockLeadRepository) LinkEmail(ctx context.Context, email *entity.LeadEmail) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockLeadRepository) LinkVisitor(ctx context.Context, visitor *entity.LeadVisitorID) (bool, error) {
	args := m.Called(ctx, visitor)
	return args.Bool(0), args.Error(1)
}

func (m *MockLeadRepository) TouchVisitor(ctx context.Context, leadID, visitorID string, seenAt time.Time) error {
	args := m.Called(ctx, leadID, visitorID, seenAt)
	return args.Error(0)
}

func (m *MockLeadRepository) ListEmails(ctx context.Context, leadID string) ([]entity.LeadEmail, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.LeadEmail), args.Error(1)
}

func (m *MockLeadRepository) ListVisitorIDs(ctx context.Context, leadID string) ([]entity.LeadVisitorID, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.LeadVisitorID), args.Error(1)
}

func (m *MockLeadRepository) Merge(ctx context.Context, merge *entity.LeadMerge) error {
	args := m.Called(ctx, merge)
	return args.Error(0)
}

// MockTouchpointRepository
type MockTouchpointRepository struct {
	mock.Mock
}

func (m *MockTouchpointRepository) UpsertVisitor(ctx context.Context, v *entity.Visitor) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockTouchpointRepository) Create(ctx context.Context, t *entity.Touchpoint) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTouchpointRepository) FindByID(ctx context.Context, id string) (*entity.Touchpoint, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Touchpoint), args.Error(1)
}

func (m *MockTouchpointRepository) List(ctx context.Context, page entity.Page) ([]*entity.Touchpoint, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Touchpoint), args.Error(1)
}

func (m *MockTouchpointRepository) ListByVisitor(ctx context.Context, visitorID string) ([]*entity.Touchpoint, error) {
	args := m.Called(ctx, visitorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Touchpoint), args.Error(1)
}

// MockFunnelRepository
type MockFunnelRepository struct {
	mock.Mock
}

func (m *MockFunnelRepository) Upsert(ctx context.Context, p *entity.FunnelProgress, keepStage bool) error {
	args := m.Called(ctx, p, keepStage)
	return args.Error(0)
}

func (m *MockFunnelRepository) FindByVisitorID(ctx context.Context, visitorID string) (*entity.FunnelProgress, error) {
	args := m.Called(ctx, visitorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.FunnelProgress), args.Error(1)
}

// MockRetryPublisher
type MockRetryPublisher struct {
	mock.Mock
}

func (m *MockRetryPublisher) PublishRetry(ctx context.Context, job usecase.RetryJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}
