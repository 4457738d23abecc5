package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadstitch/internal/entity"
)

func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "leadstitch.db") + "?_pragma=foreign_keys(1)"
	db, err := NewDBConnection(DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db, DriverSQLite))
	return db
}

var baseTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func createLead(t *testing.T, repo *LeadRepository, email, visitorID string) *entity.Lead {
	t.Helper()
	lead := entity.NewLead("owner-1", baseTime)
	var e *entity.LeadEmail
	if email != "" {
		e = &entity.LeadEmail{Email: email, IsPrimary: true, SourceSystem: "test", CreatedAt: baseTime}
	}
	var v *entity.LeadVisitorID
	if visitorID != "" {
		v = &entity.LeadVisitorID{VisitorID: visitorID, FirstLinkedAt: baseTime, LastSeenAt: baseTime, Source: "test"}
	}
	require.NoError(t, repo.CreateWithIdentity(context.Background(), lead, e, v))
	return lead
}

func TestLeadRepositoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewLeadRepository(newSQLiteDB(t))

	lead := createLead(t, repo, "lead@test.com", "v_123")

	byEmail, err := repo.FindByEmail(ctx, "lead@test.com")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, byEmail.ID)
	assert.Equal(t, entity.LeadStatusActive, byEmail.Status)
	assert.Equal(t, "owner-1", byEmail.OwnerID)
	assert.True(t, baseTime.Equal(byEmail.CreatedAt))

	byVisitor, err := repo.FindByVisitorID(ctx, "v_123")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, byVisitor.ID)

	_, err = repo.FindByEmail(ctx, "missing@test.com")
	assert.ErrorIs(t, err, entity.ErrNotFound)

	emails, err := repo.ListEmails(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.True(t, emails[0].IsPrimary)
	assert.Equal(t, "test", emails[0].SourceSystem)
}

func TestLeadRepositoryCreateConflictRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := NewLeadRepository(newSQLiteDB(t))
	createLead(t, repo, "lead@test.com", "")

	loser := entity.NewLead("", baseTime)
	err := repo.CreateWithIdentity(ctx, loser,
		&entity.LeadEmail{Email: "lead@test.com", IsPrimary: true, CreatedAt: baseTime},
		&entity.LeadVisitorID{VisitorID: "v_new", FirstLinkedAt: baseTime, LastSeenAt: baseTime},
	)
	assert.ErrorIs(t, err, entity.ErrIdentityConflict)

	_, err = repo.FindByID(ctx, loser.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	_, err = repo.FindByVisitorID(ctx, "v_new")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestLeadRepositoryLinkIsInsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := NewLeadRepository(newSQLiteDB(t))
	a := createLead(t, repo, "a@x.com", "v_a")
	b := createLead(t, repo, "b@x.com", "")

	inserted, err := repo.LinkVisitor(ctx, &entity.LeadVisitorID{LeadID: b.ID, VisitorID: "v_a", FirstLinkedAt: baseTime, LastSeenAt: baseTime})
	require.NoError(t, err)
	assert.False(t, inserted)

	owner, err := repo.FindByVisitorID(ctx, "v_a")
	require.NoError(t, err)
	assert.Equal(t, a.ID, owner.ID)

	inserted, err = repo.LinkEmail(ctx, &entity.LeadEmail{LeadID: a.ID, Email: "a2@x.com", CreatedAt: baseTime})
	require.NoError(t, err)
	assert.True(t, inserted)

	later := baseTime.Add(time.Hour)
	require.NoError(t, repo.TouchVisitor(ctx, a.ID, "v_a", later))
	visitors, err := repo.ListVisitorIDs(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, visitors, 1)
	assert.True(t, later.Equal(visitors[0].LastSeenAt))
	assert.True(t, baseTime.Equal(visitors[0].FirstLinkedAt))
}

func TestLeadRepositoryMerge(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	repo := NewLeadRepository(db)
	tps := NewTouchpointRepository(db)

	survivor := createLead(t, repo, "", "v_s")
	absorbed := createLead(t, repo, "p@x.com", "v_p")

	tp := entity.NewTouchpoint("v_p", "page_view", nil, baseTime)
	tp.LeadID = absorbed.ID
	require.NoError(t, tps.Create(ctx, tp))

	merge := entity.NewLeadMerge(survivor.ID, absorbed.ID, "same person", baseTime.Add(time.Minute))
	require.NoError(t, repo.Merge(ctx, merge))
	assert.Equal(t, int64(1), merge.MovedEmails)
	assert.Equal(t, int64(1), merge.MovedVisitors)
	assert.Equal(t, int64(1), merge.MovedTouchpoints)

	owner, err := repo.FindByEmail(ctx, "p@x.com")
	require.NoError(t, err)
	assert.Equal(t, survivor.ID, owner.ID)

	emails, err := repo.ListEmails(ctx, survivor.ID)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.True(t, emails[0].IsPrimary, "survivor without primary inherits it")

	merged, err := repo.FindByID(ctx, absorbed.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.LeadStatusMerged, merged.Status)
	assert.Equal(t, survivor.ID, merged.MergedInto)

	moved, err := tps.FindByID(ctx, tp.ID)
	require.NoError(t, err)
	assert.Equal(t, survivor.ID, moved.LeadID)

	again := entity.NewLeadMerge(survivor.ID, absorbed.ID, "", baseTime.Add(2*time.Minute))
	assert.ErrorIs(t, repo.Merge(ctx, again), entity.ErrAlreadyMerged)
}

func TestLeadRepositoryMergeRejectsMergedSurvivor(t *testing.T) {
	ctx := context.Background()
	repo := NewLeadRepository(newSQLiteDB(t))

	a := createLead(t, repo, "a@x.com", "")
	b := createLead(t, repo, "b@x.com", "")
	c := createLead(t, repo, "c@x.com", "")

	// C absorve B primeiro; B deixa de poder receber A.
	require.NoError(t, repo.Merge(ctx, entity.NewLeadMerge(c.ID, b.ID, "", baseTime.Add(time.Minute))))

	late := entity.NewLeadMerge(b.ID, a.ID, "", baseTime.Add(2*time.Minute))
	assert.ErrorIs(t, repo.Merge(ctx, late), entity.ErrAlreadyMerged)

	owner, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, owner.ID)
	assert.Equal(t, entity.LeadStatusActive, owner.Status)
}

func TestBridgeRepositoryConsumeLatestOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewBridgeRepository(newSQLiteDB(t))

	older := entity.NewBridgeAssociation("lead@test.com", "v_old", "form", nil, "", baseTime)
	newer := entity.NewBridgeAssociation("lead@test.com", "v_new", "form", entity.EventData{"k": "v"}, "", baseTime.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	now := baseTime.Add(time.Hour)
	got, err := repo.ConsumeLatest(ctx, "lead@test.com", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v_new", got.VisitorID)
	assert.True(t, got.Processed)
	require.NotNil(t, got.ProcessedAt)
	assert.Equal(t, "v", got.EventData.String("k"))

	got, err = repo.ConsumeLatest(ctx, "lead@test.com", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v_old", got.VisitorID)

	got, err = repo.ConsumeLatest(ctx, "lead@test.com", now)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBridgeRepositoryRelease(t *testing.T) {
	ctx := context.Background()
	repo := NewBridgeRepository(newSQLiteDB(t))

	a := entity.NewBridgeAssociation("lead@test.com", "v_1", "checkout", entity.EventData{"k": "v"}, "", baseTime)
	require.NoError(t, repo.Create(ctx, a))

	now := baseTime.Add(time.Hour)
	got, err := repo.ConsumeLatest(ctx, "lead@test.com", now)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, repo.Release(ctx, got.ID))

	again, err := repo.ConsumeLatest(ctx, "lead@test.com", now)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, a.ID, again.ID)
	assert.Equal(t, "checkout", again.SourceAction)
	assert.Equal(t, "v", again.EventData.String("k"))
	assert.True(t, a.ExpiresAt.Equal(again.ExpiresAt))

	assert.ErrorIs(t, repo.Release(ctx, "11111111-1111-1111-1111-111111111111"), entity.ErrNotFound)
}

func TestBridgeRepositoryIgnoresExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewBridgeRepository(newSQLiteDB(t))

	a := entity.NewBridgeAssociation("lead@test.com", "v_1", "form", nil, "", baseTime)
	require.NoError(t, repo.Create(ctx, a))

	got, err := repo.ConsumeLatest(ctx, "lead@test.com", baseTime.Add(entity.BridgeTTL+time.Second))
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := repo.DeleteExpired(ctx, baseTime.Add(entity.BridgeTTL+time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTouchpointRepositoryUnknownLead(t *testing.T) {
	repo := NewTouchpointRepository(newSQLiteDB(t))

	tp := entity.NewTouchpoint("v_1", "page_view", nil, baseTime)
	tp.LeadID = "11111111-1111-1111-1111-111111111111"

	assert.ErrorIs(t, repo.Create(context.Background(), tp), entity.ErrUnknownReference)
}

func TestTouchpointRepositoryOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewTouchpointRepository(newSQLiteDB(t))

	// Inseridos fora da ordem cronológica e intercalados entre visitors.
	times := []time.Duration{3 * time.Second, time.Second, 2 * time.Second}
	for i, d := range times {
		require.NoError(t, repo.UpsertVisitor(ctx, &entity.Visitor{VisitorID: "v_1", LastSeenAt: baseTime.Add(d)}))
		tp := entity.NewTouchpoint("v_1", "page_view", entity.EventData{"i": float64(i)}, baseTime.Add(d))
		require.NoError(t, repo.Create(ctx, tp))
		require.NoError(t, repo.Create(ctx, entity.NewTouchpoint("v_2", "page_view", nil, baseTime.Add(d))))
	}

	list, err := repo.ListByVisitor(ctx, "v_1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
	}
	assert.True(t, baseTime.Add(time.Second).Equal(list[0].CreatedAt))

	page, err := repo.List(ctx, entity.Page{Limit: 2, Offset: 0})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, baseTime.Add(3*time.Second).Equal(page[0].CreatedAt))

	rest, err := repo.List(ctx, entity.Page{Limit: 10, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 4)

	_, err = repo.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestFunnelRepositoryLastWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := NewFunnelRepository(newSQLiteDB(t))

	first := &entity.FunnelProgress{VisitorID: "v_1", UserID: "owner-1", CreatedAt: baseTime}
	first.ApplyStage(entity.StageRdvScheduled, baseTime, nil)
	require.NoError(t, repo.Upsert(ctx, first, false))

	second := &entity.FunnelProgress{VisitorID: "v_1", CreatedAt: baseTime.Add(time.Hour)}
	second.ApplyStage(entity.StageRdvCanceled, baseTime.Add(time.Hour), nil)
	require.NoError(t, repo.Upsert(ctx, second, false))

	assert.Equal(t, entity.StageRdvCanceled, second.CurrentStage)
	require.NotNil(t, second.RdvScheduledAt)
	require.NotNil(t, second.RdvCanceledAt)
	assert.Equal(t, "owner-1", second.UserID)
	assert.True(t, baseTime.Equal(second.CreatedAt), "created_at kept from insert")

	resched := &entity.FunnelProgress{VisitorID: "v_1", CurrentStage: entity.StageInitial, CreatedAt: baseTime.Add(2 * time.Hour)}
	resched.ApplyStage(entity.StageRdvRescheduled, baseTime.Add(2*time.Hour), nil)
	require.NoError(t, repo.Upsert(ctx, resched, true))
	assert.Equal(t, entity.StageRdvCanceled, resched.CurrentStage)
	require.NotNil(t, resched.RdvRescheduledAt)

	paid := &entity.FunnelProgress{VisitorID: "v_1", CreatedAt: baseTime.Add(3 * time.Hour)}
	paid.ApplyStage(entity.StagePaymentSucceeded, baseTime.Add(3*time.Hour), &entity.PaymentFields{Amount: 49700, Currency: "BRL", ProductID: "prod-9", PaymentID: "pi_1"})
	require.NoError(t, repo.Upsert(ctx, paid, false))

	got, err := repo.FindByVisitorID(ctx, "v_1")
	require.NoError(t, err)
	assert.Equal(t, entity.StagePaymentSucceeded, got.CurrentStage)
	require.NotNil(t, got.Amount)
	assert.Equal(t, int64(49700), *got.Amount)
	assert.Equal(t, "prod-9", got.ProductID)
	assert.NotNil(t, got.RdvScheduledAt)
	assert.NotNil(t, got.RdvCanceledAt)
	assert.NotNil(t, got.RdvRescheduledAt)

	_, err = repo.FindByVisitorID(ctx, "missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
