package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadstitch/internal/entity"
	"github.com/xavierca1/leadstitch/internal/infra/database"
	"github.com/xavierca1/leadstitch/internal/usecase"
)

func TestMergeLeadsMovesIdentities(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	clock := newTestClock()
	resolver := usecase.NewIdentityResolver(st.Leads, nil, clock.Now)
	merger := usecase.NewLeadMerger(st.Leads, clock.Now)

	work, err := resolver.Resolve(ctx, usecase.ResolveInput{Email: "ana@work.com", VisitorID: "v_work"})
	require.NoError(t, err)
	personal, err := resolver.Resolve(ctx, usecase.ResolveInput{Email: "ana@home.com", VisitorID: "v_home"})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	merge, err := merger.Merge(ctx, usecase.MergeInput{SurvivorID: work.Lead.ID, AbsorbedID: personal.Lead.ID, Reason: "same person"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), merge.MovedEmails)
	assert.Equal(t, int64(1), merge.MovedVisitors)

	out, err := resolver.Resolve(ctx, usecase.ResolveInput{Email: "ana@home.com"})
	require.NoError(t, err)
	assert.Equal(t, work.Lead.ID, out.Lead.ID)

	absorbed, err := st.Leads.FindByID(ctx, personal.Lead.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.LeadStatusMerged, absorbed.Status)
	assert.Equal(t, work.Lead.ID, absorbed.MergedInto)
}

func TestMergeLeadsRejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	resolver := usecase.NewIdentityResolver(st.Leads, nil, nil)
	merger := usecase.NewLeadMerger(st.Leads, nil)

	a, err := resolver.Resolve(ctx, usecase.ResolveInput{Email: "a@test.com"})
	require.NoError(t, err)
	b, err := resolver.Resolve(ctx, usecase.ResolveInput{Email: "b@test.com"})
	require.NoError(t, err)
	c, err := resolver.Resolve(ctx, usecase.ResolveInput{Email: "c@test.com"})
	require.NoError(t, err)

	_, err = merger.Merge(ctx, usecase.MergeInput{SurvivorID: a.Lead.ID, AbsorbedID: a.Lead.ID})
	assert.Equal(t, usecase.CodeInvalidMerge, usecase.ErrorCode(err))

	_, err = merger.Merge(ctx, usecase.MergeInput{SurvivorID: a.Lead.ID})
	assert.Equal(t, usecase.CodeInvalidMerge, usecase.ErrorCode(err))

	_, err = merger.Merge(ctx, usecase.MergeInput{SurvivorID: a.Lead.ID, AbsorbedID: "11111111-1111-1111-1111-111111111111"})
	assert.Equal(t, usecase.CodeNotFound, usecase.ErrorCode(err))

	_, err = merger.Merge(ctx, usecase.MergeInput{SurvivorID: "nope", AbsorbedID: a.Lead.ID})
	assert.Equal(t, usecase.CodeNotFound, usecase.ErrorCode(err))

	_, err = merger.Merge(ctx, usecase.MergeInput{SurvivorID: a.Lead.ID, AbsorbedID: b.Lead.ID})
	require.NoError(t, err)

	_, err = merger.Merge(ctx, usecase.MergeInput{SurvivorID: a.Lead.ID, AbsorbedID: b.Lead.ID})
	assert.Equal(t, usecase.CodeAlreadyMerged, usecase.ErrorCode(err))

	// Lead absorvido não pode virar sobrevivente.
	_, err = merger.Merge(ctx, usecase.MergeInput{SurvivorID: b.Lead.ID, AbsorbedID: c.Lead.ID})
	assert.Equal(t, usecase.CodeAlreadyMerged, usecase.ErrorCode(err))
}

// pausingLeadRepo segura o Merge até o teste liberar, para intercalar dois merges.
type pausingLeadRepo struct {
	*database.LeadRepository
	entered chan struct{}
	release chan struct{}
}

func (r *pausingLeadRepo) Merge(ctx context.Context, merge *entity.LeadMerge) error {
	close(r.entered)
	<-r.release
	return r.LeadRepository.Merge(ctx, merge)
}

func TestMergeLeadsInterleavedChainKeepsCanonicalLead(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	resolver := usecase.NewIdentityResolver(st.Leads, nil, nil)

	a, err := resolver.Resolve(ctx, usecase.ResolveInput{Email: "a@x.com"})
	require.NoError(t, err)
	b, err := resolver.Resolve(ctx, usecase.ResolveInput{Email: "b@x.com"})
	require.NoError(t, err)
	c, err := resolver.Resolve(ctx, usecase.ResolveInput{Email: "c@x.com"})
	require.NoError(t, err)

	paused := &pausingLeadRepo{LeadRepository: st.Leads, entered: make(chan struct{}), release: make(chan struct{})}
	slow := usecase.NewLeadMerger(paused, nil)
	fast := usecase.NewLeadMerger(st.Leads, nil)

	// B←A passa pelas checagens e para antes da transação.
	done := make(chan error, 1)
	go func() {
		_, err := slow.Merge(ctx, usecase.MergeInput{SurvivorID: b.Lead.ID, AbsorbedID: a.Lead.ID})
		done <- err
	}()
	<-paused.entered

	// C←B termina enquanto B←A está parado.
	_, err = fast.Merge(ctx, usecase.MergeInput{SurvivorID: c.Lead.ID, AbsorbedID: b.Lead.ID})
	require.NoError(t, err)

	close(paused.release)
	err = <-done
	assert.Equal(t, usecase.CodeAlreadyMerged, usecase.ErrorCode(err))

	out, err := resolver.Resolve(ctx, usecase.ResolveInput{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, a.Lead.ID, out.Lead.ID)
	assert.Equal(t, entity.LeadStatusActive, out.Lead.Status)

	out, err = resolver.Resolve(ctx, usecase.ResolveInput{Email: "b@x.com"})
	require.NoError(t, err)
	assert.Equal(t, c.Lead.ID, out.Lead.ID)
}
