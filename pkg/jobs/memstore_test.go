package jobs

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragwell/corpus/pkg/apperror"
)

func TestSaveThenFindByID(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	job := &Job{DocumentID: "doc-1", UserID: "user-1", Kind: KindExtract, Status: StatusPending, MaxRetries: 3}
	require.NoError(t, store.Save(ctx, job))
	assert.NotEmpty(t, job.ID)

	got, err := store.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.DocumentID, got.DocumentID)
	assert.Equal(t, StatusPending, got.Status)
}

func TestFindByIDNotFound(t *testing.T) {
	store := NewMemStore()
	_, err := store.FindByID(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperror.NotFound, apperror.KindOf(err))
}

func TestSaveRejectsConcurrentConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	job := &Job{DocumentID: "doc-1", Kind: KindChunk, Status: StatusPending, MaxRetries: 3}
	require.NoError(t, store.Save(ctx, job))

	staleCopy := clone(job)

	job.Status = StatusProcessing
	require.NoError(t, store.Save(ctx, job))

	err := store.Save(ctx, staleCopy)
	require.Error(t, err)
	assert.Equal(t, apperror.Conflict, apperror.KindOf(err))
}

func TestClaimIsAtomicAndExclusive(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	job := &Job{DocumentID: "doc-1", Kind: KindEmbed, Status: StatusPending, MaxRetries: 3}
	require.NoError(t, store.Save(ctx, job))

	claimed, err := store.Claim(ctx, "worker-a", false)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, StatusProcessing, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)

	again, err := store.Claim(ctx, "worker-b", false)
	require.NoError(t, err)
	assert.Nil(t, again, "no second pending job should be available")
}

func TestClaimPrefersHigherPriority(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	low := &Job{DocumentID: "doc-1", Kind: KindEmbed, Status: StatusPending, Priority: 1, MaxRetries: 3}
	high := &Job{DocumentID: "doc-2", Kind: KindEmbed, Status: StatusPending, Priority: 9, MaxRetries: 3}
	require.NoError(t, store.Save(ctx, low))
	require.NoError(t, store.Save(ctx, high))

	claimed, err := store.Claim(ctx, "worker-a", true)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, high.ID, claimed.ID)
}

func TestUpdateStatusRejectsTransitionFromTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	job := &Job{DocumentID: "doc-1", Kind: KindIndex, Status: StatusCompleted, MaxRetries: 3}
	require.NoError(t, store.Save(ctx, job))

	err := store.UpdateStatus(ctx, job.ID, StatusPending, "")
	require.Error(t, err)
	assert.Equal(t, apperror.BusinessRule, apperror.KindOf(err))
}

func TestUpdateStatusFailedIncrementsRetryCount(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	job := &Job{DocumentID: "doc-1", Kind: KindEmbed, Status: StatusProcessing, MaxRetries: 3}
	require.NoError(t, store.Save(ctx, job))

	require.NoError(t, store.UpdateStatus(ctx, job.ID, StatusFailed, "provider timeout"))

	got, err := store.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "provider timeout", got.Error)
	assert.Nil(t, got.CompletedAt, "a retryable failure is not terminal and keeps completed_at unset")
}

func TestFindNonTerminalByDocumentKindEnforcesUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	job := &Job{DocumentID: "doc-1", Kind: KindChunk, Status: StatusPending, MaxRetries: 3}
	require.NoError(t, store.Save(ctx, job))

	found, err := store.FindNonTerminalByDocumentKind(ctx, "doc-1", KindChunk)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, job.ID, found.ID)

	require.NoError(t, store.UpdateStatus(ctx, job.ID, StatusProcessing, ""))
	require.NoError(t, store.UpdateStatus(ctx, job.ID, StatusCompleted, ""))

	found, err = store.FindNonTerminalByDocumentKind(ctx, "doc-1", KindChunk)
	require.NoError(t, err)
	assert.Nil(t, found, "a completed job no longer blocks a new one of the same kind")
}

func TestCreateNonTerminalRejectsSecondConcurrentJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	first := &Job{DocumentID: "doc-1", Kind: KindEmbed, Status: StatusPending, MaxRetries: 3}
	require.NoError(t, store.CreateNonTerminal(ctx, first))

	second := &Job{DocumentID: "doc-1", Kind: KindEmbed, Status: StatusPending, MaxRetries: 3}
	err := store.CreateNonTerminal(ctx, second)
	require.Error(t, err)
	assert.Equal(t, apperror.BusinessRule, apperror.KindOf(err))

	require.NoError(t, store.UpdateStatus(ctx, first.ID, StatusProcessing, ""))
	require.NoError(t, store.UpdateStatus(ctx, first.ID, StatusCompleted, ""))

	third := &Job{DocumentID: "doc-1", Kind: KindEmbed, Status: StatusPending, MaxRetries: 3}
	require.NoError(t, store.CreateNonTerminal(ctx, third), "a completed job frees the slot for a new one")
}

func TestCreateNonTerminalIsRaceFree(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	const attempts = 20
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := &Job{DocumentID: "doc-race", Kind: KindEmbed, Status: StatusPending, MaxRetries: 3}
			results <- store.CreateNonTerminal(ctx, job)
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent CreateNonTerminal call may succeed for the same document and kind")
}

func TestCountByStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.Save(ctx, &Job{DocumentID: "doc-1", Kind: KindExtract, Status: StatusPending, MaxRetries: 3}))
	require.NoError(t, store.Save(ctx, &Job{DocumentID: "doc-2", Kind: KindExtract, Status: StatusPending, MaxRetries: 3}))
	require.NoError(t, store.Save(ctx, &Job{DocumentID: "doc-3", Kind: KindExtract, Status: StatusCompleted, MaxRetries: 3}))

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusCompleted])
}
