package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake/internal/models"
	"intake/internal/repositories"
	"intake/internal/services"
)

var fixedID = uuid.MustParse("3f1c2b9e-8d4a-4c6f-9b2e-1a2b3c4d5e6f")

func TestIssueIdentifier_UniqueUnderConcurrency(t *testing.T) {
	store := repositories.NewMemStore()
	svc := services.NewIdentifierService(store)

	const n = 64
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := svc.IssueIdentifier(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[sess.ID] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, n)
	assert.Equal(t, n, store.SessionCount())
	for id := range ids {
		assert.True(t, services.IsCanonicalIdentifier(id), id)
		s, ok := store.Session(id)
		require.True(t, ok)
		assert.Equal(t, models.SessionPending, s.State)
		assert.Nil(t, s.CompletedAt)
	}
	assert.Equal(t, n, countEvents(store.AuditEvents(), models.EventIdentifierGenerated))
}

func TestIssueIdentifier_RetriesAfterCollision(t *testing.T) {
	store := repositories.NewMemStore()
	fixed := services.NewIdentifierService(store, services.WithIdentifierSource(func() (uuid.UUID, error) {
		return fixedID, nil
	}))
	_, err := fixed.IssueIdentifier(context.Background())
	require.NoError(t, err)

	second := uuid.MustParse("7a6b5c4d-3e2f-4a1b-8c9d-0e1f2a3b4c5d")
	draws := []uuid.UUID{fixedID, second}
	svc := services.NewIdentifierService(store, services.WithIdentifierSource(func() (uuid.UUID, error) {
		u := draws[0]
		draws = draws[1:]
		return u, nil
	}))

	sess, err := svc.IssueIdentifier(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second.String(), sess.ID)

	events := store.AuditEvents()
	assert.Equal(t, 1, countEvents(events, models.EventIdentifierCollision))
	assert.Equal(t, 2, countEvents(events, models.EventIdentifierGenerated))
}

func TestIssueIdentifier_ExhaustedAfterBoundedDraws(t *testing.T) {
	store := repositories.NewMemStore()
	draws := 0
	svc := services.NewIdentifierService(store, services.WithIdentifierSource(func() (uuid.UUID, error) {
		draws++
		return fixedID, nil
	}))
	_, err := svc.IssueIdentifier(context.Background())
	require.NoError(t, err)
	draws = 0

	sess, err := svc.IssueIdentifier(context.Background())
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, services.ErrIdentifierExhausted)
	assert.Equal(t, services.KindCollision, services.KindOf(err))
	assert.Equal(t, 3, draws)
	assert.Equal(t, 1, store.SessionCount())

	// collision and exhaustion events survive the failed issue
	events := store.AuditEvents()
	assert.Equal(t, 3, countEvents(events, models.EventIdentifierCollision))
	assert.Equal(t, 1, countEvents(events, models.EventIdentifierExhausted))
}

func TestIssueIdentifier_SourceFailure(t *testing.T) {
	store := repositories.NewMemStore()
	svc := services.NewIdentifierService(store, services.WithIdentifierSource(func() (uuid.UUID, error) {
		return uuid.Nil, errors.New("entropy unavailable")
	}))

	_, err := svc.IssueIdentifier(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, store.SessionCount())
	assert.Empty(t, store.AuditEvents())
}

func TestGenerate_DoesNotReserve(t *testing.T) {
	store := repositories.NewMemStore()
	svc := services.NewIdentifierService(store)

	id, err := svc.Generate(context.Background())
	require.NoError(t, err)
	assert.True(t, services.IsCanonicalIdentifier(id))
	assert.Equal(t, 0, store.SessionCount())
	assert.NoError(t, svc.Validate(context.Background(), id, true))
}

func TestValidate(t *testing.T) {
	store := repositories.NewMemStore()
	svc := services.NewIdentifierService(store, services.WithIdentifierSource(func() (uuid.UUID, error) {
		return fixedID, nil
	}))
	_, err := svc.IssueIdentifier(context.Background())
	require.NoError(t, err)

	malformed := []string{
		"",
		"not-an-id",
		"3F1C2B9E-8D4A-4C6F-9B2E-1A2B3C4D5E6F",
		"{3f1c2b9e-8d4a-4c6f-9b2e-1a2b3c4d5e6f}",
		"3f1c2b9e8d4a4c6f9b2e1a2b3c4d5e6f",
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"3f1c2b9e-8d4a-4c6f-cb2e-1a2b3c4d5e6f",
	}
	for _, c := range malformed {
		t.Run("malformed "+c, func(t *testing.T) {
			err := svc.Validate(context.Background(), c, true)
			assert.ErrorIs(t, err, services.ErrMalformedIdentifier)
			assert.Equal(t, services.KindValidation, services.KindOf(err))
		})
	}

	t.Run("existing", func(t *testing.T) {
		err := svc.Validate(context.Background(), fixedID.String(), true)
		assert.ErrorIs(t, err, services.ErrIdentifierExists)
		assert.Equal(t, services.KindCollision, services.KindOf(err))
	})

	t.Run("existing without lookup", func(t *testing.T) {
		assert.NoError(t, svc.Validate(context.Background(), fixedID.String(), false))
	})

	t.Run("fresh", func(t *testing.T) {
		assert.NoError(t, svc.Validate(context.Background(), uuid.NewString(), true))
	})
}
