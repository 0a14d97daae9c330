package services_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"intake/internal/models"
	"intake/internal/repositories"
	"intake/internal/services"
)

// openTestPostgres connects to INTAKE_TEST_DATABASE_URL and bootstraps the
// schema. Tests using it are skipped when the variable is unset.
func openTestPostgres(t *testing.T) repositories.Store {
	t.Helper()
	dsn := os.Getenv("INTAKE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("INTAKE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, db, err := repositories.OpenPostgres(ctx, dsn, 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, repositories.Migrate(ctx, db))
	return store
}

func TestPostgres_AttemptsAreMonotonicUnderConcurrency(t *testing.T) {
	store := openTestPostgres(t)
	ctx := context.Background()
	const attempts = 10

	ids := services.NewIdentifierService(store)
	verify := services.NewVerificationService(store, &captureNotifier{},
		services.VerificationConfig{MaxAttempts: attempts, BcryptCost: bcrypt.MinCost},
		services.WithCodeGenerator(sequenceCodes(testCode)))

	sess, err := ids.IssueIdentifier(ctx)
	require.NoError(t, err)
	require.NoError(t, verify.BeginVerification(ctx, sess.ID, testEmail))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		remaining []int
		resets    int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := verify.SubmitVerificationCode(ctx, sess.ID, "000000")
			mu.Lock()
			defer mu.Unlock()
			switch res.Outcome {
			case services.OutcomeInvalid:
				assert.NoError(t, err)
				remaining = append(remaining, res.AttemptsRemaining)
			case services.OutcomeResetRequired:
				assert.ErrorIs(t, err, services.ErrAttemptsExhausted)
				resets++
			default:
				t.Errorf("unexpected outcome %q (%v)", res.Outcome, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, resets)
	assert.ElementsMatch(t, []int{9, 8, 7, 6, 5, 4, 3, 2, 1}, remaining)

	var recs []*models.VerificationRecord
	require.NoError(t, store.WithinTx(ctx, func(tx repositories.Tx) error {
		var err error
		recs, err = tx.Verifications().ListBySession(ctx, sess.ID)
		return err
	}))
	require.Len(t, recs, 1)
	assert.Equal(t, attempts, recs[0].AttemptCount)
	assert.NotNil(t, recs[0].FailedAt)
}

func TestPostgres_ConcurrentBeginDispatchesOnce(t *testing.T) {
	store := openTestPostgres(t)
	ctx := context.Background()

	notifier := &captureNotifier{}
	ids := services.NewIdentifierService(store)
	verify := services.NewVerificationService(store, notifier,
		services.VerificationConfig{BcryptCost: bcrypt.MinCost},
		services.WithCodeGenerator(sequenceCodes(testCode)))

	sess, err := ids.IssueIdentifier(ctx)
	require.NoError(t, err)

	const callers = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		throttled int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := verify.BeginVerification(ctx, sess.ID, testEmail)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case services.KindOf(err) == services.KindRateLimited:
				throttled++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// the session row lock serializes issuers; the rest see the cooldown
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, throttled)
	assert.Equal(t, 1, notifier.Count())
}
