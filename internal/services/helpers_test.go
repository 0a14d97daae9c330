package services_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"intake/internal/models"
	"intake/internal/repositories"
	"intake/internal/services"
	"intake/internal/storage"
)

const (
	testCode  = "424242"
	testEmail = "visitor@example.com"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentCode struct {
	Destination string
	Code        string
}

// captureNotifier records every dispatch instead of sending it.
type captureNotifier struct {
	mu   sync.Mutex
	sent []sentCode
}

func (n *captureNotifier) Send(_ context.Context, destination, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentCode{Destination: destination, Code: code})
	return nil
}

func (n *captureNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// MockNotifier is a testify mock of services.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, destination, code string) error {
	args := m.Called(ctx, destination, code)
	return args.Error(0)
}

// sequenceCodes hands out the given codes in order, then repeats the last.
func sequenceCodes(codes ...string) func(int) (string, error) {
	var mu sync.Mutex
	i := 0
	return func(int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[min(i, len(codes)-1)]
		i++
		return c, nil
	}
}

type fixture struct {
	store    *repositories.MemStore
	clock    *fakeClock
	notifier *captureNotifier
	ids      *services.IdentifierService
	verify   *services.VerificationService
	sessions *services.SessionService
	objects  *memObjects
}

func newFixture(t *testing.T, cfg services.VerificationConfig, codes ...string) *fixture {
	t.Helper()
	if len(codes) == 0 {
		codes = []string{testCode}
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.MinCost
	}
	f := &fixture{
		store:    repositories.NewMemStore(),
		clock:    newClock(),
		notifier: &captureNotifier{},
	}
	f.objects = newMemObjects(f.clock.Now)
	f.ids = services.NewIdentifierService(f.store, services.WithIdentifierClock(f.clock.Now))
	f.verify = services.NewVerificationService(f.store, f.notifier, cfg,
		services.WithVerificationClock(f.clock.Now),
		services.WithCodeGenerator(sequenceCodes(codes...)),
	)
	f.sessions = services.NewSessionService(f.store, f.objects, services.DefaultUploadRoot, 64,
		services.WithSessionClock(f.clock.Now))
	return f
}

func (f *fixture) newSession(t *testing.T) string {
	t.Helper()
	sess, err := f.ids.IssueIdentifier(context.Background())
	require.NoError(t, err)
	return sess.ID
}

// verifiedSession walks a new session through email verification.
func (f *fixture) verifiedSession(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	id := f.newSession(t)
	require.NoError(t, f.verify.BeginVerification(ctx, id, testEmail))
	res, err := f.verify.SubmitVerificationCode(ctx, id, testCode)
	require.NoError(t, err)
	require.Equal(t, services.OutcomeVerified, res.Outcome)
	return id
}

func (f *fixture) session(t *testing.T, id string) *models.Session {
	t.Helper()
	s, ok := f.store.Session(id)
	require.True(t, ok, "session %s missing", id)
	return s
}

func countEvents(events []models.AuditEvent, typ models.AuditEventType) int {
	n := 0
	for _, e := range events {
		if e.EventType == typ {
			n++
		}
	}
	return n
}

func findEvent(events []models.AuditEvent, typ models.AuditEventType, sessionID string) (models.AuditEvent, bool) {
	for _, e := range events {
		if e.EventType == typ && e.SessionID == sessionID {
			return e, true
		}
	}
	return models.AuditEvent{}, false
}

// memObjects is an in-memory storage.ObjectStore with failure hooks.
type memObjects struct {
	mu      sync.Mutex
	now     func() time.Time
	objects map[string]models.ObjectInfo

	onListObjects func(prefix string)
	deleteErr     map[string]error
	deleteCalls   int
}

var _ storage.ObjectStore = (*memObjects)(nil)

func newMemObjects(now func() time.Time) *memObjects {
	return &memObjects{
		now:       now,
		objects:   make(map[string]models.ObjectInfo),
		deleteErr: make(map[string]error),
	}
}

func (m *memObjects) add(key string, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = models.ObjectInfo{Key: key, Size: 1, LastModified: modified}
}

func (m *memObjects) failDeletes(prefix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.deleteErr, prefix)
		return
	}
	m.deleteErr[prefix] = err
}

func (m *memObjects) count(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

func (m *memObjects) ListPrefixes(_ context.Context, root string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for k := range m.objects {
		rest, ok := strings.CutPrefix(k, root)
		if !ok {
			continue
		}
		dir, _, found := strings.Cut(rest, "/")
		if !found {
			continue
		}
		p := root + dir + "/"
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memObjects) ListObjects(_ context.Context, prefix string) ([]models.ObjectInfo, error) {
	if m.onListObjects != nil {
		m.onListObjects(prefix)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ObjectInfo
	for k, o := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memObjects) DeleteBatch(_ context.Context, keys []string) error {
	if len(keys) > storage.MaxDeleteBatch {
		return storage.ErrBatchTooLarge
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	for _, k := range keys {
		for prefix, err := range m.deleteErr {
			if strings.HasPrefix(k, prefix) {
				return err
			}
		}
		delete(m.objects, k)
	}
	return nil
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, maxBytes int64) (models.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.ObjectInfo{}, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return models.ObjectInfo{}, storage.ErrTooLarge
	}
	info := models.ObjectInfo{Key: key, Size: int64(len(data)), LastModified: m.now()}
	m.mu.Lock()
	m.objects[key] = info
	m.mu.Unlock()
	return info, nil
}
