package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"intake/internal/models"
)

// MemStore is an in-process Store. Transactions are serialized by a single
// mutex and run against a copy of the data that is swapped in on commit, so a
// failed fn leaves nothing behind.
type MemStore struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	sessions      map[string]models.Session
	verifications []models.VerificationRecord
	audit         []models.AuditEvent
	nextVerifID   int64
	nextAuditID   int64
}

func NewMemStore() *MemStore {
	return &MemStore{data: &memData{sessions: make(map[string]models.Session)}}
}

func (m *MemStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.data.clone()
	if err := fn(&memTx{data: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *MemStore) Close() error { return nil }

// Snapshot helpers for tests and diagnostics.

func (m *MemStore) Session(id string) (*models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data.sessions[id]
	if !ok {
		return nil, false
	}
	cp := copySession(s)
	return &cp, true
}

func (m *MemStore) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.sessions)
}

func (m *MemStore) Verifications(sessionID string) []models.VerificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.VerificationRecord
	for _, v := range m.data.verifications {
		if v.SessionID == sessionID {
			out = append(out, copyVerification(v))
		}
	}
	return out
}

func (m *MemStore) AuditEvents() []models.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditEvent, len(m.data.audit))
	copy(out, m.data.audit)
	return out
}

func (d *memData) clone() *memData {
	cp := &memData{
		sessions:      make(map[string]models.Session, len(d.sessions)),
		verifications: make([]models.VerificationRecord, len(d.verifications)),
		audit:         make([]models.AuditEvent, len(d.audit)),
		nextVerifID:   d.nextVerifID,
		nextAuditID:   d.nextAuditID,
	}
	for k, v := range d.sessions {
		cp.sessions[k] = copySession(v)
	}
	for i, v := range d.verifications {
		cp.verifications[i] = copyVerification(v)
	}
	copy(cp.audit, d.audit)
	return cp
}

type memTx struct {
	data *memData
}

func (t *memTx) Sessions() SessionRepository           { return memSessions{t.data} }
func (t *memTx) Verifications() VerificationRepository { return memVerifications{t.data} }
func (t *memTx) Audit() AuditRepository                { return memAudit{t.data} }

type memSessions struct{ d *memData }

func (r memSessions) Create(_ context.Context, s *models.Session) error {
	if _, ok := r.d.sessions[s.ID]; ok {
		return ErrSessionExists
	}
	r.d.sessions[s.ID] = copySession(*s)
	return nil
}

func (r memSessions) Get(_ context.Context, id string) (*models.Session, error) {
	s, ok := r.d.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := copySession(s)
	return &cp, nil
}

func (r memSessions) GetForUpdate(ctx context.Context, id string) (*models.Session, error) {
	return r.Get(ctx, id)
}

func (r memSessions) Exists(_ context.Context, id string) (bool, error) {
	_, ok := r.d.sessions[id]
	return ok, nil
}

func (r memSessions) Update(_ context.Context, s *models.Session) error {
	if _, ok := r.d.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	r.d.sessions[s.ID] = copySession(*s)
	return nil
}

// Delete cascades to verification records like the postgres foreign key does.
func (r memSessions) Delete(_ context.Context, id string) error {
	delete(r.d.sessions, id)
	kept := r.d.verifications[:0]
	for _, v := range r.d.verifications {
		if v.SessionID != id {
			kept = append(kept, v)
		}
	}
	r.d.verifications = kept
	return nil
}

func (r memSessions) ListAbandoned(_ context.Context, cutoff time.Time, limit int) ([]*models.Session, error) {
	var out []*models.Session
	for _, s := range r.d.sessions {
		if s.State != models.SessionComplete && s.UpdatedAt.Before(cutoff) {
			cp := copySession(s)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memVerifications struct{ d *memData }

func (r memVerifications) Create(_ context.Context, v *models.VerificationRecord) error {
	r.d.nextVerifID++
	v.ID = r.d.nextVerifID
	r.d.verifications = append(r.d.verifications, copyVerification(*v))
	return nil
}

func (r memVerifications) GetActive(_ context.Context, sessionID string) (*models.VerificationRecord, error) {
	for i := len(r.d.verifications) - 1; i >= 0; i-- {
		v := r.d.verifications[i]
		if v.SessionID == sessionID && v.SupersededAt == nil {
			cp := copyVerification(v)
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memVerifications) Update(_ context.Context, v *models.VerificationRecord) error {
	for i := range r.d.verifications {
		if r.d.verifications[i].ID == v.ID {
			r.d.verifications[i] = copyVerification(*v)
			return nil
		}
	}
	return ErrNotFound
}

func (r memVerifications) ListBySession(_ context.Context, sessionID string) ([]*models.VerificationRecord, error) {
	var out []*models.VerificationRecord
	for _, v := range r.d.verifications {
		if v.SessionID == sessionID {
			cp := copyVerification(v)
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memAudit struct{ d *memData }

func (r memAudit) Write(_ context.Context, e *models.AuditEvent) error {
	r.d.nextAuditID++
	e.ID = r.d.nextAuditID
	cp := *e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	r.d.audit = append(r.d.audit, cp)
	return nil
}

func (r memAudit) ListBySession(_ context.Context, sessionID string) ([]*models.AuditEvent, error) {
	var out []*models.AuditEvent
	for _, e := range r.d.audit {
		if e.SessionID == sessionID {
			cp := e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func copySession(s models.Session) models.Session {
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		s.CompletedAt = &t
	}
	return s
}

func copyVerification(v models.VerificationRecord) models.VerificationRecord {
	v.VerifiedAt = copyTime(v.VerifiedAt)
	v.ExpiredAt = copyTime(v.ExpiredAt)
	v.FailedAt = copyTime(v.FailedAt)
	v.SupersededAt = copyTime(v.SupersededAt)
	return v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
