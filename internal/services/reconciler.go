package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"intake/internal/models"
	"intake/internal/repositories"
	"intake/internal/storage"
)

const (
	DefaultUploadRoot        = "uploads/"
	DefaultAgeThreshold      = 30 * time.Minute
	DefaultSweepInterval     = 10 * time.Minute
	DefaultSweepTimeout      = 2 * time.Minute
	DefaultMaxPrefixesPerRun = 500
)

type ReconcilerConfig struct {
	Interval          time.Duration
	AgeThreshold      time.Duration
	RunTimeout        time.Duration
	MaxPrefixesPerRun int
	DeleteBatchSize   int
	Root              string
	// PurgeIdleSessions also removes non-complete sessions that never
	// uploaded anything once they have been idle past the threshold.
	PurgeIdleSessions bool
}

func (c *ReconcilerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultSweepInterval
	}
	if c.AgeThreshold <= 0 {
		c.AgeThreshold = DefaultAgeThreshold
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultSweepTimeout
	}
	if c.MaxPrefixesPerRun <= 0 {
		c.MaxPrefixesPerRun = DefaultMaxPrefixesPerRun
	}
	if c.DeleteBatchSize <= 0 || c.DeleteBatchSize > storage.MaxDeleteBatch {
		c.DeleteBatchSize = storage.MaxDeleteBatch
	}
	if c.Root == "" {
		c.Root = DefaultUploadRoot
	}
	if !strings.HasSuffix(c.Root, "/") {
		c.Root += "/"
	}
}

type SweepOptions struct {
	AgeThreshold time.Duration
	DryRun       bool
}

// SweepReport summarizes one run. In dry-run mode Deleted stays zero,
// Candidates lists the prefixes that would have been removed and
// IdleCandidates the storage-less sessions the purge pass would remove.
type SweepReport struct {
	DryRun         bool     `json:"dry_run"`
	Scanned        int      `json:"scanned"`
	Young          int      `json:"young"`
	Kept           int      `json:"kept"`
	Deleted        int      `json:"deleted"`
	Failed         int      `json:"failed"`
	ObjectsRemoved int      `json:"objects_removed"`
	SessionsPurged int      `json:"sessions_purged"`
	Truncated      bool     `json:"truncated"`
	Candidates     []string `json:"candidates,omitempty"`
	IdleCandidates []string `json:"idle_candidates,omitempty"`
}

// Reconciler removes uploads, and the session rows behind them, for sessions
// that never completed.
type Reconciler struct {
	store   repositories.Store
	objects storage.ObjectStore
	cfg     ReconcilerConfig
	now     func() time.Time

	// mu serializes sweeps. cursor is the last prefix examined by a
	// truncated run; the next run resumes after it.
	mu     sync.Mutex
	cursor string
}

type ReconcilerOption func(*Reconciler)

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func NewReconciler(store repositories.Store, objects storage.ObjectStore, cfg ReconcilerConfig, opts ...ReconcilerOption) *Reconciler {
	cfg.applyDefaults()
	r := &Reconciler{
		store:   store,
		objects: objects,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps every Interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	log.Printf("[reconcile][run] interval=%s threshold=%s", r.cfg.Interval, r.cfg.AgeThreshold)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx, SweepOptions{AgeThreshold: r.cfg.AgeThreshold}); err != nil {
				log.Printf("[reconcile][run] sweep failed: %v", err)
			}
		}
	}
}

// RunReconciliationSweep returns how many prefixes were deleted, or would be
// deleted when dryRun is set.
func (r *Reconciler) RunReconciliationSweep(ctx context.Context, ageThreshold time.Duration, dryRun bool) (int, error) {
	rep, err := r.Sweep(ctx, SweepOptions{AgeThreshold: ageThreshold, DryRun: dryRun})
	if err != nil {
		return 0, err
	}
	if dryRun {
		return len(rep.Candidates), nil
	}
	return rep.Deleted, nil
}

// Sweep enumerates upload prefixes and deletes those whose session is absent
// or not complete and whose oldest object is older than the threshold. The
// session row is re-read under lock right before anything is deleted.
func (r *Reconciler) Sweep(ctx context.Context, opts SweepOptions) (SweepReport, error) {
	threshold := opts.AgeThreshold
	if threshold <= 0 {
		threshold = r.cfg.AgeThreshold
	}
	rep := SweepReport{DryRun: opts.DryRun}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
	defer cancel()

	prefixes, err := r.objects.ListPrefixes(ctx, r.cfg.Root)
	if err != nil {
		return rep, dependency(fmt.Errorf("list prefixes: %w", err))
	}
	prefixes = r.rotate(prefixes)

	examined := 0
	last := ""
	for _, prefix := range prefixes {
		if ctx.Err() != nil || examined >= r.cfg.MaxPrefixesPerRun {
			rep.Truncated = true
			break
		}
		rep.Scanned++
		last = prefix

		old, err := r.isOld(ctx, prefix, threshold)
		if err != nil {
			r.prefixFailed(ctx, &rep, prefix, err)
			continue
		}
		if !old {
			rep.Young++
			continue
		}
		examined++

		if opts.DryRun {
			orphan, err := r.isOrphan(ctx, prefix)
			if err != nil {
				r.prefixFailed(ctx, &rep, prefix, err)
				continue
			}
			if orphan {
				rep.Candidates = append(rep.Candidates, prefix)
			} else {
				rep.Kept++
			}
			continue
		}

		removed, deleted, err := r.deletePrefix(ctx, prefix)
		rep.ObjectsRemoved += removed
		if err != nil {
			r.prefixFailed(ctx, &rep, prefix, err)
			continue
		}
		if !deleted {
			rep.Kept++
			continue
		}
		rep.Deleted++
	}
	if !opts.DryRun {
		if rep.Truncated {
			r.cursor = last
		} else {
			r.cursor = ""
		}
	}

	if r.cfg.PurgeIdleSessions && !rep.Truncated {
		if err := r.purgeIdle(ctx, threshold, &rep); err != nil {
			log.Printf("[reconcile][purge] %v", err)
		}
	}

	log.Printf("[reconcile][sweep] dry_run=%t scanned=%d young=%d kept=%d deleted=%d candidates=%d failed=%d objects=%d purged=%d truncated=%t",
		rep.DryRun, rep.Scanned, rep.Young, rep.Kept, rep.Deleted, len(rep.Candidates), rep.Failed, rep.ObjectsRemoved, rep.SessionsPurged, rep.Truncated)
	return rep, nil
}

// rotate orders prefixes to start right after the cursor, so kept prefixes
// at the front of the listing cannot starve the rest.
func (r *Reconciler) rotate(prefixes []string) []string {
	sort.Strings(prefixes)
	if r.cursor == "" {
		return prefixes
	}
	i := sort.SearchStrings(prefixes, r.cursor)
	if i < len(prefixes) && prefixes[i] == r.cursor {
		i++
	}
	out := make([]string, 0, len(prefixes))
	out = append(out, prefixes[i:]...)
	return append(out, prefixes[:i]...)
}

// isOld reports whether the oldest object under prefix is past threshold.
// Empty prefixes are never old.
func (r *Reconciler) isOld(ctx context.Context, prefix string, threshold time.Duration) (bool, error) {
	objs, err := r.objects.ListObjects(ctx, prefix)
	if err != nil {
		return false, fmt.Errorf("list objects: %w", err)
	}
	if len(objs) == 0 {
		return false, nil
	}
	oldest := objs[0].LastModified
	for _, o := range objs[1:] {
		if o.LastModified.Before(oldest) {
			oldest = o.LastModified
		}
	}
	return r.now().Sub(oldest) >= threshold, nil
}

func (r *Reconciler) isOrphan(ctx context.Context, prefix string) (bool, error) {
	var orphan bool
	err := r.store.WithinTx(ctx, func(tx repositories.Tx) error {
		sess, err := tx.Sessions().Get(ctx, r.sessionID(prefix))
		if err != nil {
			return err
		}
		orphan = !sess.IsComplete()
		return nil
	})
	return orphan, err
}

// deletePrefix removes the session row and writes the audit event under the
// row lock, then deletes the objects once that has committed. Objects go last
// because their deletion cannot be rolled back; if it fails the prefix stays
// without a session and the next sweep finishes it. A completed session is
// left alone.
func (r *Reconciler) deletePrefix(ctx context.Context, prefix string) (int, bool, error) {
	id := r.sessionID(prefix)
	var (
		keys    []string
		claimed bool
	)
	err := r.store.WithinTx(ctx, func(tx repositories.Tx) error {
		sess, err := tx.Sessions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sess.IsComplete() {
			return nil
		}

		objs, err := r.objects.ListObjects(ctx, prefix)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		keys = make([]string, 0, len(objs))
		for _, o := range objs {
			keys = append(keys, o.Key)
		}

		meta := map[string]any{
			"prefix":        prefix,
			"objects":       len(keys),
			"session_found": sess != nil,
		}
		if sess != nil {
			meta["state"] = string(sess.State)
			if err := tx.Sessions().Delete(ctx, id); err != nil {
				return err
			}
		}
		if err := writeAudit(ctx, tx, r.now(), models.EventOrphanDeleted, id, meta); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil || !claimed {
		return 0, false, err
	}

	// the row is gone, so no upload can add to the prefix from here on
	removed := 0
	for start := 0; start < len(keys); start += r.cfg.DeleteBatchSize {
		end := min(start+r.cfg.DeleteBatchSize, len(keys))
		if err := r.objects.DeleteBatch(ctx, keys[start:end]); err != nil {
			return removed, false, fmt.Errorf("delete batch at %d: %w", start, err)
		}
		removed = end
	}
	log.Printf("[reconcile][delete] prefix=%s objects=%d", prefix, removed)
	return removed, true, nil
}

// purgeIdle removes abandoned sessions that own no storage at all.
func (r *Reconciler) purgeIdle(ctx context.Context, threshold time.Duration, rep *SweepReport) error {
	cutoff := r.now().Add(-threshold)
	var idle []*models.Session
	err := r.store.WithinTx(ctx, func(tx repositories.Tx) error {
		var err error
		idle, err = tx.Sessions().ListAbandoned(ctx, cutoff, r.cfg.MaxPrefixesPerRun)
		return err
	})
	if err != nil {
		return fmt.Errorf("list abandoned: %w", err)
	}

	for _, s := range idle {
		if ctx.Err() != nil {
			rep.Truncated = true
			return nil
		}
		prefix := r.cfg.Root + s.ID + "/"
		objs, err := r.objects.ListObjects(ctx, prefix)
		if err != nil {
			log.Printf("[reconcile][purge] session_id=%s list objects: %v", s.ID, err)
			continue
		}
		if len(objs) > 0 {
			// handled by the prefix pass once old enough
			continue
		}
		if rep.DryRun {
			rep.IdleCandidates = append(rep.IdleCandidates, s.ID)
			continue
		}

		purged := false
		err = r.store.WithinTx(ctx, func(tx repositories.Tx) error {
			cur, err := tx.Sessions().GetForUpdate(ctx, s.ID)
			if err != nil || !cur.Abandonable(r.now(), threshold) {
				return err
			}
			if err := tx.Sessions().Delete(ctx, s.ID); err != nil {
				return err
			}
			purged = true
			return writeAudit(ctx, tx, r.now(), models.EventOrphanDeleted, s.ID, map[string]any{
				"objects":       0,
				"session_found": true,
				"state":         string(cur.State),
				"reason":        "idle",
			})
		})
		if err != nil {
			log.Printf("[reconcile][purge] session_id=%s: %v", s.ID, err)
			continue
		}
		if purged {
			rep.SessionsPurged++
		}
	}
	return nil
}

func (r *Reconciler) prefixFailed(ctx context.Context, rep *SweepReport, prefix string, cause error) {
	rep.Failed++
	log.Printf("[reconcile][prefix] prefix=%s err=%v", prefix, cause)
	if rep.DryRun || errors.Is(cause, context.DeadlineExceeded) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	err := r.store.WithinTx(ctx, func(tx repositories.Tx) error {
		return writeAudit(ctx, tx, r.now(), models.EventOrphanDeleteFailed, r.sessionID(prefix), map[string]any{
			"prefix": prefix,
			"error":  cause.Error(),
		})
	})
	if err != nil {
		log.Printf("[reconcile][audit] prefix=%s: %v", prefix, err)
	}
}

func (r *Reconciler) sessionID(prefix string) string {
	return strings.Trim(strings.TrimPrefix(prefix, r.cfg.Root), "/")
}
