package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type pgStore struct {
	db *sqlx.DB
}

// OpenPostgres connects to postgres and returns a Store backed by it.
func OpenPostgres(ctx context.Context, dsn string, maxOpen int) (Store, *sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewPostgresStore(db), db, nil
}

func NewPostgresStore(db *sqlx.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				log.Printf("[store][tx] rollback failed: %v", rbErr)
			}
		}
	}()

	if err = fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *pgStore) Close() error {
	return s.db.Close()
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) Sessions() SessionRepository {
	return &sessionRepository{db: t.tx}
}

func (t *pgTx) Verifications() VerificationRepository {
	return &verificationRepository{db: t.tx}
}

func (t *pgTx) Audit() AuditRepository {
	return &auditRepository{db: t.tx}
}

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

func pqErrorCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}
