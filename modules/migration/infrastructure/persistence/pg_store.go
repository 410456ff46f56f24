package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/pkg/composables"
)

const (
	upsertReplaceQuery = `
		INSERT INTO migration_documents (tenant_id, collection, document_key, fields)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, collection, document_key)
		DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()`

	// existing keys win on merge: the right operand of || takes precedence
	upsertMergeQuery = `
		INSERT INTO migration_documents (tenant_id, collection, document_key, fields)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, collection, document_key)
		DO UPDATE SET fields = EXCLUDED.fields || migration_documents.fields, updated_at = now()`

	queryByFieldQuery = `
		SELECT document_key, fields
		FROM migration_documents
		WHERE tenant_id = $1 AND collection = $2 AND fields ->> $3 = ANY($4)
		ORDER BY document_key`
)

// transientClasses are SQLSTATE classes worth retrying: connection exceptions,
// transaction rollbacks (serialization, deadlock), insufficient resources and
// operator intervention.
var transientClasses = []string{"08", "40", "53", "57"}

// PgStore is a domain.Store over a jsonb document table.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) tenantCtx(ctx context.Context, tenantID uuid.UUID) context.Context {
	return composables.WithPool(composables.WithTenantID(ctx, tenantID), s.pool)
}

// BatchWrite applies all operations in one transaction.
func (s *PgStore) BatchWrite(ctx context.Context, tenantID uuid.UUID, ops []domain.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	err := composables.InTenantTx(s.tenantCtx(ctx, tenantID), func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, op := range ops {
			fields, err := json.Marshal(op.Fields)
			if err != nil {
				return gerrors.Wrapf(err, "marshal %s/%s", op.Collection, op.DocumentKey)
			}
			query := upsertReplaceQuery
			if op.Merge {
				query = upsertMergeQuery
			}
			batch.Queue(query, tenantID, string(op.Collection), op.DocumentKey, fields)
		}
		br := tx.SendBatch(txCtx, batch)
		for range ops {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		return classify("batch_write", err)
	}
	return nil
}

func (s *PgStore) Query(ctx context.Context, tenantID uuid.UUID, collection domain.EntityType, predicate domain.Predicate) ([]domain.Document, error) {
	if len(predicate.Values) == 0 {
		return nil, nil
	}
	var docs []domain.Document
	err := composables.InTenantTx(s.tenantCtx(ctx, tenantID), func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(txCtx, queryByFieldQuery, tenantID, string(collection), predicate.Field, predicate.Values)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				key string
				raw []byte
			)
			if err := rows.Scan(&key, &raw); err != nil {
				return err
			}
			fields := make(map[string]any)
			if err := json.Unmarshal(raw, &fields); err != nil {
				return gerrors.Wrapf(err, "decode %s/%s", collection, key)
			}
			docs = append(docs, domain.Document{Key: key, Fields: fields})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, classify("query", err)
	}
	return docs, nil
}

// classify marks retryable failures as *domain.TransientStoreError.
func classify(op string, err error) error {
	if isTransientPgError(err) {
		return &domain.TransientStoreError{Op: op, Err: err}
	}
	return gerrors.Wrap(err, op)
}

func isTransientPgError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, class := range transientClasses {
			if strings.HasPrefix(pgErr.Code, class) {
				return true
			}
		}
		return false
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
