// Package redismirror keeps the per-borrower loan mirror in Redis. The
// mirror is a derived view of the loans table: every entry can be rebuilt
// from the ledger, so losing a key is a cache miss, never data loss.
package redismirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"bookworm-backend/internal/domain"
	"bookworm-backend/internal/repository"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 30 * 24 * time.Hour

// placeholderField marks a deliberately empty mirror. Without it a borrower
// with zero loans would hash to nothing, read as a miss, and trigger a
// ledger rebuild on every listing.
const placeholderField = "-"

type mirrorStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewMirrorStore(rdb *redis.Client) repository.MirrorStore {
	return &mirrorStore{
		rdb:    rdb,
		prefix: "mirror:borrower",
		ttl:    defaultTTL,
	}
}

func (s *mirrorStore) key(borrowerID int32) string {
	return fmt.Sprintf("%s:%d", s.prefix, borrowerID)
}

func (s *mirrorStore) Upsert(ctx context.Context, borrowerID int32, entry domain.MirrorEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := s.key(borrowerID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(int(entry.LoanID)), data)
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// List returns the cached entries and whether the borrower's mirror exists
// at all. An absent hash is a miss: the caller rebuilds from the ledger.
func (s *mirrorStore) List(ctx context.Context, borrowerID int32) ([]domain.MirrorEntry, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(borrowerID)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	entries := make([]domain.MirrorEntry, 0, len(fields))
	for field, raw := range fields {
		if field == placeholderField {
			continue
		}
		var e domain.MirrorEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			// A corrupt field means the whole hash is suspect.
			return nil, false, nil
		}
		entries = append(entries, e)
	}
	return entries, true, nil
}

// Rebuild replaces the borrower's mirror wholesale with entries projected
// from the canonical ledger.
func (s *mirrorStore) Rebuild(ctx context.Context, borrowerID int32, entries []domain.MirrorEntry) error {
	key := s.key(borrowerID)

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(entries) == 0 {
		pipe.HSet(ctx, key, placeholderField, "")
	}
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, key, strconv.Itoa(int(e.LoanID)), data)
	}
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *mirrorStore) Invalidate(ctx context.Context, borrowerID int32) error {
	return s.rdb.Del(ctx, s.key(borrowerID)).Err()
}
