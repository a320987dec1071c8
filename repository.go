package klypt

import (
	"context"

	"github.com/a7m-1st/klypt-sub002/klypt_errors"
	"github.com/a7m-1st/klypt-sub002/utils"
)

// Repo is the typed CRUD facade over one entity kind. It is the only
// way the rest of the module touches the store: storage failures are
// logged and reported as booleans or typed errors here, never rethrown
// raw to callers.
type Repo[T Entity] struct {
	store *Store
	codec Codec[T]
	log   utils.Logger
}

func NewRepo[T Entity](s *Store, c Codec[T]) *Repo[T] {
	return &Repo[T]{store: s, codec: c, log: s.log}
}

// Get loads one entity by id. Absence is ErrNotFound, never a
// partially-zero record.
func (r *Repo[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	doc, err := r.store.getDoc(r.codec.Kind(), id)
	if err != nil {
		return zero, err
	}
	return r.codec.Decode(doc)
}

// Save upserts wholesale, keyed by id. Field-level merging belongs to
// the reconciler, not here. Entities whose schema has an updatedAt get
// it stamped on every write.
func (r *Repo[T]) Save(ctx context.Context, entity T) bool {
	if ctx.Err() != nil {
		return false
	}
	doc := r.codec.Encode(entity)
	if _, ok := doc["updatedAt"]; ok {
		doc["updatedAt"] = nowMillis()
	}
	if err := r.store.putDoc(r.codec.Kind(), doc); err != nil {
		r.log.ErrorCtx(ctx, "save failed", "kind", r.codec.Kind(), "id", entity.DocumentID(), "error", err)
		return false
	}
	return true
}

// Delete is idempotent; a missing id reports false without error.
func (r *Repo[T]) Delete(ctx context.Context, id string) bool {
	if ctx.Err() != nil {
		return false
	}
	ok, err := r.store.deleteDoc(r.codec.Kind(), id)
	if err != nil {
		r.log.ErrorCtx(ctx, "delete failed", "kind", r.codec.Kind(), "id", id, "error", err)
		return false
	}
	return ok
}

// QueryBy resolves entities through a declared index. A field set with
// no index fails with ErrNoIndex; callers that truly want a scan use
// All and filter.
func (r *Repo[T]) QueryBy(ctx context.Context, props []string, values []string) ([]T, error) {
	docs, err := r.store.im.Lookup(ctx, r.codec.Kind(), props, values)
	if err != nil {
		return nil, err
	}
	return r.decodeAll(ctx, docs), nil
}

// QueryOne is QueryBy for unique-ish keys; extra matches are returned
// first-wins and left for the reconciler to converge.
func (r *Repo[T]) QueryOne(ctx context.Context, props []string, values []string) (T, error) {
	var zero T
	matches, err := r.QueryBy(ctx, props, values)
	if err != nil {
		return zero, err
	}
	if len(matches) == 0 {
		return zero, klypt_errors.ErrNotFound
	}
	if len(matches) > 1 {
		r.log.WarnCtx(ctx, "duplicate documents for unique query", "kind", r.codec.Kind(), "count", len(matches))
	}
	return matches[0], nil
}

func (r *Repo[T]) Count(ctx context.Context) (int, error) {
	n := 0
	err := r.store.scanKind(ctx, r.codec.Kind(), func(Document) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

func (r *Repo[T]) All(ctx context.Context) ([]T, error) {
	var docs []Document
	err := r.store.scanKind(ctx, r.codec.Kind(), func(doc Document) (bool, error) {
		docs = append(docs, doc)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return r.decodeAll(ctx, docs), nil
}

func (r *Repo[T]) decodeAll(ctx context.Context, docs []Document) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		entity, err := r.codec.Decode(doc)
		if err != nil {
			// only an id-less body fails decode; skip it, don't fail the query
			r.log.WarnCtx(ctx, "skipping undecodable document", "kind", r.codec.Kind(), "error", err)
			continue
		}
		out = append(out, entity)
	}
	return out
}
