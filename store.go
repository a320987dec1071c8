package klypt

import (
	"context"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/a7m-1st/klypt-sub002/klypt_errors"
	"github.com/a7m-1st/klypt-sub002/utils"
)

// Key space layout, one letter per concern:
//
//	'D' kind 0x00 id                        document body (JSON)
//	'I' 'C' name                            index catalog entry (JSON IndexDef)
//	'I' 'V' seq32 hash64 0x00 id            index entry, value-less
//
// Kind tags never contain 0x00, so the document prefix for a kind is
// unambiguous and doubles as the by-documentType index.
func docKey(kind, id string) []byte {
	key := make([]byte, 0, 2+len(kind)+len(id))
	key = append(key, 'D')
	key = append(key, kind...)
	key = append(key, 0)
	key = append(key, id...)
	return key
}

func kindPrefix(kind string) []byte {
	key := make([]byte, 0, 2+len(kind))
	key = append(key, 'D')
	key = append(key, kind...)
	key = append(key, 0)
	return key
}

// prefixEnd returns the tightest upper bound for a prefix scan.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

type Options struct {
	Logger utils.Logger
	// SyncWrites makes every commit fsync. Off by default: the dataset is
	// a single-device cache that can always be re-imported.
	SyncWrites bool
	// IndexCacheSize bounds the per-index lookup LRU.
	IndexCacheSize int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(utils.DefaultLevel)
	}
	if o.IndexCacheSize == 0 {
		o.IndexCacheSize = 10000
	}
}

// Store is the process-wide handle over the pebble instance. All
// repositories share one Store; per-document writes are atomic with
// their index maintenance via a single batch.
type Store struct {
	db   *pebble.DB
	dir  string
	log  utils.Logger
	wo   *pebble.WriteOptions
	im   *IndexManager
	lock sync.Mutex
	opts Options
}

func OpenStore(dir string, opts Options) (*Store, error) {
	opts.SetDefaults()
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "klypt: cannot open store")
	}
	wo := pebble.NoSync
	if opts.SyncWrites {
		wo = pebble.Sync
	}
	s := &Store{
		db:   db,
		dir:  dir,
		log:  opts.Logger,
		wo:   wo,
		opts: opts,
	}
	s.im, err = newIndexManager(s, opts.IndexCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Info("store open", "dir", dir)
	return s, nil
}

func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.db == nil {
		return klypt_errors.ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) Indexes() *IndexManager { return s.im }

// getDoc loads one document body. Absence maps to ErrNotFound.
func (s *Store) getDoc(kind, id string) (Document, error) {
	if s.db == nil {
		return nil, klypt_errors.ErrClosed
	}
	body, closer, err := s.db.Get(docKey(kind, id))
	if err == pebble.ErrNotFound {
		return nil, klypt_errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "klypt: read failed")
	}
	defer closer.Close()
	return unmarshalDocument(body)
}

// putDoc upserts one document and refreshes its index entries in the
// same batch. The previous revision is read first so stale entries can
// be dropped; that read-modify-write is atomic per document only.
func (s *Store) putDoc(kind string, doc Document) error {
	if s.db == nil {
		return klypt_errors.ErrClosed
	}
	id, err := doc.DocID()
	if err != nil {
		return err
	}
	old, err := s.getDoc(kind, id)
	if err != nil && err != klypt_errors.ErrNotFound {
		return err
	}
	body, err := doc.marshal()
	if err != nil {
		return errors.Wrap(err, "klypt: encode failed")
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(docKey(kind, id), body, s.wo); err != nil {
		return err
	}
	if err := s.im.onPut(batch, kind, id, old, doc); err != nil {
		return err
	}
	return batch.Commit(s.wo)
}

// deleteDoc removes a document and its index entries. Deleting an
// absent id is not an error; it reports false.
func (s *Store) deleteDoc(kind, id string) (bool, error) {
	if s.db == nil {
		return false, klypt_errors.ErrClosed
	}
	old, err := s.getDoc(kind, id)
	if err == klypt_errors.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(docKey(kind, id), s.wo); err != nil {
		return false, err
	}
	if err := s.im.onDelete(batch, kind, id, old); err != nil {
		return false, err
	}
	if err := batch.Commit(s.wo); err != nil {
		return false, err
	}
	return true, nil
}

// scanKind walks every document of a kind in id order. This backs the
// by-documentType lookups, Count and All; it is the one sanctioned
// full scan in the store.
func (s *Store) scanKind(ctx context.Context, kind string, yield func(Document) (bool, error)) error {
	if s.db == nil {
		return klypt_errors.ErrClosed
	}
	prefix := kindPrefix(kind)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for valid := iter.First(); valid; valid = iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := unmarshalDocument(iter.Value())
		if err != nil {
			s.log.Warn("skipping undecodable document", "key", string(iter.Key()))
			continue
		}
		more, err := yield(doc)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}
