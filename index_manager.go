package klypt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/a7m-1st/klypt-sub002/klypt_errors"
)

var IndexLookupCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "klypt",
	Subsystem: "index_manager",
	Name:      "lookups",
}, []string{"index", "result"})

var IndexBackfillCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "klypt",
	Subsystem: "index_manager",
	Name:      "backfills",
}, []string{"index"})

var IndexRepairCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "klypt",
	Subsystem: "index_manager",
	Name:      "stale_entries_repaired",
}, []string{"index"})

// IndexDef is the persisted description of one secondary index. Seq is
// assigned once at creation and never reused, so entry keys stay stable
// across reopens.
type IndexDef struct {
	Name  string   `json:"name"`
	Kind  string   `json:"kind"`
	Props []string `json:"props"`
	Seq   uint32   `json:"seq"`
}

func (d IndexDef) covers(kind string, props []string) bool {
	if d.Kind != kind || len(d.Props) != len(props) {
		return false
	}
	for i := range props {
		if d.Props[i] != props[i] {
			return false
		}
	}
	return true
}

func catalogKey(name string) []byte {
	return append([]byte{'I', 'C'}, name...)
}

func entryKey(seq uint32, hash uint64, id string) []byte {
	key := []byte{'I', 'V'}
	key = binary.BigEndian.AppendUint32(key, seq)
	key = binary.BigEndian.AppendUint64(key, hash)
	key = append(key, 0)
	key = append(key, id...)
	return key
}

func entryKeyID(key []byte) string {
	return string(key[15:])
}

func entryPrefix(seq uint32, hash uint64) []byte {
	key := []byte{'I', 'V'}
	key = binary.BigEndian.AppendUint32(key, seq)
	key = binary.BigEndian.AppendUint64(key, hash)
	key = append(key, 0)
	return key
}

// valueHash collapses the indexed property values into the 8 bytes that
// address an entry. Lookups verify real values on the loaded document,
// so a hash collision costs a skipped doc, never a wrong result.
func valueHash(values []string) uint64 {
	h := xxhash.New()
	for _, v := range values {
		_, _ = h.Write([]byte(v))
		_, _ = h.Write([]byte{0x1f})
	}
	return h.Sum64()
}

func docValues(doc Document, props []string) []string {
	values := make([]string, len(props))
	for i, p := range props {
		values[i] = doc.String(p)
	}
	return values
}

// IndexManager declares and maintains the secondary indexes. EnsureIndex
// is idempotent: re-requesting a known definition on every store open is
// a no-op, while reusing a name for a different definition is an error.
type IndexManager struct {
	s      *Store
	lock   sync.Mutex
	defs   map[string]IndexDef
	byKind map[string][]IndexDef
	maxSeq uint32
	cache  *lru.Cache[string, []string]
}

func newIndexManager(s *Store, cacheSize int) (*IndexManager, error) {
	cache, err := lru.New[string, []string](cacheSize)
	if err != nil {
		return nil, err
	}
	im := &IndexManager{
		s:      s,
		defs:   make(map[string]IndexDef),
		byKind: make(map[string][]IndexDef),
		cache:  cache,
	}
	if err := im.loadCatalog(); err != nil {
		return nil, err
	}
	return im, nil
}

func (im *IndexManager) loadCatalog() error {
	prefix := []byte{'I', 'C'}
	iter, err := im.s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for valid := iter.First(); valid; valid = iter.Next() {
		var def IndexDef
		if err := json.Unmarshal(iter.Value(), &def); err != nil {
			im.s.log.Warn("dropping unreadable index definition", "key", string(iter.Key()))
			continue
		}
		im.register(def)
	}
	return nil
}

func (im *IndexManager) register(def IndexDef) {
	im.defs[def.Name] = def
	im.byKind[def.Kind] = append(im.byKind[def.Kind], def)
	sort.Slice(im.byKind[def.Kind], func(i, j int) bool {
		return im.byKind[def.Kind][i].Seq < im.byKind[def.Kind][j].Seq
	})
	if def.Seq > im.maxSeq {
		im.maxSeq = def.Seq
	}
}

// EnsureIndex declares an index over (kind, props...). Zero props is
// allowed and maps to the kind's document prefix itself, which is
// already ordered by documentType.
func (im *IndexManager) EnsureIndex(ctx context.Context, name, kind string, props ...string) error {
	im.lock.Lock()
	defer im.lock.Unlock()
	if def, ok := im.defs[name]; ok {
		if def.covers(kind, props) {
			return nil
		}
		return klypt_errors.ErrIndexRedefined
	}
	def := IndexDef{Name: name, Kind: kind, Props: props, Seq: im.maxSeq + 1}
	body, err := json.Marshal(def)
	if err != nil {
		return err
	}
	batch := im.s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(catalogKey(name), body, im.s.wo); err != nil {
		return err
	}
	if len(props) > 0 {
		if err := im.backfill(ctx, batch, def); err != nil {
			return err
		}
	}
	if err := batch.Commit(im.s.wo); err != nil {
		return err
	}
	im.register(def)
	im.s.log.Info("index ready", "name", name, "kind", kind, "props", strings.Join(props, ","))
	return nil
}

// backfill indexes the documents that predate the definition, the same
// way a reindex repairs missing entries.
func (im *IndexManager) backfill(ctx context.Context, batch *pebble.Batch, def IndexDef) error {
	IndexBackfillCount.WithLabelValues(def.Name).Inc()
	return im.s.scanKind(ctx, def.Kind, func(doc Document) (bool, error) {
		id, err := doc.DocID()
		if err != nil {
			return true, nil
		}
		hash := valueHash(docValues(doc, def.Props))
		if err := batch.Set(entryKey(def.Seq, hash, id), nil, im.s.wo); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (im *IndexManager) find(kind string, props []string) (IndexDef, bool) {
	im.lock.Lock()
	defer im.lock.Unlock()
	for _, def := range im.byKind[kind] {
		if def.covers(kind, props) {
			return def, true
		}
	}
	return IndexDef{}, false
}

func cacheKey(seq uint32, values []string) string {
	var b strings.Builder
	b.Write(binary.BigEndian.AppendUint32(nil, seq))
	for _, v := range values {
		b.WriteString(v)
		b.WriteByte(0x1f)
	}
	return b.String()
}

// Lookup resolves the documents whose indexed properties equal values.
// It fails with ErrNoIndex when no declared index covers the field set;
// there is deliberately no silent full-scan fallback here.
func (im *IndexManager) Lookup(ctx context.Context, kind string, props, values []string) ([]Document, error) {
	if len(props) == 0 {
		var out []Document
		err := im.s.scanKind(ctx, kind, func(doc Document) (bool, error) {
			out = append(out, doc)
			return true, nil
		})
		return out, err
	}
	def, ok := im.find(kind, props)
	if !ok {
		IndexLookupCount.WithLabelValues("none", "no_index").Inc()
		return nil, klypt_errors.ErrNoIndex
	}
	ck := cacheKey(def.Seq, values)
	if ids, ok := im.cache.Get(ck); ok {
		docs, err := im.loadVerified(def, ids, values, nil)
		if err == nil {
			IndexLookupCount.WithLabelValues(def.Name, "hit").Inc()
			return docs, nil
		}
		im.cache.Remove(ck)
	}
	hash := valueHash(values)
	prefix := entryPrefix(def.Seq, hash)
	iter, err := im.s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, err
	}
	var ids []string
	for valid := iter.First(); valid; valid = iter.Next() {
		ids = append(ids, entryKeyID(iter.Key()))
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	docs, err := im.loadVerified(def, ids, values, func(staleID string) {
		// entry points at a missing or changed document, repair in place
		IndexRepairCount.WithLabelValues(def.Name).Inc()
		_ = im.s.db.Delete(entryKey(def.Seq, hash, staleID), im.s.wo)
	})
	if err != nil {
		return nil, err
	}
	liveIDs := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, _ := doc.DocID()
		liveIDs = append(liveIDs, id)
	}
	im.cache.Add(ck, liveIDs)
	IndexLookupCount.WithLabelValues(def.Name, "scan").Inc()
	return docs, nil
}

func (im *IndexManager) loadVerified(def IndexDef, ids, values []string, onStale func(string)) ([]Document, error) {
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc, err := im.s.getDoc(def.Kind, id)
		if err == klypt_errors.ErrNotFound {
			if onStale == nil {
				return nil, err
			}
			onStale(id)
			continue
		}
		if err != nil {
			return nil, err
		}
		match := true
		for i, p := range def.Props {
			if doc.String(p) != values[i] {
				match = false
				break
			}
		}
		if !match {
			if onStale == nil {
				return nil, klypt_errors.ErrNotFound
			}
			onStale(id)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// onPut refreshes the entries of every index covering kind within the
// caller's batch.
func (im *IndexManager) onPut(batch *pebble.Batch, kind, id string, old, doc Document) error {
	im.lock.Lock()
	defs := im.byKind[kind]
	im.lock.Unlock()
	for _, def := range defs {
		if len(def.Props) == 0 {
			continue
		}
		newValues := docValues(doc, def.Props)
		newHash := valueHash(newValues)
		if old != nil {
			oldValues := docValues(old, def.Props)
			oldHash := valueHash(oldValues)
			if oldHash != newHash {
				if err := batch.Delete(entryKey(def.Seq, oldHash, id), im.s.wo); err != nil {
					return err
				}
				im.cache.Remove(cacheKey(def.Seq, oldValues))
			}
		}
		if err := batch.Set(entryKey(def.Seq, newHash, id), nil, im.s.wo); err != nil {
			return err
		}
		im.cache.Remove(cacheKey(def.Seq, newValues))
	}
	return nil
}

func (im *IndexManager) onDelete(batch *pebble.Batch, kind, id string, old Document) error {
	im.lock.Lock()
	defs := im.byKind[kind]
	im.lock.Unlock()
	for _, def := range defs {
		if len(def.Props) == 0 {
			continue
		}
		values := docValues(old, def.Props)
		if err := batch.Delete(entryKey(def.Seq, valueHash(values), id), im.s.wo); err != nil {
			return err
		}
		im.cache.Remove(cacheKey(def.Seq, values))
	}
	return nil
}
