package dedup

import (
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// bandCount splits the 64-bit simhash into 4 bands of 16 bits for
// candidate lookup. Any two hashes within Hamming distance 3 share at
// least one identical band, so banding never misses a near-duplicate
// at the configured threshold.
const bandCount = 4

// Decision is the outcome of a dedup check.
type Decision struct {
	// Duplicate is true when the candidate matched an existing record.
	Duplicate bool
	// CanonicalID is the existing article identity when Duplicate.
	CanonicalID string
	// Exact is true when the match was byte-identical content.
	Exact bool
}

type indexEntry struct {
	articleID string
	simhash   uint64
}

// shard is one lock stripe of the band index.
type shard struct {
	mu      sync.Mutex
	buckets map[uint32][]indexEntry
}

// Index is the fingerprint index. Check-and-insert is atomic per
// fingerprint bucket: candidates that could match each other always
// contend on at least one common stripe, while unrelated candidates
// proceed in parallel. There is no lock across the whole structure.
type Index struct {
	threshold int
	shards    []*shard
	exact     sync.Map // exact hash -> article ID
	lastSeen  sync.Map // canonical article ID -> time.Time
	now       func() time.Time
}

// NewIndex creates an index. threshold is the maximum simhash Hamming
// distance treated as a near-duplicate; shardCount is the number of
// lock stripes.
func NewIndex(threshold, shardCount int) *Index {
	if threshold <= 0 {
		threshold = 3
	}
	if shardCount <= 0 {
		shardCount = 64
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{buckets: make(map[uint32][]indexEntry)}
	}

	return &Index{threshold: threshold, shards: shards, now: time.Now}
}

// Check decides whether the candidate fingerprint duplicates an
// existing article and, if not, atomically registers candidateID as
// the canonical holder of that fingerprint. When concurrent candidates
// share a bucket, exactly one survives as canonical; the others are
// reported as duplicates of it.
func (idx *Index) Check(fp domain.Fingerprint, candidateID string) Decision {
	// Exact fast path for byte-identical re-fetches.
	if existing, ok := idx.exact.Load(fp.Exact); ok {
		id := existing.(string)
		idx.lastSeen.Store(id, idx.now())
		return Decision{Duplicate: true, CanonicalID: id, Exact: true}
	}

	keys := bandKeys(fp.Simhash)
	stripes := idx.stripesFor(keys)

	for _, s := range stripes {
		s.mu.Lock()
	}
	defer func() {
		for _, s := range stripes {
			s.mu.Unlock()
		}
	}()

	// Another byte-identical candidate may have won the race before we
	// acquired the stripes.
	if existing, ok := idx.exact.Load(fp.Exact); ok {
		id := existing.(string)
		idx.lastSeen.Store(id, idx.now())
		return Decision{Duplicate: true, CanonicalID: id, Exact: true}
	}

	if best, ok := idx.nearest(keys, fp.Simhash); ok {
		idx.lastSeen.Store(best, idx.now())
		return Decision{Duplicate: true, CanonicalID: best}
	}

	idx.lastSeen.Store(candidateID, idx.now())
	idx.exact.Store(fp.Exact, candidateID)
	for _, key := range keys {
		s := idx.shardFor(key)
		s.buckets[key] = append(s.buckets[key], indexEntry{articleID: candidateID, simhash: fp.Simhash})
	}

	return Decision{}
}

// Seed registers an existing article without a duplicate decision.
// Used to rebuild the index from persisted articles on restart.
func (idx *Index) Seed(fp domain.Fingerprint, articleID string) {
	keys := bandKeys(fp.Simhash)
	stripes := idx.stripesFor(keys)

	for _, s := range stripes {
		s.mu.Lock()
	}
	defer func() {
		for _, s := range stripes {
			s.mu.Unlock()
		}
	}()

	idx.lastSeen.Store(articleID, idx.now())
	idx.exact.Store(fp.Exact, articleID)
	for _, key := range keys {
		s := idx.shardFor(key)
		s.buckets[key] = append(s.buckets[key], indexEntry{articleID: articleID, simhash: fp.Simhash})
	}
}

// LastSeen reports when the canonical article's fingerprint last
// matched an incoming candidate (including its own insertion).
func (idx *Index) LastSeen(articleID string) (time.Time, bool) {
	v, ok := idx.lastSeen.Load(articleID)
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

// nearest scans the candidate buckets for the closest existing entry
// within the threshold. Caller holds the stripe locks.
func (idx *Index) nearest(keys []uint32, simhash uint64) (string, bool) {
	bestID := ""
	bestDist := idx.threshold + 1

	for _, key := range keys {
		s := idx.shardFor(key)
		for _, e := range s.buckets[key] {
			if d := HammingDistance(e.simhash, simhash); d < bestDist {
				bestDist = d
				bestID = e.articleID
			}
		}
	}

	return bestID, bestID != ""
}

func (idx *Index) shardFor(key uint32) *shard {
	return idx.shards[int(key)%len(idx.shards)]
}

// stripesFor returns the distinct stripes covering the given bucket
// keys, in a stable order so concurrent checks acquire locks without
// deadlock.
func (idx *Index) stripesFor(keys []uint32) []*shard {
	seen := make(map[int]struct{}, len(keys))
	order := make([]int, 0, len(keys))

	for _, key := range keys {
		i := int(key) % len(idx.shards)
		if _, ok := seen[i]; !ok {
			seen[i] = struct{}{}
			order = append(order, i)
		}
	}

	sort.Ints(order)

	out := make([]*shard, len(order))
	for i, n := range order {
		out[i] = idx.shards[n]
	}
	return out
}

// bandKeys splits a simhash into its band bucket keys. The band index
// is folded into the key so identical bit patterns in different bands
// do not collide.
func bandKeys(simhash uint64) []uint32 {
	keys := make([]uint32, bandCount)
	for band := range bandCount {
		bits := uint16(simhash >> (band * 16))
		keys[band] = uint32(band)<<16 | uint32(bits)
	}
	return keys
}
