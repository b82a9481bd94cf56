// Package snapshot prepares raw option-chain rows into an indexed,
// chronologically sequenced table for signal evaluation.
package snapshot

import (
	"math"
	"sort"
	"time"

	"oi-trader/internal/errors"
	"oi-trader/internal/models"
)

// Key identifies one row in the table.
type Key struct {
	Sequence int
	Expiry   string
	Strike   float64
}

type seqExpiry struct {
	sequence int
	expiry   string
}

// Table is the in-memory view of the most recent snapshots, keyed by
// (sequence, expiry, strike). Sequences are assigned in timestamp order,
// never taken from the source's snapshot id.
type Table struct {
	rows        map[Key]*models.SnapshotRow
	sequences   []int
	strikes     map[seqExpiry][]float64
	expiries    map[int][]string
	underlying  map[int]float64
	snapshotIDs map[int]int64
}

// snapGroup identifies one raw snapshot before sequencing: a distinct
// (date, snapshot id) pair with the timestamp of its rows.
type snapGroup struct {
	date string
	id   int64
	ts   time.Time
}

// Prepare validates a batch of raw rows and builds the sequenced table.
// Any row missing a required field rejects the whole batch.
func Prepare(rows []models.SnapshotRow) (*Table, error) {
	if len(rows) == 0 {
		return nil, errors.NewBatchError(0, nil, errors.ErrInsufficientData)
	}

	for i := range rows {
		if missing := missingFields(&rows[i]); len(missing) > 0 {
			return nil, errors.NewBatchError(len(rows), missing, nil)
		}
	}

	// Distinct (date, id) pairs become snapshot groups, ordered by the
	// earliest timestamp observed for the pair. The source id breaks ties
	// but never drives ordering on its own.
	groups := make(map[snapGroup]time.Time)
	for i := range rows {
		g := snapGroup{date: rows[i].Timestamp.Format("2006-01-02"), id: rows[i].SnapshotID}
		if ts, ok := groups[g]; !ok || rows[i].Timestamp.Before(ts) {
			groups[g] = rows[i].Timestamp
		}
	}

	ordered := make([]snapGroup, 0, len(groups))
	for g, ts := range groups {
		g.ts = ts
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].ts.Equal(ordered[j].ts) {
			return ordered[i].ts.Before(ordered[j].ts)
		}
		return ordered[i].id < ordered[j].id
	})

	seqByGroup := make(map[snapGroup]int, len(ordered))
	for seq, g := range ordered {
		g.ts = time.Time{}
		seqByGroup[snapGroup{date: g.date, id: g.id}] = seq
	}

	t := newTable()
	for i := range rows {
		g := snapGroup{date: rows[i].Timestamp.Format("2006-01-02"), id: rows[i].SnapshotID}
		t.insert(seqByGroup[g], &rows[i])
	}
	t.index()
	return t, nil
}

func missingFields(r *models.SnapshotRow) []string {
	var missing []string
	if r.Timestamp.IsZero() {
		missing = append(missing, "timestamp")
	}
	if r.Expiry == "" {
		missing = append(missing, "expiry")
	}
	if math.IsNaN(r.Strike) || r.Strike <= 0 {
		missing = append(missing, "strike")
	}
	if math.IsNaN(r.UnderlyingValue) {
		missing = append(missing, "underlying_value")
	}
	if math.IsNaN(r.CallOI) {
		missing = append(missing, "c_oi")
	}
	if math.IsNaN(r.CallLTP) {
		missing = append(missing, "c_ltp")
	}
	if math.IsNaN(r.PutOI) {
		missing = append(missing, "p_oi")
	}
	if math.IsNaN(r.PutLTP) {
		missing = append(missing, "p_ltp")
	}
	return missing
}

func newTable() *Table {
	return &Table{
		rows:        make(map[Key]*models.SnapshotRow),
		strikes:     make(map[seqExpiry][]float64),
		expiries:    make(map[int][]string),
		underlying:  make(map[int]float64),
		snapshotIDs: make(map[int]int64),
	}
}

// insert stores a row under a sequence. A duplicate (expiry, strike) within
// the same sequence overwrites the earlier row.
func (t *Table) insert(seq int, r *models.SnapshotRow) {
	row := *r
	t.rows[Key{Sequence: seq, Expiry: r.Expiry, Strike: r.Strike}] = &row
	if _, ok := t.underlying[seq]; !ok {
		t.underlying[seq] = r.UnderlyingValue
		t.snapshotIDs[seq] = r.SnapshotID
	}
}

// index rebuilds the sorted sequence, expiry and strike views after inserts.
func (t *Table) index() {
	seqSet := make(map[int]struct{})
	expSet := make(map[seqExpiry]struct{})
	t.strikes = make(map[seqExpiry][]float64)
	t.expiries = make(map[int][]string)

	for key := range t.rows {
		seqSet[key.Sequence] = struct{}{}
		se := seqExpiry{sequence: key.Sequence, expiry: key.Expiry}
		t.strikes[se] = append(t.strikes[se], key.Strike)
		if _, ok := expSet[se]; !ok {
			expSet[se] = struct{}{}
			t.expiries[key.Sequence] = append(t.expiries[key.Sequence], key.Expiry)
		}
	}

	t.sequences = t.sequences[:0]
	for seq := range seqSet {
		t.sequences = append(t.sequences, seq)
	}
	sort.Ints(t.sequences)

	for se := range t.strikes {
		sort.Float64s(t.strikes[se])
	}
	for seq := range t.expiries {
		sort.Strings(t.expiries[seq])
	}
}

// Sequences returns all sequence numbers present, ascending.
func (t *Table) Sequences() []int {
	return t.sequences
}

// Len returns the number of distinct sequences.
func (t *Table) Len() int {
	return len(t.sequences)
}

// Latest returns the highest sequence present.
func (t *Table) Latest() (int, bool) {
	if len(t.sequences) == 0 {
		return 0, false
	}
	return t.sequences[len(t.sequences)-1], true
}

// Prev returns the sequence immediately preceding seq in the table.
// Sequences can be sparse after re-bucketing, so this walks the sorted
// sequence list rather than subtracting one.
func (t *Table) Prev(seq int) (int, bool) {
	idx := sort.SearchInts(t.sequences, seq)
	if idx == 0 || idx >= len(t.sequences) || t.sequences[idx] != seq {
		return 0, false
	}
	return t.sequences[idx-1], true
}

// Row returns the row at (sequence, expiry, strike).
func (t *Table) Row(seq int, expiry string, strike float64) (*models.SnapshotRow, bool) {
	r, ok := t.rows[Key{Sequence: seq, Expiry: expiry, Strike: strike}]
	return r, ok
}

// Strikes returns all strikes observed for (sequence, expiry), ascending.
func (t *Table) Strikes(seq int, expiry string) []float64 {
	return t.strikes[seqExpiry{sequence: seq, expiry: expiry}]
}

// Expiries returns all expiries present at a sequence, sorted.
func (t *Table) Expiries(seq int) []string {
	return t.expiries[seq]
}

// Underlying returns the underlying spot value recorded at a sequence.
func (t *Table) Underlying(seq int) (float64, bool) {
	u, ok := t.underlying[seq]
	return u, ok
}

// SnapshotID returns the source snapshot id recorded at a sequence, kept
// for traceability only.
func (t *Table) SnapshotID(seq int) int64 {
	return t.snapshotIDs[seq]
}

// Rebucket coarsens the table into fixed-width time windows, keeping the
// last-observed row per (expiry, strike) in each window. The entry and exit
// thresholds are calibrated against a specific sampling interval, so a finer
// snapshot cadence must be re-bucketed before evaluation. Bucket sequence
// numbers preserve time distance and can therefore be sparse.
func (t *Table) Rebucket(window time.Duration) *Table {
	if window <= 0 || len(t.sequences) == 0 {
		return t
	}

	windowSecs := int64(window / time.Second)
	if windowSecs <= 0 {
		return t
	}

	minBucket := int64(math.MaxInt64)
	bucketOf := func(ts time.Time) int64 {
		return ts.Unix() / windowSecs
	}
	for _, r := range t.rows {
		if b := bucketOf(r.Timestamp); b < minBucket {
			minBucket = b
		}
	}

	// Visit rows in ascending sequence order so later observations win.
	keys := make([]Key, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Sequence != keys[j].Sequence {
			return keys[i].Sequence < keys[j].Sequence
		}
		if keys[i].Expiry != keys[j].Expiry {
			return keys[i].Expiry < keys[j].Expiry
		}
		return keys[i].Strike < keys[j].Strike
	})

	out := newTable()
	for _, k := range keys {
		r := t.rows[k]
		seq := int(bucketOf(r.Timestamp) - minBucket)
		out.insert(seq, r)
		// Last row in encounter order defines the bucket's spot and id.
		out.underlying[seq] = r.UnderlyingValue
		out.snapshotIDs[seq] = r.SnapshotID
	}
	out.index()
	return out
}
