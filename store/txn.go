package store

import (
	"fmt"
	"sync"
)

type txnState int

const (
	txnActive txnState = iota
	txnCommitted
	txnAborted
)

// PlaceKey is the (collection, key) address write-sets and read-sets are
// keyed by. Field is deliberately excluded: BLOB and graph values are
// addressed by key alone, and the document modality (out of scope here)
// would layer field resolution on top of a place's value.
type PlaceKey struct {
	Collection CollectionName
	Key        Key
}

type WriteEntry struct {
	Value   []byte
	Deleted bool
}

// Txn is a transaction handle: (engine, generation, sequence) identity plus
// read-set/write-set bookkeeping. It is engine-
// agnostic — memkv and btreekv drive conflict detection entirely off the
// read-set/write-set this type holds (via Sequencer, below); lsmkv and tikv
// instead delegate to their backing engine's own native transaction, which
// they stash in Native, but still expose the same Txn shape so callers
// never need an engine-specific type switch.
//
// A Txn is single-owner: it must not be used concurrently from
// multiple goroutines. The mutex here guards against accidental concurrent
// use tripping up the bookkeeping, not against legitimate contention.
type Txn struct {
	mu sync.Mutex

	generation uint64
	readSeq    Sequence
	commitSeq  Sequence
	dontWatch  bool
	state      txnState

	readSet  map[PlaceKey]struct{}
	writeSet map[PlaceKey]WriteEntry

	// Native holds an engine-specific transaction object (e.g. *badger.Txn,
	// *txnkv.KVTxn) for engines that delegate OCC to their own backend
	// instead of using Sequencer.
	Native any
}

// NewTxn begins a transaction with read sequence readSeq (the highest
// sequence committed so far).
func NewTxn(readSeq Sequence, opts Options) *Txn {
	return &Txn{
		generation: 1,
		readSeq:    readSeq,
		dontWatch:  opts.Has(OptionTransactionDontWatch),
		readSet:    make(map[PlaceKey]struct{}),
		writeSet:   make(map[PlaceKey]WriteEntry),
	}
}

func (t *Txn) Generation() uint64 { return t.generation }
func (t *Txn) ReadSequence() Sequence { return t.readSeq }
func (t *Txn) CommitSequence() Sequence { return t.commitSeq }

// checkUsable returns an error if the transaction is poisoned (a failed
// commit "A transaction that has failed commit is
// poisoned until reset") or already committed.
func (t *Txn) checkUsable() error {
	switch t.state {
	case txnAborted:
		return NewError(ErrorArgsWrong, "transaction is poisoned by a failed commit; reset before reuse")
	case txnCommitted:
		return NewError(ErrorArgsWrong, "transaction already committed; reset before reuse")
	default:
		return nil
	}
}

// RecordRead adds pk to the read-set unless dontWatch is set. Unless the
// "don't watch" option is set, every read is inserted into the read-set so
// a later writer's commit can detect the conflict.
func (t *Txn) RecordRead(pk PlaceKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkUsable(); err != nil {
		return err
	}
	if !t.dontWatch {
		t.readSet[pk] = struct{}{}
	}
	return nil
}

// LookupWrite implements read-your-writes: it reports a buffered write for
// pk, if any, so Read can serve it before falling back to the snapshot.
func (t *Txn) LookupWrite(pk PlaceKey) (WriteEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.writeSet[pk]
	return w, ok
}

// BufferWrite stages a write (or, when deleted is true, a tombstone) into
// the write-set. A later write to the same place in the same transaction
// overwrites the earlier one
func (t *Txn) BufferWrite(pk PlaceKey, value []byte, deleted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkUsable(); err != nil {
		return err
	}
	t.writeSet[pk] = WriteEntry{Value: value, Deleted: deleted}
	return nil
}

// WriteSet returns a snapshot copy of the buffered writes, for an engine's
// commit path to apply.
func (t *Txn) WriteSet() map[PlaceKey]WriteEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[PlaceKey]WriteEntry, len(t.writeSet))
	for k, v := range t.writeSet {
		out[k] = v
	}
	return out
}

// Reset discards the read-set and write-set and advances the generation
// counter, allowing the handle to be reused without reallocating it
//.
func (t *Txn) Reset(readSeq Sequence, opts Options) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	t.readSeq = readSeq
	t.commitSeq = 0
	t.dontWatch = opts.Has(OptionTransactionDontWatch)
	t.state = txnActive
	t.readSet = make(map[PlaceKey]struct{})
	t.writeSet = make(map[PlaceKey]WriteEntry)
	t.Native = nil
}

func (t *Txn) markCommitted(seq Sequence) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = txnCommitted
	t.commitSeq = seq
}

func (t *Txn) markAborted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = txnAborted
}

// Sequencer is the generic commit coordinator that engines with no native
// transaction primitive of their own (memkv, btreekv) embed to get
// snapshot isolation with optimistic concurrency control: a monotonic
// sequence counter plus a map of the last sequence that wrote each place,
// checked against every reader's read-set at commit time. This is the one
// point in each of these engines that serializes commits globally.
type Sequencer struct {
	mu       sync.Mutex
	seq      Sequence
	lastWrite map[PlaceKey]Sequence
}

func NewSequencer() *Sequencer {
	return &Sequencer{lastWrite: make(map[PlaceKey]Sequence)}
}

// ReadSequence returns the highest sequence committed so far, to seed a new
// Txn's snapshot.
func (s *Sequencer) ReadSequence() Sequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Commit validates txn's read-set against writes committed after its read
// sequence, and — if none conflict — applies apply() under the same lock,
// assigns the next sequence, and records it against every written place.
func (s *Sequencer) Commit(txn *Txn, apply func(writes map[PlaceKey]WriteEntry) error) (Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn.mu.Lock()
	if err := txn.checkUsable(); err != nil {
		txn.mu.Unlock()
		return 0, err
	}
	readSeq := txn.readSeq
	readSet := txn.readSet
	writes := make(map[PlaceKey]WriteEntry, len(txn.writeSet))
	for k, v := range txn.writeSet {
		writes[k] = v
	}
	txn.mu.Unlock()

	for pk := range readSet {
		if committedAt, ok := s.lastWrite[pk]; ok && committedAt > readSeq {
			txn.markAborted()
			return 0, Wrap(ErrorConflict, nil, fmt.Sprintf("place %+v written at sequence %d after read sequence %d", pk, committedAt, readSeq))
		}
	}

	if err := apply(writes); err != nil {
		txn.markAborted()
		return 0, err
	}

	s.seq++
	newSeq := s.seq
	for pk := range writes {
		s.lastWrite[pk] = newSeq
	}
	txn.markCommitted(newSeq)
	return newSeq, nil
}
