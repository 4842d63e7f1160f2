// Package enginetest is the shared contract-test suite every store.Engine
// implementation runs against: one table runner covering every invariant
// a store.Engine must uphold regardless of backend, built around its
// batched places/contents/scans contract.
//
// Each engine package's own _test.go still keeps engine-specific tests
// (compression round-trips for lsmkv, cluster-gated tests for tikv); this
// package covers only the behavior every engine must share.
package enginetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ishkhan42/ustore/store"
)

// Factory constructs a fresh, empty engine instance for one subtest. Each
// subtest gets its own instance so engines lacking isolation between runs
// (on-disk backends opened against a fresh t.TempDir(), say) never leak
// state between cases.
type Factory func(t *testing.T) store.Engine

// Run executes every contract subtest against factory, under the name t
// gives the engine (e.g. "memkv", "btreekv").
func Run(t *testing.T, factory Factory) {
	t.Run("WriteThenRead", func(t *testing.T) { testWriteThenRead(t, factory) })
	t.Run("ReadMissingKey", func(t *testing.T) { testReadMissingKey(t, factory) })
	t.Run("ReadWithZeroCountSucceeds", func(t *testing.T) { testReadZeroCount(t, factory) })
	t.Run("DeleteRemovesValue", func(t *testing.T) { testDeleteRemovesValue(t, factory) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { testDeleteIsIdempotent(t, factory) })
	t.Run("MeasureReportsLengthAndPresence", func(t *testing.T) { testMeasure(t, factory) })
	t.Run("ScanOrdersAscendingAndRespectsLimit", func(t *testing.T) { testScan(t, factory) })
	t.Run("CollectionLifecycle", func(t *testing.T) { testCollectionLifecycle(t, factory) })
	t.Run("TransactionReadYourWrites", func(t *testing.T) { testTransactionReadYourWrites(t, factory) })
	t.Run("TransactionConflictAborts", func(t *testing.T) { testTransactionConflictAborts(t, factory) })
}

func writeOne(t *testing.T, e store.Engine, txn *store.Txn, key store.Key, value []byte) {
	t.Helper()
	places := store.PlacesArg{Keys: store.SingleView(key, 1), Count: 1}
	var contents store.ContentsArg
	if value == nil {
		contents = store.ContentsArg{Count: 1}
	} else {
		contents = store.ContentsArg{
			Payloads: store.SingleView(value, 1),
			Lengths:  store.SingleView(uint32(len(value)), 1),
			Count:    1,
		}
	}
	require.NoError(t, e.Write(context.Background(), txn, places, contents, 0))
}

func readOne(t *testing.T, e store.Engine, txn *store.Txn, key store.Key) ([]byte, bool) {
	t.Helper()
	places := store.PlacesArg{Keys: store.SingleView(key, 1), Count: 1}
	res, err := e.Read(context.Background(), txn, places, 0, store.NewArena(0))
	require.NoError(t, err)
	return res.Value(0)
}

func testWriteThenRead(t *testing.T, factory Factory) {
	e := factory(t)
	writeOne(t, e, nil, 1, []byte("hello"))
	value, present := readOne(t, e, nil, 1)
	require.True(t, present)
	require.Equal(t, []byte("hello"), value)
}

func testReadMissingKey(t *testing.T, factory Factory) {
	e := factory(t)
	_, present := readOne(t, e, nil, 999)
	require.False(t, present)
}

// testReadZeroCount exercises the count == 0 boundary: an empty batch,
// passed either as an unset (null) Keys view or as a present-but-empty
// one, must succeed with empty output rather than fail argument
// validation.
func testReadZeroCount(t *testing.T, factory Factory) {
	e := factory(t)

	res, err := e.Read(context.Background(), nil, store.PlacesArg{Count: 0}, 0, store.NewArena(0))
	require.NoError(t, err)
	require.Len(t, res.Lengths, 0)

	places := store.PlacesArg{Keys: store.SliceView([]store.Key{}), Count: 0}
	require.NoError(t, e.Write(context.Background(), nil, places, store.ContentsArg{Count: 0}, 0))
}

func testDeleteRemovesValue(t *testing.T, factory Factory) {
	e := factory(t)
	writeOne(t, e, nil, 1, []byte("temp"))
	writeOne(t, e, nil, 1, nil)
	_, present := readOne(t, e, nil, 1)
	require.False(t, present)
}

func testDeleteIsIdempotent(t *testing.T, factory Factory) {
	e := factory(t)
	writeOne(t, e, nil, 1, nil)
	writeOne(t, e, nil, 1, nil)
	_, present := readOne(t, e, nil, 1)
	require.False(t, present)
}

func testMeasure(t *testing.T, factory Factory) {
	e := factory(t)
	writeOne(t, e, nil, 1, []byte("12345"))
	places := store.PlacesArg{
		Keys:  store.SliceView([]store.Key{1, 2}),
		Count: 2,
	}
	res, err := e.Measure(context.Background(), nil, places)
	require.NoError(t, err)
	require.True(t, res[0].Present)
	require.EqualValues(t, 5, res[0].Length)
	require.False(t, res[1].Present)
	require.Equal(t, store.MissingLength, res[1].Length)
}

func testScan(t *testing.T, factory Factory) {
	e := factory(t)
	for _, k := range []store.Key{5, 1, 3, 2, 4} {
		writeOne(t, e, nil, k, []byte("v"))
	}
	scans := store.ScansArg{
		MinKeys: store.SingleView[store.Key](1, 1),
		Limits:  store.SingleView(3, 1),
		Count:   1,
	}
	results, err := e.Scan(context.Background(), nil, scans, 0, store.NewArena(0))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []store.Key{1, 2, 3}, results[0].Keys)
	require.True(t, results[0].More)
}

func testCollectionLifecycle(t *testing.T, factory Factory) {
	e := factory(t)
	ctx := context.Background()

	_, err := e.CollectionOpen(ctx, "users")
	require.NoError(t, err)

	names, err := e.CollectionList(ctx)
	require.NoError(t, err)
	require.Contains(t, names, "users")

	places := store.PlacesArg{
		Collections: store.SingleView[store.CollectionName]("users", 1),
		Keys:        store.SingleView[store.Key](1, 1),
		Count:       1,
	}
	contents := store.ContentsArg{
		Payloads: store.SingleView([]byte("a"), 1),
		Lengths:  store.SingleView(uint32(1), 1),
		Count:    1,
	}
	require.NoError(t, e.Write(ctx, nil, places, contents, 0))

	require.NoError(t, e.CollectionDrop(ctx, "users"))

	_, err = e.Read(ctx, nil, places, 0, store.NewArena(0))
	require.Error(t, err)
	require.Equal(t, store.ErrorMissingCollection, store.KindOf(err))
}

func testTransactionReadYourWrites(t *testing.T, factory Factory) {
	e := factory(t)
	ctx := context.Background()

	txn, err := e.TxnBegin(ctx, 0)
	require.NoError(t, err)

	writeOne(t, e, txn, 1, []byte("staged"))

	value, present := readOne(t, e, txn, 1)
	require.True(t, present)
	require.Equal(t, []byte("staged"), value)

	_, present = readOne(t, e, nil, 1)
	require.False(t, present, "uncommitted writes must not be visible outside the transaction")

	_, err = e.TxnCommit(ctx, txn, 0)
	require.NoError(t, err)

	value, present = readOne(t, e, nil, 1)
	require.True(t, present)
	require.Equal(t, []byte("staged"), value)
}

func testTransactionConflictAborts(t *testing.T, factory Factory) {
	e := factory(t)
	ctx := context.Background()

	writeOne(t, e, nil, 1, []byte("seed"))

	txnA, err := e.TxnBegin(ctx, 0)
	require.NoError(t, err)
	txnB, err := e.TxnBegin(ctx, 0)
	require.NoError(t, err)

	_, present := readOne(t, e, txnA, 1)
	require.True(t, present)
	_, present = readOne(t, e, txnB, 1)
	require.True(t, present)

	writeOne(t, e, txnA, 1, []byte("from-a"))
	_, err = e.TxnCommit(ctx, txnA, 0)
	require.NoError(t, err)

	writeOne(t, e, txnB, 1, []byte("from-b"))
	_, err = e.TxnCommit(ctx, txnB, 0)
	require.Error(t, err)
	require.Equal(t, store.ErrorConflict, store.KindOf(err))
}
