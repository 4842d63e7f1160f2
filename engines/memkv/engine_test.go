package memkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ishkhan42/ustore/enginetest"
	"github.com/ishkhan42/ustore/store"
)

func TestContractSuite(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) store.Engine { return open(t) })
}

func open(t *testing.T) store.Engine {
	t.Helper()
	e, err := Open(store.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func writeOne(t *testing.T, e store.Engine, txn *store.Txn, key store.Key, value []byte) {
	t.Helper()
	places := store.PlacesArg{Keys: store.SingleView(key, 1), Count: 1}
	contents := store.ContentsArg{
		Payloads: store.SingleView(value, 1),
		Lengths:  store.SingleView(uint32(len(value)), 1),
		Count:    1,
	}
	require.NoError(t, e.Write(context.Background(), txn, places, contents, 0))
}

func readOne(t *testing.T, e store.Engine, txn *store.Txn, key store.Key) ([]byte, bool) {
	t.Helper()
	places := store.PlacesArg{Keys: store.SingleView(key, 1), Count: 1}
	arena := store.NewArena(0)
	res, err := e.Read(context.Background(), txn, places, 0, arena)
	require.NoError(t, err)
	return res.Value(0)
}

func TestWriteThenRead(t *testing.T) {
	e := open(t)
	writeOne(t, e, nil, 1, []byte("hello"))

	value, present := readOne(t, e, nil, 1)
	require.True(t, present)
	require.Equal(t, []byte("hello"), value)
}

func TestReadMissingKey(t *testing.T) {
	e := open(t)
	_, present := readOne(t, e, nil, 42)
	require.False(t, present)
}

func TestDeleteRemovesValue(t *testing.T) {
	e := open(t)
	writeOne(t, e, nil, 1, []byte("hello"))

	places := store.PlacesArg{Keys: store.SingleView[store.Key](1, 1), Count: 1}
	contents := store.ContentsArg{Count: 1} // null Payloads: delete
	require.NoError(t, e.Write(context.Background(), nil, places, contents, 0))

	_, present := readOne(t, e, nil, 1)
	require.False(t, present)
}

func TestTransactionReadYourWrites(t *testing.T) {
	e := open(t)
	ctx := context.Background()

	txn, err := e.TxnBegin(ctx, 0)
	require.NoError(t, err)

	writeOne(t, e, txn, 7, []byte("staged"))
	value, present := readOne(t, e, txn, 7)
	require.True(t, present)
	require.Equal(t, []byte("staged"), value)

	// Not visible to another reader until commit.
	_, present = readOne(t, e, nil, 7)
	require.False(t, present)

	_, err = e.TxnCommit(ctx, txn, 0)
	require.NoError(t, err)

	value, present = readOne(t, e, nil, 7)
	require.True(t, present)
	require.Equal(t, []byte("staged"), value)
}

func TestTransactionConflictAborts(t *testing.T) {
	e := open(t)
	ctx := context.Background()

	writeOne(t, e, nil, 1, []byte("v0"))

	txnA, err := e.TxnBegin(ctx, 0)
	require.NoError(t, err)
	txnB, err := e.TxnBegin(ctx, 0)
	require.NoError(t, err)

	// Both transactions read key 1, putting it in their read-sets.
	_, _ = readOne(t, e, txnA, 1)
	_, _ = readOne(t, e, txnB, 1)

	writeOne(t, e, txnA, 1, []byte("from-a"))
	_, err = e.TxnCommit(ctx, txnA, 0)
	require.NoError(t, err)

	writeOne(t, e, txnB, 1, []byte("from-b"))
	_, err = e.TxnCommit(ctx, txnB, 0)
	require.Error(t, err)
	require.Equal(t, store.ErrorConflict, store.KindOf(err))
}

func TestCollectionLifecycle(t *testing.T) {
	e := open(t)
	ctx := context.Background()

	_, err := e.CollectionOpen(ctx, "users")
	require.NoError(t, err)

	names, err := e.CollectionList(ctx)
	require.NoError(t, err)
	require.Contains(t, names, "users")

	require.NoError(t, e.CollectionDrop(ctx, "users"))

	places := store.PlacesArg{
		Collections: store.SingleView[store.CollectionName]("users", 1),
		Keys:        store.SingleView[store.Key](1, 1),
		Count:       1,
	}
	_, err = e.Read(ctx, nil, places, 0, store.NewArena(0))
	require.Error(t, err)
	require.Equal(t, store.ErrorMissingCollection, store.KindOf(err))
}

func TestScanOrdersAscendingAndRespectsLimit(t *testing.T) {
	e := open(t)
	for _, k := range []store.Key{5, 1, 3, 2, 4} {
		writeOne(t, e, nil, k, []byte("v"))
	}

	scans := store.ScansArg{
		MinKeys: store.SingleView[store.Key](0, 1),
		Limits:  store.SingleView(3, 1),
		Count:   1,
	}
	results, err := e.Scan(context.Background(), nil, scans, 0, store.NewArena(0))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []store.Key{1, 2, 3}, results[0].Keys)
	require.True(t, results[0].More)
}
