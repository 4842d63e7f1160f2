package tikv

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ishkhan42/ustore/enginetest"
	"github.com/ishkhan42/ustore/store"
)

func TestContractSuite(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) store.Engine { return requireCluster(t) })
}

// These tests need a live TiKV cluster behind its placement driver, so
// they're gated behind TEST_TIKV.
func requireCluster(t *testing.T) store.Engine {
	t.Helper()
	if os.Getenv("TEST_TIKV") == "" {
		t.Skip("set TEST_TIKV=1 with a reachable PD_ENDPOINT to run this test")
	}
	e, err := Open(store.Config{})
	if err != nil {
		t.Skipf("tikv placement driver unreachable: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestWriteThenRead(t *testing.T) {
	e := requireCluster(t)
	ctx := context.Background()

	places := store.PlacesArg{Keys: store.SingleView[store.Key](1, 1), Count: 1}
	contents := store.ContentsArg{
		Payloads: store.SingleView([]byte("hello"), 1),
		Lengths:  store.SingleView(uint32(5), 1),
		Count:    1,
	}
	require.NoError(t, e.Write(ctx, nil, places, contents, 0))

	res, err := e.Read(ctx, nil, places, 0, store.NewArena(0))
	require.NoError(t, err)
	value, present := res.Value(0)
	require.True(t, present)
	require.Equal(t, []byte("hello"), value)
}

func TestTransactionCommit(t *testing.T) {
	e := requireCluster(t)
	ctx := context.Background()

	txn, err := e.TxnBegin(ctx, 0)
	require.NoError(t, err)

	places := store.PlacesArg{Keys: store.SingleView[store.Key](2, 1), Count: 1}
	contents := store.ContentsArg{
		Payloads: store.SingleView([]byte("staged"), 1),
		Lengths:  store.SingleView(uint32(6), 1),
		Count:    1,
	}
	require.NoError(t, e.Write(ctx, txn, places, contents, 0))
	_, err = e.TxnCommit(ctx, txn, 0)
	require.NoError(t, err)

	res, err := e.Read(ctx, nil, places, 0, store.NewArena(0))
	require.NoError(t, err)
	value, present := res.Value(0)
	require.True(t, present)
	require.Equal(t, []byte("staged"), value)
}

func TestPrefixUpperBound(t *testing.T) {
	require.Equal(t, []byte{0x00, 0x02}, prefixUpperBound([]byte{0x00, 0x01}))
	require.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
	require.Equal(t, []byte{0x01}, prefixUpperBound([]byte{0x00, 0xff}))
}
