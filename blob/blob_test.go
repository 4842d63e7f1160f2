package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ishkhan42/ustore/engines/memkv"
	"github.com/ishkhan42/ustore/store"
)

func open(t *testing.T) store.Engine {
	t.Helper()
	e, err := memkv.Open(store.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestWriteThenReadNoCompression(t *testing.T) {
	s := NewStore(open(t), store.NewNoOpCompressor())
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, nil, store.DefaultCollection, 1, []byte("hello blob"), 0))

	value, present, err := s.Read(ctx, nil, store.DefaultCollection, 1, 0)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, []byte("hello blob"), value)
}

func TestReadMissingKey(t *testing.T) {
	s := NewStore(open(t), nil)
	ctx := context.Background()

	value, present, err := s.Read(ctx, nil, store.DefaultCollection, 42, 0)
	require.NoError(t, err)
	require.False(t, present)
	require.Nil(t, value)
}

func TestWriteThenReadRoundTripsThroughCompression(t *testing.T) {
	s := NewStore(open(t), store.NewZstdCompressor())
	ctx := context.Background()

	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i % 251)
	}
	require.NoError(t, s.Write(ctx, nil, store.DefaultCollection, 1, big, 0))

	value, present, err := s.Read(ctx, nil, store.DefaultCollection, 1, 0)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, big, value)
}

func TestDeleteRemovesValue(t *testing.T) {
	s := NewStore(open(t), nil)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, nil, store.DefaultCollection, 1, []byte("gone soon"), 0))
	require.NoError(t, s.Delete(ctx, nil, store.DefaultCollection, 1, 0))

	_, present, err := s.Read(ctx, nil, store.DefaultCollection, 1, 0)
	require.NoError(t, err)
	require.False(t, present)
}

func TestWriteBatchThenReadBatchRoundTrips(t *testing.T) {
	s := NewStore(open(t), store.NewZstdCompressor())
	ctx := context.Background()

	keys := []store.Key{1, 2, 3}
	vals := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	places := store.PlacesArg{Keys: store.SliceView(keys), Count: 3}
	contents := store.ContentsArg{
		Payloads: store.SliceView(vals),
		Count:    3,
	}
	require.NoError(t, s.WriteBatch(ctx, nil, places, contents, 0))

	values, present, err := s.ReadBatch(ctx, nil, places, 0, store.NewArena(0))
	require.NoError(t, err)
	for i := range vals {
		require.True(t, present[i])
		require.Equal(t, vals[i], values[i])
	}
}

func TestWriteThenReadInsideTransaction(t *testing.T) {
	s := NewStore(open(t), nil)
	e := s.engine
	ctx := context.Background()

	txn, err := e.TxnBegin(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, txn, store.DefaultCollection, 7, []byte("staged"), 0))

	value, present, err := s.Read(ctx, txn, store.DefaultCollection, 7, 0)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, []byte("staged"), value)

	_, present, err = s.Read(ctx, nil, store.DefaultCollection, 7, 0)
	require.NoError(t, err)
	require.False(t, present)

	_, err = e.TxnCommit(ctx, txn, 0)
	require.NoError(t, err)

	value, present, err = s.Read(ctx, nil, store.DefaultCollection, 7, 0)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, []byte("staged"), value)
}
