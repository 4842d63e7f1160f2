package store

import "encoding/binary"

// EncodeKey packs (collection, key) into a byte string whose lexicographic
// order equals numeric Key order — a uint16 collection-name length, the
// name itself, then the key's two's complement magnitude with its sign bit
// flipped so unsigned byte comparison matches signed numeric comparison.
// Engines with no native ordered keyspace of their own (lsmkv, tikv) use
// this to get a numerically ordered Scan without a custom comparator.
func EncodeKey(collection CollectionName, key Key) []byte {
	buf := make([]byte, 2+len(collection)+8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(collection)))
	copy(buf[2:2+len(collection)], collection)
	binary.BigEndian.PutUint64(buf[2+len(collection):], uint64(key)^signBit)
	return buf
}

// CollectionPrefix returns the common prefix of every EncodeKey output for
// collection, suitable for a prefix scan.
func CollectionPrefix(collection CollectionName) []byte {
	buf := make([]byte, 2+len(collection))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(collection)))
	copy(buf[2:], collection)
	return buf
}

// DecodeKey recovers the numeric Key from a byte string produced by
// EncodeKey.
func DecodeKey(raw []byte) Key {
	n := binary.BigEndian.Uint16(raw[0:2])
	tail := raw[2+int(n):]
	return Key(binary.BigEndian.Uint64(tail) ^ signBit)
}

const signBit uint64 = 1 << 63
