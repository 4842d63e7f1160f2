package store

// Options is a per-call bitmask, mirroring the C ABI's flag word. Which
// bits are legal for which operation is enforced by validate.go.
type Options uint32

const (
	// OptionTransactionDontWatch, passed to TxnBegin (or Txn.Reset), skips
	// read-set recording for every read of that transaction, turning it
	// into a weak snapshot batch: higher throughput, no conflict detection
	// on its reads at commit time. Validation also accepts it on Read, Write
	// and Scan, where it does not change read-set recording.
	OptionTransactionDontWatch Options = 1 << iota
	// OptionDontDiscardMemory tells the Arena not to reset before writing
	// this call's output, so earlier borrows stay valid.
	OptionDontDiscardMemory
	// OptionReadSharedMemory permits an engine to return a shared,
	// read-only view instead of a private copy when it can do so safely.
	OptionReadSharedMemory
	// OptionWriteFlush fsyncs (or the engine's durability equivalent)
	// after commit.
	OptionWriteFlush
	// OptionScanBulk hints that the scan is large; engines may prefetch.
	OptionScanBulk
)

func (o Options) Has(bit Options) bool { return o&bit != 0 }

// isSubsetOf reports whether o contains only bits present in allowed, the
// per-operation legality check validate.go runs before doing any work.
func (o Options) isSubsetOf(allowed Options) bool {
	return o&^allowed == 0
}
