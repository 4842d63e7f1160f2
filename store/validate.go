package store

// The allowed-options-per-operation tables below are carried over from
// original_source/include/ustore/cpp/ranges_args.hpp's validate_* family.
const (
	allowedWrite = OptionTransactionDontWatch | OptionDontDiscardMemory | OptionWriteFlush
	allowedRead  = OptionTransactionDontWatch | OptionDontDiscardMemory | OptionReadSharedMemory
	allowedScan  = OptionTransactionDontWatch | OptionDontDiscardMemory | OptionReadSharedMemory | OptionScanBulk
	allowedBegin = OptionTransactionDontWatch
	allowedCommit = OptionWriteFlush
)

// ValidateWrite is the preflight for Write: non-null keys, a legal
// option subset, and — for a pure delete — no stray length/offset arrays
// addressing a null payload pointer.
func ValidateWrite(places PlacesArg, contents ContentsArg, opts Options) error {
	if !opts.isSubsetOf(allowedWrite) {
		return NewError(ErrorArgsWrong, "invalid options for write")
	}
	if places.Count > 0 && places.Keys.IsNull() {
		return NewError(ErrorArgsWrong, "no keys were provided")
	}
	if contents.IsDeleteAll() {
		if !contents.Lengths.IsNull() || !contents.Offsets.IsNull() {
			return NewError(ErrorArgsWrong, "can't address lengths/offsets off a null payload pointer")
		}
	}
	return nil
}

// ValidateRead is the preflight for Read.
func ValidateRead(places PlacesArg, opts Options) error {
	if !opts.isSubsetOf(allowedRead) {
		return NewError(ErrorArgsWrong, "invalid options for read")
	}
	if places.Count > 0 && places.Keys.IsNull() {
		return NewError(ErrorArgsWrong, "no keys were provided")
	}
	return nil
}

// ValidateScan is the preflight for Scan: unbounded scans are
// rejected ("scan limits are present").
func ValidateScan(scans ScansArg, opts Options) error {
	if !opts.isSubsetOf(allowedScan) {
		return NewError(ErrorArgsWrong, "invalid options for scan")
	}
	if scans.Limits.IsNull() {
		return NewError(ErrorArgsWrong, "full scans aren't supported - paginate with a limit")
	}
	return nil
}

// ValidateTransactionBegin is the preflight for TxnBegin.
func ValidateTransactionBegin(opts Options) error {
	if !opts.isSubsetOf(allowedBegin) {
		return NewError(ErrorArgsWrong, "invalid options for txn_begin")
	}
	return nil
}

// ValidateTransactionCommit is the preflight for TxnCommit: the
// handle must be present.
func ValidateTransactionCommit(txn *Txn, opts Options) error {
	if txn == nil {
		return NewError(ErrorArgsWrong, "transaction is uninitialized")
	}
	if !opts.isSubsetOf(allowedCommit) {
		return NewError(ErrorArgsWrong, "invalid options for txn_commit")
	}
	return nil
}

// RequireTxn fails with ErrorTransactionRequired when op needs a
// transaction handle and none was provided — distinct from ErrorArgsWrong,
// which covers malformed arguments rather than a missing required one.
func RequireTxn(txn *Txn) error {
	if txn == nil {
		return NewError(ErrorTransactionRequired, "this operation requires an active transaction")
	}
	return nil
}
