package cairndb

import "errors"

// ErrKeyEmpty is returned by Transaction.Set and Transaction.Delete for
// a zero-length key.
var ErrKeyEmpty = errors.New("cairndb: key must not be empty")

// ErrTxnInProgress is returned by Store.Begin when a previously opened
// Transaction on the same store has not yet been committed or
// discarded.
var ErrTxnInProgress = errors.New("cairndb: a transaction is already in progress")

// ErrTxnConsumed is returned by Transaction.Set/Delete/Commit once the
// transaction has already been committed or discarded.
var ErrTxnConsumed = errors.New("cairndb: transaction already committed or discarded")
