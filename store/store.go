package store

import "errors"

// ErrOptimisticLock reports an update that matched no row at the expected
// version or status.
var ErrOptimisticLock = errors.New("optimistic lock failed")
