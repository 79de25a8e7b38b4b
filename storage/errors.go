package storage

import "errors"

// ErrUnknownVersion is returned by VersionController.ToVersion when the
// target id is not present in the operation log.
var ErrUnknownVersion = errors.New("no such version")

// MemoryWarningPrefix is the fixed prefix every VersionController memory
// warning string begins with, per the informational (non-error) contract
// in spec §7.
const MemoryWarningPrefix = "[LocalVersionController] Warning: memory usage "
