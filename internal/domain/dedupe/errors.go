package dedupe

import "errors"

// ErrDuplicate marks a record whose fingerprint was already imported.
var ErrDuplicate = errors.New("duplicate comparable")
