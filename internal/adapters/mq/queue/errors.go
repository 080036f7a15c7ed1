package queue

import "errors"

// ErrFull reports that a job was refused because the queue is full or closed.
var ErrFull = errors.New("import queue is full")
