package memutils

import "github.com/pkg/errors"

// ErrPowerOfTwo is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var ErrPowerOfTwo error = errors.New("number must be a power of two")

// ErrCorrupted is returned from Validate methods when the in-buffer bookkeeping of an allocator
// no longer describes a consistent layout
var ErrCorrupted error = errors.New("allocator bookkeeping is corrupted")
