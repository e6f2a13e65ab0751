package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint32 | ~uint64 | ~uintptr
}

// CheckPow2 returns an error wrapping ErrPowerOfTwo if number is not a power of two. Zero is
// accepted, since callers use it to request natural alignment.
func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(ErrPowerOfTwo, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	DebugCheckPow2(alignment, "alignment")
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// AlignAddress rounds an absolute address up to the next multiple of alignment, which must be
// a power of two
func AlignAddress(address uintptr, alignment uint) uintptr {
	DebugCheckPow2(alignment, "alignment")
	return (address + uintptr(alignment) - 1) &^ (uintptr(alignment) - 1)
}
