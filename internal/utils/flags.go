package utils

import (
	"math/bits"
	"strconv"
	"strings"
	"sync"
)

type Flags interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// FlagStringMapping renders bit flag values as pipe-separated names
type FlagStringMapping[T Flags] struct {
	lock  sync.RWMutex
	names map[T]string
}

func NewFlagStringMapping[T Flags]() *FlagStringMapping[T] {
	return &FlagStringMapping[T]{names: make(map[T]string)}
}

func (m *FlagStringMapping[T]) Register(flag T, name string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.names[flag] = name
}

func (m *FlagStringMapping[T]) FlagsToString(value T) string {
	if value == 0 {
		return "None"
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	var sb strings.Builder
	remaining := uint64(value)
	for remaining != 0 {
		bit := uint64(1) << bits.TrailingZeros64(remaining)
		remaining &^= bit

		if sb.Len() > 0 {
			sb.WriteString("|")
		}

		name, ok := m.names[T(bit)]
		if !ok {
			name = "0x" + strconv.FormatUint(bit, 16)
		}
		sb.WriteString(name)
	}

	return sb.String()
}
