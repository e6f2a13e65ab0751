package pool

import (
	"io"

	"github.com/vkngwrapper/arena/internal/utils"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific pool behaviors to activate or deactivate
type CreateFlags uint32

var createFlagsMapping = utils.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// CreateInternallySynchronized guards every call on a single-threaded pool with an internal
	// mutex, so it can be shared between goroutines without the caller serializing access. Pools
	// are not synchronized by default. ConcurrentPool ignores this flag.
	CreateInternallySynchronized CreateFlags = 1 << iota
)

func init() {
	CreateInternallySynchronized.Register("CreateInternallySynchronized")
}

// CreateOptions contains the settings used to build a pool
type CreateOptions struct {
	// Flags indicates specific pool behaviors to activate or deactivate
	Flags CreateFlags
	// Capacity is the size in bytes of the backing buffer. The buffer is allocated once, when
	// the pool is created, and never grows.
	Capacity int
}

// FixedSizeCreateOptions contains the settings used to build a FixedSizePool
type FixedSizeCreateOptions struct {
	// Flags indicates specific pool behaviors to activate or deactivate
	Flags CreateFlags
	// ElementSize is the size in bytes of every slot. It is rounded up to a multiple of Alignment.
	ElementSize int
	// MaxElements is the number of slots in the pool
	MaxElements int
	// Alignment is the largest alignment the pool will honor. It must be a power of two. If left
	// at 0, the word size is used.
	Alignment uint
}

func (f CreateFlags) synchronized() bool {
	return f&CreateInternallySynchronized != 0
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard))
}
