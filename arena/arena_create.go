package arena

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddy/arena/internal/utils"
	"github.com/vkngwrapper/buddy/memutils"
	"golang.org/x/exp/slog"
)

const (
	// DefaultMaxRegions is the number of region slots an arena has when CreateOptions.MaxRegions is
	// left at zero
	DefaultMaxRegions int = 4
)

// CreateOptions contains optional settings when creating an arena
type CreateOptions struct {
	// Flags indicates specific arena behaviors to activate or deactivate
	Flags CreateFlags
	// MaxRegions is the number of region slots. Region ids run from 0 to MaxRegions-1.
	MaxRegions int

	// Callbacks is an optional receiver that is notified of every successful Alloc and Free. It is
	// called while the region's lock is held, so it must not call back into the arena for the same
	// region.
	Callbacks MemoryCallbacks
}

// New creates a new Arena with every region slot unconfigured
//
// logger - Receives debug traces of every operation and error-level reports of memory that was never
// freed
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Arena, error) {
	if logger == nil {
		return nil, errors.New("arena.New was called with a nil logger")
	}

	maxRegions := options.MaxRegions
	if maxRegions == 0 {
		maxRegions = DefaultMaxRegions
	} else if maxRegions < 0 {
		return nil, errors.Wrapf(memutils.InvalidConfigurationError, "CreateOptions.MaxRegions must not be negative, but was %d", maxRegions)
	}

	logger.Debug("Arena::New",
		slog.String("flags", options.Flags.String()),
		slog.Int("maxRegions", maxRegions),
		slog.Bool("debugValidation", memutils.DebugEnabled),
	)

	useMutex := options.Flags&ArenaCreateExternallySynchronized == 0

	arena := &Arena{
		logger:      logger,
		createFlags: options.Flags,
		callbacks:   memoryCallbacks{Callbacks: options.Callbacks},
		table:       utils.NewTableLock(useMutex),
		slots:       make([]*regionSlot, maxRegions),
	}

	for i := range arena.slots {
		arena.slots[i] = &regionSlot{
			lock: utils.NewSlotLock(useMutex),
		}
	}

	return arena, nil
}
