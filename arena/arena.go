// Package arena keeps a fixed table of buddy regions and dispatches allocation requests to them by id.
// Each region is locked for the whole of an Alloc or Free, so that the tree is never observed halfway
// through a change.
package arena

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddy/arena/internal/utils"
	"github.com/vkngwrapper/buddy/memutils"
	"github.com/vkngwrapper/buddy/memutils/buddy"
	"golang.org/x/exp/slog"
)

// RegionID selects one of an arena's region slots
type RegionID int

type regionSlot struct {
	lock   *utils.SlotLock
	region *buddy.Region
}

// Arena is a table of independently configured buddy regions. Unless it was created with
// ArenaCreateExternallySynchronized, it is safe for concurrent use.
type Arena struct {
	logger      *slog.Logger
	createFlags CreateFlags
	callbacks   memoryCallbacks

	table *utils.TableLock
	slots []*regionSlot
}

// MaxRegions returns the number of region slots
func (a *Arena) MaxRegions() int {
	return len(a.slots)
}

func (a *Arena) slot(id RegionID) (*regionSlot, error) {
	if id < 0 || int(id) >= len(a.slots) {
		return nil, errors.Wrapf(memutils.RegionNotConfiguredError, "region %d is outside an arena of %d regions", id, len(a.slots))
	}

	return a.slots[id], nil
}

func (a *Arena) configuredSlot(id RegionID) (*regionSlot, error) {
	slot, err := a.slot(id)
	if err != nil {
		return nil, err
	}

	if slot.region == nil {
		return nil, errors.Wrapf(memutils.RegionNotConfiguredError, "region %d", id)
	}

	return slot, nil
}

// Configure binds region id to a new buddy region with the provided geometry and storage. A region that
// still holds live allocations cannot be reconfigured.
func (a *Arena) Configure(id RegionID, info buddy.RegionCreateInfo) error {
	a.logger.Debug("Arena::Configure",
		slog.Int("region", int(id)),
		slog.Int("totalSize", info.TotalSize),
		slog.Int("minBlockSize", info.MinBlockSize),
	)

	defer a.table.Write()()

	slot, err := a.slot(id)
	if err != nil {
		return err
	}

	if slot.region != nil && !slot.region.IsEmpty() {
		return errors.Wrapf(memutils.InvalidConfigurationError, "region %d still holds %d allocations", id, slot.region.AllocationCount())
	}

	region, err := buddy.NewRegion(info)
	if err != nil {
		return errors.Wrapf(err, "failed to configure region %d", id)
	}

	slot.region = region
	return nil
}

// Init returns every block of region id to the free state. Any addresses handed out before are
// forgotten without notifying MemoryCallbacks.
func (a *Arena) Init(id RegionID) error {
	a.logger.Debug("Arena::Init", slog.Int("region", int(id)))

	defer a.table.Read()()

	slot, err := a.configuredSlot(id)
	if err != nil {
		return err
	}

	defer slot.lock.Hold()()

	slot.region.Init()
	return nil
}

// Alloc hands out a block of at least size bytes from region id and returns its address
func (a *Arena) Alloc(id RegionID, size int) (uintptr, error) {
	a.logger.Debug("Arena::Alloc", slog.Int("region", int(id)), slog.Int("size", size))

	defer a.table.Read()()

	slot, err := a.configuredSlot(id)
	if err != nil {
		return 0, err
	}

	defer slot.lock.Hold()()

	address, err := slot.region.Alloc(size)
	if err != nil {
		return 0, err
	}

	a.callbacks.Allocated(id, address, slot.region.BlockSize(size))
	return address, nil
}

// Free returns the block that starts at address to region id
func (a *Arena) Free(id RegionID, address uintptr) error {
	a.logger.Debug("Arena::Free", slog.Int("region", int(id)), slog.String("address", formatAddress(address)))

	defer a.table.Read()()

	slot, err := a.configuredSlot(id)
	if err != nil {
		return err
	}

	defer slot.lock.Hold()()

	size, err := slot.region.Free(address)
	if err != nil {
		return err
	}

	a.callbacks.Freed(id, address, size)
	return nil
}

// Region returns the buddy region bound to id. The region is not locked: the caller must not use it
// concurrently with Alloc, Free, or Init on the same id.
func (a *Arena) Region(id RegionID) (*buddy.Region, error) {
	defer a.table.Read()()

	slot, err := a.configuredSlot(id)
	if err != nil {
		return nil, err
	}

	return slot.region, nil
}

// CheckCorruption validates the tree of every configured region and returns the first inconsistency
// found
func (a *Arena) CheckCorruption() error {
	defer a.table.Read()()

	for id, slot := range a.slots {
		err := a.checkSlot(RegionID(id), slot)
		if err != nil {
			return err
		}
	}

	return nil
}

func (a *Arena) checkSlot(id RegionID, slot *regionSlot) error {
	defer slot.lock.Hold()()

	if slot.region == nil {
		return nil
	}

	err := slot.region.Validate()
	if err != nil {
		return errors.Wrapf(err, "region %d is corrupt", id)
	}

	return nil
}

// Release unbinds region id, leaving the slot unconfigured. If the region still holds allocations,
// each one is logged at error level and the region stays bound.
func (a *Arena) Release(id RegionID) error {
	a.logger.Debug("Arena::Release", slog.Int("region", int(id)))

	defer a.table.Write()()

	slot, err := a.configuredSlot(id)
	if err != nil {
		return err
	}

	return a.releaseSlot(id, slot)
}

func (a *Arena) releaseSlot(id RegionID, slot *regionSlot) error {
	if !slot.region.IsEmpty() {
		slot.region.LogAllocations(context.Background(), a.logger.With(slog.Int("region", int(id))), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation")
		return errors.Newf("region %d still holds %d allocations", id, slot.region.AllocationCount())
	}

	slot.region = nil
	return nil
}

// Destroy releases every configured region. Regions that still hold allocations are reported and left
// bound, and the combined error describes all of them.
func (a *Arena) Destroy() error {
	a.logger.Debug("Arena::Destroy")

	defer a.table.Write()()

	var err error
	for id, slot := range a.slots {
		if slot.region == nil {
			continue
		}

		err = errors.CombineErrors(err, a.releaseSlot(RegionID(id), slot))
	}

	return err
}
