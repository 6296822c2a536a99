package arena

//go:generate mockgen -source callbacks.go -destination ./mocks/callbacks.go -package mocks

// MemoryCallbacks receives a notification for every block an Arena hands out or takes back. Size is the
// size of the whole buddy block, not the size that was requested.
type MemoryCallbacks interface {
	Allocated(region RegionID, address uintptr, size int)
	Freed(region RegionID, address uintptr, size int)
}

type memoryCallbacks struct {
	Callbacks MemoryCallbacks
}

func (c *memoryCallbacks) Allocated(region RegionID, address uintptr, size int) {
	if c.Callbacks != nil {
		c.Callbacks.Allocated(region, address, size)
	}
}

func (c *memoryCallbacks) Freed(region RegionID, address uintptr, size int) {
	if c.Callbacks != nil {
		c.Callbacks.Freed(region, address, size)
	}
}
