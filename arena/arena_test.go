package arena_test

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/buddy/arena"
	"github.com/vkngwrapper/buddy/arena/mocks"
	"github.com/vkngwrapper/buddy/memutils"
	"github.com/vkngwrapper/buddy/memutils/buddy"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

const (
	testTotalSize = 16384
	testMinSize   = 1024
	testBase      = uintptr(0x1000000)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard))
}

func readyArena(t *testing.T, options arena.CreateOptions) *arena.Arena {
	a, err := arena.New(testLogger(), options)
	require.NoError(t, err)

	err = a.Configure(0, buddy.RegionCreateInfo{
		TotalSize:    testTotalSize,
		MinBlockSize: testMinSize,
		Base:         testBase,
	})
	require.NoError(t, err)

	return a
}

func TestNewArena(t *testing.T) {
	a, err := arena.New(testLogger(), arena.CreateOptions{})
	require.NoError(t, err)
	require.Equal(t, arena.DefaultMaxRegions, a.MaxRegions())

	a, err = arena.New(testLogger(), arena.CreateOptions{MaxRegions: 9})
	require.NoError(t, err)
	require.Equal(t, 9, a.MaxRegions())

	_, err = arena.New(testLogger(), arena.CreateOptions{MaxRegions: -1})
	require.ErrorIs(t, err, memutils.InvalidConfigurationError)

	_, err = arena.New(nil, arena.CreateOptions{})
	require.Error(t, err)

	require.Equal(t, "None", arena.CreateFlags(0).String())
	require.Equal(t, "ArenaCreateExternallySynchronized", arena.ArenaCreateExternallySynchronized.String())
}

func TestArenaDispatchesByRegion(t *testing.T) {
	a := readyArena(t, arena.CreateOptions{})

	err := a.Configure(1, buddy.RegionCreateInfo{
		TotalSize:    1 << 20,
		MinBlockSize: 4096,
		Base:         0x40000000,
	})
	require.NoError(t, err)

	first, err := a.Alloc(0, 1000)
	require.NoError(t, err)
	require.Equal(t, testBase, first)

	second, err := a.Alloc(1, 1000)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x40000000), second)

	// Region 1 hands out 4096-byte minimum blocks
	third, err := a.Alloc(1, 1)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x40001000), third)

	// Addresses are only meaningful to the region that produced them
	err = a.Free(0, second)
	require.ErrorIs(t, err, memutils.InvalidFreeAddressError)

	require.NoError(t, a.Free(1, second))
	require.NoError(t, a.Free(1, third))
	require.NoError(t, a.Free(0, first))

	for _, id := range []arena.RegionID{2, 3, 4, -1} {
		_, err = a.Alloc(id, 10)
		require.ErrorIs(t, err, memutils.RegionNotConfiguredError)

		err = a.Free(id, testBase)
		require.ErrorIs(t, err, memutils.RegionNotConfiguredError)

		err = a.Init(id)
		require.ErrorIs(t, err, memutils.RegionNotConfiguredError)

		_, err = a.Region(id)
		require.ErrorIs(t, err, memutils.RegionNotConfiguredError)
	}

	err = a.Configure(4, buddy.RegionCreateInfo{TotalSize: testTotalSize, MinBlockSize: testMinSize})
	require.ErrorIs(t, err, memutils.RegionNotConfiguredError)
}

func TestArenaConfigure(t *testing.T) {
	a := readyArena(t, arena.CreateOptions{})

	err := a.Configure(1, buddy.RegionCreateInfo{TotalSize: 3000, MinBlockSize: testMinSize})
	require.ErrorIs(t, err, memutils.PowerOfTwoError)
	_, err = a.Region(1)
	require.ErrorIs(t, err, memutils.RegionNotConfiguredError)

	address, err := a.Alloc(0, 10)
	require.NoError(t, err)

	err = a.Configure(0, buddy.RegionCreateInfo{TotalSize: 2 * testTotalSize, MinBlockSize: testMinSize})
	require.ErrorIs(t, err, memutils.InvalidConfigurationError)

	region, err := a.Region(0)
	require.NoError(t, err)
	require.Equal(t, testTotalSize, region.Size())

	require.NoError(t, a.Free(0, address))

	err = a.Configure(0, buddy.RegionCreateInfo{TotalSize: 2 * testTotalSize, MinBlockSize: testMinSize})
	require.NoError(t, err)

	region, err = a.Region(0)
	require.NoError(t, err)
	require.Equal(t, 2*testTotalSize, region.Size())
	require.Equal(t, uintptr(0), region.Base())
}

func TestArenaInit(t *testing.T) {
	a := readyArena(t, arena.CreateOptions{})

	for i := 0; i < 4; i++ {
		_, err := a.Alloc(0, 4096)
		require.NoError(t, err)
	}

	_, err := a.Alloc(0, 1)
	require.ErrorIs(t, err, memutils.RegionExhaustedError)

	require.NoError(t, a.Init(0))

	address, err := a.Alloc(0, testTotalSize)
	require.NoError(t, err)
	require.Equal(t, testBase, address)
}

func TestArenaCallbacks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	callbacks := mocks.NewMockMemoryCallbacks(ctrl)
	a := readyArena(t, arena.CreateOptions{Callbacks: callbacks})

	gomock.InOrder(
		callbacks.EXPECT().Allocated(arena.RegionID(0), testBase, 4096),
		callbacks.EXPECT().Allocated(arena.RegionID(0), testBase+4096, 1024),
		callbacks.EXPECT().Freed(arena.RegionID(0), testBase, 4096),
		callbacks.EXPECT().Freed(arena.RegionID(0), testBase+4096, 1024),
	)

	first, err := a.Alloc(0, 4000)
	require.NoError(t, err)
	second, err := a.Alloc(0, 1)
	require.NoError(t, err)

	// Failed operations are not reported
	_, err = a.Alloc(0, 2*testTotalSize)
	require.ErrorIs(t, err, memutils.RequestTooLargeError)
	err = a.Free(0, testBase+8192)
	require.ErrorIs(t, err, memutils.InvalidFreeAddressError)

	require.NoError(t, a.Free(0, first))
	require.NoError(t, a.Free(0, second))
}

func TestArenaReleaseReportsUnfreedMemory(t *testing.T) {
	var out bytes.Buffer
	a, err := arena.New(slog.New(slog.NewTextHandler(&out)), arena.CreateOptions{})
	require.NoError(t, err)

	err = a.Configure(2, buddy.RegionCreateInfo{TotalSize: testTotalSize, MinBlockSize: testMinSize, Base: testBase})
	require.NoError(t, err)

	address, err := a.Alloc(2, 2000)
	require.NoError(t, err)

	err = a.Release(2)
	require.Error(t, err)

	logged := out.String()
	require.Contains(t, logged, "[UNRELEASED MEMORY] unfreed allocation")
	require.Contains(t, logged, "region=2")
	require.Contains(t, logged, "address=0x1000000")
	require.Contains(t, logged, "size=2048")

	// The region stays bound so the allocation can still be returned
	require.NoError(t, a.Free(2, address))
	require.NoError(t, a.Release(2))

	_, err = a.Alloc(2, 1)
	require.ErrorIs(t, err, memutils.RegionNotConfiguredError)

	err = a.Release(2)
	require.ErrorIs(t, err, memutils.RegionNotConfiguredError)
}

func TestArenaDestroy(t *testing.T) {
	a := readyArena(t, arena.CreateOptions{})
	err := a.Configure(3, buddy.RegionCreateInfo{TotalSize: testTotalSize, MinBlockSize: testMinSize})
	require.NoError(t, err)

	address, err := a.Alloc(3, 1)
	require.NoError(t, err)

	require.Error(t, a.Destroy())

	// Region 0 was empty and is gone, region 3 was kept
	_, err = a.Region(0)
	require.ErrorIs(t, err, memutils.RegionNotConfiguredError)
	_, err = a.Region(3)
	require.NoError(t, err)

	require.NoError(t, a.Free(3, address))
	require.NoError(t, a.Destroy())

	_, err = a.Region(3)
	require.ErrorIs(t, err, memutils.RegionNotConfiguredError)
}

func TestArenaConcurrentUse(t *testing.T) {
	a, err := arena.New(testLogger(), arena.CreateOptions{})
	require.NoError(t, err)

	for id := arena.RegionID(0); id < 2; id++ {
		err = a.Configure(id, buddy.RegionCreateInfo{TotalSize: 1 << 20, MinBlockSize: 64, Base: uintptr(id+1) << 20})
		require.NoError(t, err)
	}

	const workers = 8
	const iterations = 500

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			id := arena.RegionID(worker % 2)
			size := 64 << (worker % 5)
			var held []uintptr

			for i := 0; i < iterations; i++ {
				address, err := a.Alloc(id, size)
				if err != nil {
					errs <- errors.Wrapf(err, "worker %d alloc %d", worker, i)
					return
				}
				held = append(held, address)

				if i%3 == 2 {
					for _, address := range held {
						err = a.Free(id, address)
						if err != nil {
							errs <- errors.Wrapf(err, "worker %d free %d", worker, i)
							return
						}
					}
					held = held[:0]
				}
			}

			for _, address := range held {
				err := a.Free(id, address)
				if err != nil {
					errs <- err
					return
				}
			}
		}(worker)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, a.CheckCorruption())

	var stats arena.Statistics
	a.CalculateStatistics(&stats)
	require.Equal(t, 2, stats.Total.RegionCount)
	require.Equal(t, 0, stats.Total.AllocationCount)
	require.Equal(t, 2, stats.Total.FreeBlockCount)
}

func TestArenaExternallySynchronized(t *testing.T) {
	a := readyArena(t, arena.CreateOptions{Flags: arena.ArenaCreateExternallySynchronized})

	address, err := a.Alloc(0, 100)
	require.NoError(t, err)
	require.NoError(t, a.Free(0, address))
	require.True(t, strings.Contains(a.BuildStatsString(false), `"Flags":"ArenaCreateExternallySynchronized"`))
}

func TestArenaStatistics(t *testing.T) {
	a := readyArena(t, arena.CreateOptions{})

	_, err := a.Alloc(0, 4000)
	require.NoError(t, err)
	_, err = a.Alloc(0, 1000)
	require.NoError(t, err)

	var stats arena.Statistics
	a.CalculateStatistics(&stats)

	expected := memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			RegionCount:     1,
			AllocationCount: 2,
			RegionBytes:     testTotalSize,
			AllocationBytes: 5120,
		},
		FreeBlockCount:    3,
		AllocationSizeMin: 1024,
		AllocationSizeMax: 4096,
		FreeBlockSizeMin:  1024,
		FreeBlockSizeMax:  8192,
	}
	require.Len(t, stats.Regions, arena.DefaultMaxRegions)
	require.Equal(t, expected, stats.Regions[0])
	require.Equal(t, expected, stats.Total)
	require.Equal(t, 0, stats.Regions[1].RegionCount)

	require.JSONEq(t, `{
		"Flags": "None",
		"Total": {
			"RegionCount": 1,
			"RegionBytes": 16384,
			"AllocationCount": 2,
			"AllocationBytes": 5120,
			"FreeBlockCount": 3,
			"AllocationSizeMin": 1024,
			"AllocationSizeMax": 4096,
			"FreeBlockSizeMin": 1024,
			"FreeBlockSizeMax": 8192
		},
		"Regions": {
			"0": {
				"Stats": {
					"RegionCount": 1,
					"RegionBytes": 16384,
					"AllocationCount": 2,
					"AllocationBytes": 5120,
					"FreeBlockCount": 3,
					"AllocationSizeMin": 1024,
					"AllocationSizeMax": 4096,
					"FreeBlockSizeMin": 1024,
					"FreeBlockSizeMax": 8192
				},
				"Base": "0x1000000",
				"TotalBytes": 16384,
				"MinBlockBytes": 1024,
				"UnusedBytes": 11264,
				"Allocations": 2,
				"UnusedRanges": 3
			}
		}
	}`, a.BuildStatsString(false))

	detailed := a.BuildStatsString(true)
	require.Contains(t, detailed, `"Blocks":[`)
	require.Contains(t, detailed, `{"Offset":6144,"Size":2048,"Type":"Free"}`)
}

type regionStatsJson struct {
	Stats struct {
		RegionBytes     int
		AllocationCount int
		AllocationBytes int
	}
	TotalBytes  int
	UnusedBytes int
	Allocations int
}

type arenaStatsJson struct {
	Total struct {
		RegionCount     int
		AllocationCount int
	}
	Regions map[string]regionStatsJson
}

func TestArenaStatsStringIsConsistentUnderChurn(t *testing.T) {
	a, err := arena.New(testLogger(), arena.CreateOptions{})
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		sizes := []int{1 << 12, 1 << 14}
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}

			size := sizes[i%2]
			if a.Configure(1, buddy.RegionCreateInfo{TotalSize: size, MinBlockSize: 1024}) != nil {
				continue
			}

			address, err := a.Alloc(1, 1000)
			if err == nil {
				_ = a.Free(1, address)
			}
			_ = a.Release(1)
		}
	}()

	for i := 0; i < 500; i++ {
		var stats arenaStatsJson
		require.NoError(t, json.Unmarshal([]byte(a.BuildStatsString(i%2 == 0)), &stats))

		allocations := 0
		for id, region := range stats.Regions {
			require.Equal(t, region.TotalBytes, region.Stats.RegionBytes, "region %s", id)
			require.Equal(t, region.Allocations, region.Stats.AllocationCount, "region %s", id)
			require.Equal(t, region.TotalBytes-region.UnusedBytes, region.Stats.AllocationBytes, "region %s", id)
			allocations += region.Allocations
		}
		require.Equal(t, len(stats.Regions), stats.Total.RegionCount)
		require.Equal(t, allocations, stats.Total.AllocationCount)
	}

	close(done)
	wg.Wait()
}
