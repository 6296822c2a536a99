package arena

import (
	"fmt"
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/buddy/memutils"
)

// Statistics holds the detailed statistics of every region slot and their sum
type Statistics struct {
	// Regions is indexed by RegionID. Unconfigured slots hold cleared statistics.
	Regions []memutils.DetailedStatistics
	Total   memutils.DetailedStatistics
}

// CalculateStatistics fills stats with the current state of every region
func (a *Arena) CalculateStatistics(stats *Statistics) {
	defer a.table.Read()()

	a.calculateStatistics(stats)
}

// calculateStatistics expects the table lock to be held
func (a *Arena) calculateStatistics(stats *Statistics) {
	stats.Total.Clear()
	if cap(stats.Regions) < len(a.slots) {
		stats.Regions = make([]memutils.DetailedStatistics, len(a.slots))
	}
	stats.Regions = stats.Regions[:len(a.slots)]

	for id, slot := range a.slots {
		stats.Regions[id].Clear()

		release := slot.lock.Hold()
		if slot.region != nil {
			slot.region.AddDetailedStatistics(&stats.Regions[id])
		}
		release()

		stats.Total.AddDetailedStatistics(&stats.Regions[id])
	}
}

// BuildStatsString returns a JSON document with the statistics of the arena and each configured region.
// When detailed is set, each region also lists every block. Each region's statistics and block data
// are taken under the same lock, so they always describe the same state.
func (a *Arena) BuildStatsString(detailed bool) string {
	defer a.table.Read()()

	writer := jwriter.NewWriter()
	root := writer.Object()

	root.Name("Flags").String(a.createFlags.String())

	var total memutils.DetailedStatistics
	total.Clear()

	regionsObj := root.Name("Regions").Object()
	for id, slot := range a.slots {
		a.printRegion(&regionsObj, RegionID(id), slot, detailed, &total)
	}
	regionsObj.End()

	totalObj := root.Name("Total").Object()
	printDetailedStatistics(&totalObj, &total)
	totalObj.End()

	root.End()

	return string(writer.Bytes())
}

func (a *Arena) printRegion(json *jwriter.ObjectState, id RegionID, slot *regionSlot, detailed bool, total *memutils.DetailedStatistics) {
	defer slot.lock.Hold()()

	if slot.region == nil {
		return
	}

	var stats memutils.DetailedStatistics
	stats.Clear()
	slot.region.AddDetailedStatistics(&stats)
	total.AddDetailedStatistics(&stats)

	regionObj := json.Name(strconv.Itoa(int(id))).Object()
	defer regionObj.End()

	statsObj := regionObj.Name("Stats").Object()
	printDetailedStatistics(&statsObj, &stats)
	statsObj.End()

	if detailed {
		slot.region.PrintDetailedMap(&regionObj)
	} else {
		slot.region.BlockJsonData(&regionObj)
	}
}

func printDetailedStatistics(json *jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	json.Name("RegionCount").Int(stats.RegionCount)
	json.Name("RegionBytes").Int(stats.RegionBytes)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("AllocationBytes").Int(stats.AllocationBytes)
	json.Name("FreeBlockCount").Int(stats.FreeBlockCount)

	if stats.AllocationCount > 0 {
		json.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		json.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}

	if stats.FreeBlockCount > 0 {
		json.Name("FreeBlockSizeMin").Int(stats.FreeBlockSizeMin)
		json.Name("FreeBlockSizeMax").Int(stats.FreeBlockSizeMax)
	}
}

func formatAddress(address uintptr) string {
	return fmt.Sprintf("%#x", address)
}
