// Package diag renders read-only views of a buddy.Region for humans: an ASCII map of the minimum-size
// blocks and a table of every tree node's geometry.
package diag

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/vkngwrapper/buddy/memutils/buddy"
)

const (
	// MapFree marks a minimum block that no allocation covers
	MapFree = '-'
	// MapUsed marks a minimum block covered by exactly one allocation
	MapUsed = 'U'
	// MapOverlap marks a minimum block covered by more than one used node, which only a corrupt tree
	// can produce
	MapOverlap = '*'
)

// BlockMap returns one character per minimum-size block of the region, in address order. Every
// used node paints the blocks it covers, so a block painted twice shows up as MapOverlap.
func BlockMap(region *buddy.Region) (string, error) {
	blocks := make([]byte, region.MapSize())
	fillMap(blocks, 0, len(blocks), MapFree)

	for k := 0; k < region.TreeSize(); k++ {
		node, err := region.Node(k)
		if err != nil {
			return "", err
		}

		if !node.Used {
			continue
		}

		start := node.Offset / region.MinBlockSize()
		fillMap(blocks, start, start+node.Size/region.MinBlockSize(), MapUsed)
	}

	return string(blocks), nil
}

func fillMap(blocks []byte, start, end int, c byte) {
	for i := start; i < end; i++ {
		if c == MapFree || blocks[i] == MapFree {
			blocks[i] = c
		} else {
			blocks[i] = MapOverlap
		}
	}
}

// WriteAddressTable writes the level, index, offset, address, size, and state of every tree node to
// w, root first and level by level
func WriteAddressTable(w io.Writer, region *buddy.Region) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Level", "Node", "Offset", "Address", "Size", "State"})
	table.SetAutoFormatHeaders(false)

	for k := 0; k < region.TreeSize(); k++ {
		node, err := region.Node(k)
		if err != nil {
			return err
		}

		table.Append([]string{
			strconv.Itoa(node.Level),
			strconv.Itoa(node.Index),
			fmt.Sprintf("%08X", node.Offset),
			fmt.Sprintf("%#x", region.Base()+uintptr(node.Offset)),
			fmt.Sprintf("%08X", node.Size),
			node.State().String(),
		})
	}

	table.Render()
	return nil
}
