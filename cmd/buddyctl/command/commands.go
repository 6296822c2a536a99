package command

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/buddy/arena"
	"github.com/vkngwrapper/buddy/memutils/diag"
)

func (cl *Commandline) addressesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "addresses",
		Short: "Print the level, offset, address, and size of every node in the region's tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, id, err := cl.openArena(cmd)
			if err != nil {
				return err
			}

			region, err := a.Region(id)
			if err != nil {
				return err
			}

			return diag.WriteAddressTable(cmd.OutOrStdout(), region)
		},
	}
}

func (cl *Commandline) demoCmd() *cobra.Command {
	var printJson bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a fixed allocate and free sequence, printing the block map after every step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, id, err := cl.openArena(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			s := &session{arena: a, id: id, out: out}

			err = s.printMap()
			if err != nil {
				return err
			}

			s.alloc(30000)
			last := s.alloc(15000)
			s.free(last)

			f1 := s.alloc(4000)
			f3 := s.alloc(1000)
			f4 := s.alloc(1000)
			f2 := s.alloc(1000)
			last = s.alloc(4000)

			fmt.Fprintln(out, "Freeing...")
			for _, block := range []allocation{last, f1, f2, f3, f4} {
				s.free(block)
			}

			if s.err != nil {
				return s.err
			}

			if printJson {
				fmt.Fprintln(out, a.BuildStatsString(true))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&printJson, "json", false, "print the arena statistics as json when done")
	return cmd
}

func (cl *Commandline) allocSequenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alloc-sequence size...",
		Short: "Allocate each size in order, then free them in reverse, printing the block map after every step",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sizes := make([]int, 0, len(args))
			for _, arg := range args {
				size, err := strconv.Atoi(arg)
				if err != nil {
					return errors.Wrapf(err, "invalid size %q", arg)
				}
				sizes = append(sizes, size)
			}

			a, id, err := cl.openArena(cmd)
			if err != nil {
				return err
			}

			s := &session{arena: a, id: id, out: cmd.OutOrStdout(), strict: true}

			var blocks []allocation
			for _, size := range sizes {
				block := s.alloc(size)
				if s.err != nil {
					return s.err
				}
				blocks = append(blocks, block)
			}

			for i := len(blocks) - 1; i >= 0; i-- {
				s.free(blocks[i])
				if s.err != nil {
					return s.err
				}
			}

			return a.Destroy()
		},
	}
}

// session runs allocator steps against one region and narrates them. In strict mode the first failed
// step is kept in err and every later step is skipped. Otherwise failures are printed and the sequence
// goes on, and freeing a failed allocation is a no-op.
type session struct {
	arena  *arena.Arena
	id     arena.RegionID
	out    io.Writer
	strict bool
	err    error
}

type allocation struct {
	address uintptr
	ok      bool
}

func (s *session) alloc(size int) allocation {
	if s.err != nil {
		return allocation{}
	}

	fmt.Fprintf(s.out, "Allocating %d\n", size)
	address, err := s.arena.Alloc(s.id, size)
	if err != nil {
		fmt.Fprintf(s.out, "a=<nil> (%v)\n", err)
		if s.strict {
			s.err = err
		}
		return allocation{}
	}

	fmt.Fprintf(s.out, "a=%#x\n", address)
	s.err = s.printMap()
	return allocation{address: address, ok: true}
}

func (s *session) free(block allocation) {
	if s.err != nil || !block.ok {
		return
	}

	fmt.Fprintf(s.out, "Freeing %#x\n", block.address)
	err := s.arena.Free(s.id, block.address)
	if err != nil {
		fmt.Fprintf(s.out, "free failed (%v)\n", err)
		if s.strict {
			s.err = err
		}
		return
	}

	s.err = s.printMap()
}

func (s *session) printMap() error {
	region, err := s.arena.Region(s.id)
	if err != nil {
		return err
	}

	blockMap, err := diag.BlockMap(region)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "|%s|\n", blockMap)
	return nil
}
