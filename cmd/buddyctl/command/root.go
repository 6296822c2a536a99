// Package command implements the buddyctl commands: an inspection and exercise tool for a single
// buddy region configured from flags, environment, or a config file.
package command

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vkngwrapper/buddy/arena"
	"github.com/vkngwrapper/buddy/memutils/buddy"
	"golang.org/x/exp/slog"
)

const (
	defaultTotalSize    = 8 * 1024 * 1024
	defaultMinBlockSize = 256 * 1024
	defaultBase         = "0xC000000"
)

// Commandline holds the configuration shared by every buddyctl command
type Commandline struct {
	v       *viper.Viper
	cfgFile string
}

func NewCommandline() *Commandline {
	return &Commandline{v: viper.New()}
}

// Root builds the buddyctl command tree
func (cl *Commandline) Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buddyctl",
		Short: "Inspect and exercise a buddy-system memory region",
		Long: `Inspect and exercise a buddy-system memory region.

Environment variables:
  BUDDYCTL_REGION=0
  BUDDYCTL_TOTAL_SIZE=8388608
  BUDDYCTL_MIN_BLOCK_SIZE=262144
  BUDDYCTL_BASE=0xC000000`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cl.initConfig(cmd)
		},
	}

	cl.setupFlags(cmd.PersistentFlags())
	cl.setupDefaults()

	cmd.AddCommand(
		cl.addressesCmd(),
		cl.demoCmd(),
		cl.allocSequenceCmd(),
	)

	return cmd
}

func (cl *Commandline) setupFlags(flags *pflag.FlagSet) {
	flags.StringVar(&cl.cfgFile, "config", "", "config file (yaml, toml, or json)")
	flags.Int("region", 0, "region slot to configure and use")
	flags.Int("total-size", defaultTotalSize, "size in bytes of the region, a power of two")
	flags.Int("min-block-size", defaultMinBlockSize, "smallest block in bytes, a power of two")
	flags.String("base", defaultBase, "address of the first byte of the region")
	flags.BoolP("verbose", "v", false, "log every allocator operation to stderr")
}

func (cl *Commandline) setupDefaults() {
	cl.v.SetDefault("region", 0)
	cl.v.SetDefault("total-size", defaultTotalSize)
	cl.v.SetDefault("min-block-size", defaultMinBlockSize)
	cl.v.SetDefault("base", defaultBase)
	cl.v.SetDefault("verbose", false)
}

func (cl *Commandline) initConfig(cmd *cobra.Command) error {
	for _, name := range []string{"region", "total-size", "min-block-size", "base", "verbose"} {
		err := cl.v.BindPFlag(name, cmd.Flags().Lookup(name))
		if err != nil {
			return err
		}
	}

	cl.v.SetEnvPrefix("BUDDYCTL")
	cl.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cl.v.AutomaticEnv()

	if cl.cfgFile != "" {
		cl.v.SetConfigFile(cl.cfgFile)
		err := cl.v.ReadInConfig()
		if err != nil {
			return errors.Wrapf(err, "failed to read config file %s", cl.cfgFile)
		}
	}

	return nil
}

func (cl *Commandline) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if cl.v.GetBool("verbose") {
		level = slog.LevelDebug
	}

	return slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(cmd.ErrOrStderr()))
}

func (cl *Commandline) regionInfo() (buddy.RegionCreateInfo, error) {
	base, err := strconv.ParseUint(cl.v.GetString("base"), 0, 64)
	if err != nil {
		return buddy.RegionCreateInfo{}, errors.Wrapf(err, "invalid base address %q", cl.v.GetString("base"))
	}

	return buddy.RegionCreateInfo{
		TotalSize:    cl.v.GetInt("total-size"),
		MinBlockSize: cl.v.GetInt("min-block-size"),
		Base:         uintptr(base),
	}, nil
}

// openArena builds an arena with the configured region bound to its slot
func (cl *Commandline) openArena(cmd *cobra.Command) (*arena.Arena, arena.RegionID, error) {
	info, err := cl.regionInfo()
	if err != nil {
		return nil, 0, err
	}

	id := arena.RegionID(cl.v.GetInt("region"))

	a, err := arena.New(cl.logger(cmd), arena.CreateOptions{})
	if err != nil {
		return nil, 0, err
	}

	err = a.Configure(id, info)
	if err != nil {
		return nil, 0, err
	}

	return a, id, nil
}
