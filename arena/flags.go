package arena

import "github.com/vkngwrapper/buddy/arena/internal/utils"

// CreateFlags indicate specific arena behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = utils.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// ArenaCreateExternallySynchronized ensures that this arena and its regions will not be synchronized
	// internally. The consumer must guarantee they are used from only one goroutine at a time or are
	// synchronized by some other mechanism, but performance may improve because internal mutexes are
	// not used.
	ArenaCreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	ArenaCreateExternallySynchronized.Register("ArenaCreateExternallySynchronized")
}
