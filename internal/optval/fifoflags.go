package optval

import (
	"strings"

	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/fifo"
)

// ParseFIFOFlags parses the comma-separated `fifo_flags` option value
// ("block_no_input", "block_max_output", "pull_no_block") into a
// fifo.Flags bitset plus the separately-tracked pull-no-block bit.
// Unknown tokens are reported as an InvalidArgError rather than silently
// ignored, since a typo'd policy name would otherwise change backpressure
// behavior invisibly.
func ParseFIFOFlags(s string) (flags fifo.Flags, pullNoBlock bool, err error) {
	if strings.TrimSpace(s) == "" {
		return 0, false, nil
	}
	for _, tok := range strings.Split(s, ",") {
		switch strings.TrimSpace(tok) {
		case "block_no_input":
			flags |= fifo.BlockNoInput
		case "block_max_output":
			flags |= fifo.BlockMaxOutput
		case "pull_no_block":
			pullNoBlock = true
		case "":
			// tolerate trailing/leading commas
		default:
			return 0, false, errors.NewInvalidArgError("optval.parse_fifo_flags."+tok, nil)
		}
	}
	return flags, pullNoBlock, nil
}

// ApplyFIFOFlags reads the `fifo_flags` key out of opts (if present)
// and applies it to f via SetFlags/SetPullNoBlock. Keys other than
// fifo_flags are left for the caller to forward unchanged to the
// underlying media library.
func ApplyFIFOFlags[T fifo.Releasable[T]](f *fifo.FIFO[T], opts Dict) error {
	raw, ok := opts.Lookup("fifo_flags")
	if !ok {
		return nil
	}
	s, ok := raw.AsString()
	if !ok {
		return errors.NewInvalidArgError("optval.fifo_flags.not_string", nil)
	}
	flags, pullNoBlock, err := ParseFIFOFlags(s)
	if err != nil {
		return err
	}
	f.SetFlags(flags)
	f.SetPullNoBlock(pullNoBlock)
	return nil
}
