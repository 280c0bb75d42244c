package volume

import "fmt"

// Lifecycle state of a Volume.
type State uint8

const (
	Uninitialized State = iota
	Initializing
	Ready

	// Entered when Init fails; terminal.
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Initializing:
		return "Initializing"
	case Ready:
		return "Ready"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Report misuse of a per-frame call. Returns false if the call must be
// ignored.
func (v *Volume) checkReady(op string) bool {
	if v.state == Ready {
		return true
	}
	msg := fmt.Sprintf("%s called in state %s", op, v.state)
	if v.opts.Strict {
		panic("volume: " + msg)
	}
	v.logger.Warning(msg)
	return false
}

func (v *Volume) checkFrame(op string, frameIndex int) bool {
	if !v.checkReady(op) {
		return false
	}
	if frameIndex >= 0 && frameIndex < len(v.frames) {
		return true
	}
	msg := fmt.Sprintf("%s: frame index %d outside [0, %d)", op, frameIndex, len(v.frames))
	if v.opts.Strict {
		panic("volume: " + msg)
	}
	v.logger.Warning(msg)
	return false
}
