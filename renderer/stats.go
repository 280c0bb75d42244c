package renderer

import "time"

type FrameStat struct {
	// Frame number and the frame slot it used.
	Index int
	Slot  int

	// Time spent recording and executing the frame.
	RenderTime time.Duration

	// Device work done for the frame.
	Draws      uint64
	Fragments  uint64
	Dispatches uint64
	Rays       uint64
}

type FrameStats struct {
	// Individual frame stats.
	Frames []FrameStat

	// Total render time for all frames.
	RenderTime time.Duration
}
