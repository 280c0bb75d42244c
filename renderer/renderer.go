// Package renderer drives a sparse volume through a headless frame loop on
// the CPU reference device.
package renderer

import (
	"image"
)

type Renderer interface {
	// Render the configured number of frames.
	Render() error

	// Release the volume and host targets.
	Close()

	// Get render statistics.
	Stats() FrameStats

	// Contents of the color target after the last frame.
	Frame() (image.Image, error)
}
