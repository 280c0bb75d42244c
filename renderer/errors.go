package renderer

import "errors"

var (
	ErrNoFrames       = errors.New("renderer: at least one frame must be rendered")
	ErrBadFrameSize   = errors.New("renderer: frame dimensions must be positive")
	ErrNotRendered    = errors.New("renderer: no frame has been rendered yet")
	ErrUnknownFormat  = errors.New("renderer: unsupported image format")
	ErrNoRayTracedOut = errors.New("renderer: thickness is only produced by the ray traced path")
)
