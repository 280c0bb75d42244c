package gpu

import "errors"

var (
	ErrInvalidTransition = errors.New("gpu: invalid resource state transition")
	ErrTableFull         = errors.New("gpu: shader table is full")
	ErrRecordTooLarge    = errors.New("gpu: shader record exceeds table stride")
	ErrOutOfMemory       = errors.New("gpu: out of device memory")
	ErrNotMappable       = errors.New("gpu: buffer is not CPU accessible")
	ErrUnsupported       = errors.New("gpu: feature not supported by device")
)
