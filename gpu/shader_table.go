package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

const (
	// Shader records are padded to a multiple of this size.
	ShaderRecordAlignment = 32

	// Shader tables start at addresses that are a multiple of this size.
	ShaderTableAlignment = 64
)

// A shader record: a device specific shader identifier followed by the
// constant payload consumed through the shader's local layout.
type ShaderRecord struct {
	Identifier []byte
	Payload    []byte
}

func (r ShaderRecord) Size() int {
	return len(r.Identifier) + len(r.Payload)
}

// Stride of records holding an identifier and a payload of the given sizes.
func RecordStride(identifierSize, payloadSize int) uint64 {
	return Align(uint64(identifierSize+payloadSize), ShaderRecordAlignment)
}

// ShaderTable is a fixed-capacity, fixed-stride array of shader records
// stored in an upload heap buffer.
type ShaderTable struct {
	buf      Buffer
	stride   uint64
	capacity int
	count    int
}

// Allocate a table for capacity records carrying up to payloadSize bytes each.
func NewShaderTable(dev Device, label string, capacity, payloadSize int) (*ShaderTable, error) {
	stride := RecordStride(dev.ShaderIdentifierSize(), payloadSize)
	buf, err := dev.CreateBuffer(BufferDescriptor{
		Label:        label,
		Size:         Align(stride*uint64(capacity), ShaderTableAlignment),
		Heap:         HeapUpload,
		Usage:        gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
		InitialState: StateCommon,
	})
	if err != nil {
		return nil, err
	}
	if buf.Address()%ShaderTableAlignment != 0 {
		return nil, fmt.Errorf("gpu: shader table %s is not %d byte aligned", label, ShaderTableAlignment)
	}

	return &ShaderTable{
		buf:      buf,
		stride:   stride,
		capacity: capacity,
	}, nil
}

// Drop all records. The backing buffer is kept.
func (t *ShaderTable) Reset() {
	t.count = 0
}

// Append a record.
func (t *ShaderTable) Add(rec ShaderRecord) error {
	if t.count >= t.capacity {
		return fmt.Errorf("%w: %s holds %d records", ErrTableFull, t.buf.Label(), t.capacity)
	}
	if uint64(rec.Size()) > t.stride {
		return fmt.Errorf("%w: %d > %d bytes", ErrRecordTooLarge, rec.Size(), t.stride)
	}

	data := make([]byte, t.stride)
	copy(data, rec.Identifier)
	copy(data[len(rec.Identifier):], rec.Payload)
	if err := t.buf.Write(uint64(t.count)*t.stride, data); err != nil {
		return err
	}
	t.count++
	return nil
}

func (t *ShaderTable) Len() int {
	return t.count
}

func (t *ShaderTable) Stride() uint64 {
	return t.stride
}

func (t *ShaderTable) Buffer() Buffer {
	return t.buf
}

// The region covering the records added since the last Reset.
func (t *ShaderTable) Range() TableRange {
	return TableRange{
		Buffer: t.buf,
		Size:   uint64(t.count) * t.stride,
		Stride: t.stride,
	}
}

// Read back record i including its padding.
func (t *ShaderTable) Record(i int) ([]byte, error) {
	if i < 0 || i >= t.count {
		return nil, fmt.Errorf("gpu: record %d out of range [0, %d)", i, t.count)
	}
	out := make([]byte, t.stride)
	if err := t.buf.Read(uint64(i)*t.stride, out); err != nil {
		return nil, err
	}
	return out, nil
}
