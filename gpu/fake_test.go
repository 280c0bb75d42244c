package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

type fakeResource struct {
	label string
	state ResourceState
}

func (r *fakeResource) Label() string            { return r.label }
func (r *fakeResource) State() ResourceState     { return r.state }
func (r *fakeResource) SetState(s ResourceState) { r.state = s }

type fakeBuffer struct {
	fakeResource
	address uint64
	data    []byte
}

func (b *fakeBuffer) Size() uint64    { return uint64(len(b.data)) }
func (b *fakeBuffer) Address() uint64 { return b.address }

func (b *fakeBuffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("write out of range")
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *fakeBuffer) Read(offset uint64, dst []byte) error {
	if offset+uint64(len(dst)) > uint64(len(b.data)) {
		return fmt.Errorf("read out of range")
	}
	copy(dst, b.data[offset:])
	return nil
}

type fakeTexture struct {
	fakeResource
	format gputypes.TextureFormat
}

func (t *fakeTexture) Width() uint32                  { return 1 }
func (t *fakeTexture) Height() uint32                 { return 1 }
func (t *fakeTexture) ArrayLayers() uint32            { return 1 }
func (t *fakeTexture) Format() gputypes.TextureFormat { return t.format }

// Only the methods used by the tests are implemented; the embedded nil
// interfaces panic if anything else is called.
type fakeDevice struct {
	Device
	idSize  int
	address uint64
}

func (d *fakeDevice) ShaderIdentifierSize() int { return d.idSize }

func (d *fakeDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	b := &fakeBuffer{
		fakeResource: fakeResource{label: desc.Label, state: desc.InitialState},
		address:      d.address,
		data:         make([]byte, desc.Size),
	}
	d.address += Align(desc.Size, 256)
	return b, nil
}

type recordingList struct {
	CommandList
	barriers []Barrier
}

func (l *recordingList) Barrier(barriers ...Barrier) {
	l.barriers = append(l.barriers, barriers...)
}
