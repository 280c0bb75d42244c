package soft

import (
	"fmt"

	"github.com/StarsX/SparseVolumeDXR/gpu"
)

func (d *Device) hostTexture(t gpu.Texture) (*texture, error) {
	st, ok := t.(*texture)
	if !ok || st.dev != d {
		return nil, fmt.Errorf("soft device: texture %s was not created by this device", t.Label())
	}
	if st.texels == nil {
		return nil, fmt.Errorf("soft device: texture %s was released", st.label)
	}
	return st, nil
}

// Copy the raw texels of one array layer. Integer formats hold their values,
// other formats hold float32 bits, one entry per channel.
func (d *Device) ReadTexels(t gpu.Texture, layer uint32) ([]uint32, error) {
	st, err := d.hostTexture(t)
	if err != nil {
		return nil, err
	}
	if layer >= st.layers {
		return nil, fmt.Errorf("soft device: layer %d outside %s (%d layers)", layer, st.label, st.layers)
	}
	start := st.offset(0, 0, int(layer))
	end := st.offset(0, 0, int(layer)+1)
	return append([]uint32(nil), st.texels[start:end]...), nil
}

// Copy the texels of a color or depth texture as RGBA values in row-major
// order. Missing channels read as 0 and missing alpha as 1.
func (d *Device) ReadColors(t gpu.Texture) ([][4]float32, error) {
	st, err := d.hostTexture(t)
	if err != nil {
		return nil, err
	}
	if !gpu.IsColorFormat(st.format) && !gpu.IsDepthFormat(st.format) {
		return nil, fmt.Errorf("soft device: %s has non-float format %v", st.label, st.format)
	}

	out := make([][4]float32, int(st.width)*int(st.height))
	for y := 0; y < int(st.height); y++ {
		for x := 0; x < int(st.width); x++ {
			out[y*int(st.width)+x] = st.loadColor(x, y)
		}
	}
	return out, nil
}
