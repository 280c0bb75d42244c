package gpu

import "github.com/gogpu/gputypes"

// Bytes per texel of the formats the renderer uses; 0 for anything else.
func TexelSize(format gputypes.TextureFormat) int {
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatR32Uint, gputypes.TextureFormatR32Float,
		gputypes.TextureFormatDepth32Float, gputypes.TextureFormatDepth24PlusStencil8:
		return 4
	case gputypes.TextureFormatRG32Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	}
	return 0
}

func IsDepthFormat(format gputypes.TextureFormat) bool {
	return format == gputypes.TextureFormatDepth32Float || format == gputypes.TextureFormatDepth24PlusStencil8
}

// Formats holding normalized or float color.
func IsColorFormat(format gputypes.TextureFormat) bool {
	switch format {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatR32Float, gputypes.TextureFormatRG32Float, gputypes.TextureFormatRGBA32Float:
		return true
	}
	return false
}
