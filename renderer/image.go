package renderer

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrjoshuak/go-openexr/exr"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

type encoder func(w io.Writer, img image.Image) error

var encoders = map[string]encoder{
	".png":  png.Encode,
	".bmp":  bmp.Encode,
	".tif":  tiffEncode,
	".tiff": tiffEncode,
}

func tiffEncode(w io.Writer, img image.Image) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
}

// Write img to imgFile picking the encoder from the file extension. EXR
// files keep float values; other formats are clamped to 8 bits.
func SaveImage(imgFile string, img image.Image) error {
	ext := strings.ToLower(filepath.Ext(imgFile))
	if ext == ".exr" {
		return exr.EncodeFile(imgFile, toFloatImage(img))
	}

	enc, supported := encoders[ext]
	if !supported {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}

	f, err := os.Create(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	if err = enc(f, img); err != nil {
		return err
	}
	return f.Close()
}

func toFloatImage(img image.Image) *exr.RGBAImage {
	if fimg, isFloat := img.(*exr.RGBAImage); isFloat {
		return fimg
	}
	bounds := img.Bounds()
	out := exr.NewRGBAImage(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			out.SetRGBA(x, y, float32(r)/0xffff, float32(g)/0xffff, float32(b)/0xffff, float32(a)/0xffff)
		}
	}
	return out
}

// Scale the channels of a float image so that its largest color value
// maps to 1.
func Normalize(img image.Image) image.Image {
	fimg := toFloatImage(img)
	var peak float32
	for i, v := range fimg.Pix {
		if i%4 != 3 && v > peak {
			peak = v
		}
	}
	if peak == 0 {
		return fimg
	}

	out := exr.NewRGBAImage(fimg.Rect)
	for i, v := range fimg.Pix {
		if i%4 == 3 {
			out.Pix[i] = v
			continue
		}
		out.Pix[i] = v / peak
	}
	return out
}
