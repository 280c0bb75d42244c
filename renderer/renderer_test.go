package renderer

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrjoshuak/go-openexr/exr"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const cubeOBJ = `v -0.5 -0.5 -0.5
v  0.5 -0.5 -0.5
v  0.5  0.5 -0.5
v -0.5  0.5 -0.5
v -0.5 -0.5  0.5
v  0.5 -0.5  0.5
v  0.5  0.5  0.5
v -0.5  0.5  0.5
f 1 4 3 2
f 5 6 7 8
f 1 5 8 4
f 2 3 7 6
f 4 8 7 3
f 1 2 6 5
`

func writeCube(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "cube.obj")
	if err := os.WriteFile(path, []byte(cubeOBJ), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testOptions(rayTracing bool) Options {
	opts := DefaultOptions()
	opts.FrameW, opts.FrameH = 48, 32
	opts.Frames = 4
	opts.ShadowMapSize = 64
	opts.Workers = 2
	opts.RayTracing = rayTracing
	return opts
}

func TestHeadlessRender(t *testing.T) {
	for _, rayTracing := range []bool{false, true} {
		r, err := NewHeadless(writeCube(t), testOptions(rayTracing))
		if err != nil {
			t.Fatal(err)
		}

		if _, err = r.Frame(); !errors.Is(err, ErrNotRendered) {
			t.Fatalf("[ray tracing %t] expected ErrNotRendered before the first frame; got %v", rayTracing, err)
		}
		if err = r.Render(); err != nil {
			t.Fatal(err)
		}

		stats := r.Stats()
		if len(stats.Frames) != 4 {
			t.Fatalf("[ray tracing %t] expected 4 frame stats; got %d", rayTracing, len(stats.Frames))
		}
		for i, stat := range stats.Frames {
			if stat.Slot != i%3 {
				t.Fatalf("[ray tracing %t] expected frame %d to use slot %d; got %d", rayTracing, i, i%3, stat.Slot)
			}
			if stat.Fragments == 0 {
				t.Fatalf("[ray tracing %t] expected frame %d to rasterize fragments", rayTracing, i)
			}
			if rayTracing && (stat.Rays == 0 || stat.Rays > 48*32) {
				t.Fatalf("[ray tracing %t] expected at most one ray per pixel; got %d", rayTracing, stat.Rays)
			}
			if !rayTracing && stat.Rays != 0 {
				t.Fatalf("[ray tracing %t] expected no rays; got %d", rayTracing, stat.Rays)
			}
		}

		img, err := r.Frame()
		if err != nil {
			t.Fatal(err)
		}
		if img.Bounds() != image.Rect(0, 0, 48, 32) {
			t.Fatalf("[ray tracing %t] expected 48x32 frame; got %v", rayTracing, img.Bounds())
		}

		_, err = r.Thickness()
		if rayTracing && err != nil {
			t.Fatal(err)
		}
		if !rayTracing && !errors.Is(err, ErrNoRayTracedOut) {
			t.Fatalf("expected ErrNoRayTracedOut; got %v", err)
		}
		r.Close()
	}
}

func TestNewHeadlessErrors(t *testing.T) {
	specs := []struct {
		opts func(*Options)
		exp  error
	}{
		{func(o *Options) { o.Frames = 0 }, ErrNoFrames},
		{func(o *Options) { o.FrameW = 0 }, ErrBadFrameSize},
	}

	for specIndex, spec := range specs {
		opts := testOptions(false)
		spec.opts(&opts)
		if _, err := NewHeadless("cube.obj", opts); !errors.Is(err, spec.exp) {
			t.Fatalf("[spec %d] expected error %v; got %v", specIndex, spec.exp, err)
		}
	}
}

func TestSaveImage(t *testing.T) {
	img := exr.NewRGBAImage(image.Rect(0, 0, 4, 2))
	img.SetRGBA(1, 1, 2, 1, 0.5, 1)
	dir := t.TempDir()

	decoders := map[string]func(f *os.File) (image.Image, error){
		"frame.png":  func(f *os.File) (image.Image, error) { return png.Decode(f) },
		"frame.bmp":  func(f *os.File) (image.Image, error) { return bmp.Decode(f) },
		"frame.tiff": func(f *os.File) (image.Image, error) { return tiff.Decode(f) },
	}
	for name, decode := range decoders {
		path := filepath.Join(dir, name)
		if err := SaveImage(path, img); err != nil {
			t.Fatal(err)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		decoded, err := decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("[%s] %v", name, err)
		}
		if decoded.Bounds() != img.Bounds() {
			t.Fatalf("[%s] expected bounds %v; got %v", name, img.Bounds(), decoded.Bounds())
		}
		if r, _, _, _ := decoded.At(1, 1).RGBA(); r != 0xffff {
			t.Fatalf("[%s] expected the red channel to clamp to 0xffff; got %#x", name, r)
		}
	}

	exrPath := filepath.Join(dir, "frame.exr")
	if err := SaveImage(exrPath, img); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(exrPath); err != nil || info.Size() == 0 {
		t.Fatalf("expected a non-empty exr file; got %v", err)
	}

	if err := SaveImage(filepath.Join(dir, "frame.gif"), img); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat; got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	img := exr.NewRGBAImage(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, 4, 2, 0, 1)
	img.SetRGBA(1, 0, 1, 0, 0, 0.5)

	out := Normalize(img).(*exr.RGBAImage)
	exp := []float32{1, 0.5, 0, 1, 0.25, 0, 0, 0.5}
	for i, v := range exp {
		if out.Pix[i] != v {
			t.Fatalf("expected pixels %v; got %v", exp, out.Pix)
		}
	}
}
