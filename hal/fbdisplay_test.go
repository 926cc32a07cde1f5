package hal

import (
	"image/color"
	"testing"

	"tinygo.org/x/drivers"
)

type memFramebuffer struct {
	w, h     int
	buf      []byte
	presents int
}

func newMemFramebuffer(w, h int) *memFramebuffer {
	return &memFramebuffer{w: w, h: h, buf: make([]byte, w*h*2)}
}

func (f *memFramebuffer) Width() int          { return f.w }
func (f *memFramebuffer) Height() int         { return f.h }
func (f *memFramebuffer) Format() PixelFormat { return PixelFormatRGB565 }
func (f *memFramebuffer) StrideBytes() int    { return f.w * 2 }
func (f *memFramebuffer) Buffer() []byte      { return f.buf }
func (f *memFramebuffer) ClearRGB(r, g, b uint8) {}
func (f *memFramebuffer) Present() error      { f.presents++; return nil }

func (f *memFramebuffer) pixel(x, y int) uint16 {
	off := y*f.w*2 + x*2
	return uint16(f.buf[off]) | uint16(f.buf[off+1])<<8
}

func TestFBDisplaySetPixel(t *testing.T) {
	fb := newMemFramebuffer(8, 4)
	d := NewFBDisplay(fb)

	if w, h := d.Size(); w != 8 || h != 4 {
		t.Fatalf("Size() = %d, %d, want 8, 4", w, h)
	}

	d.SetPixel(3, 2, color.RGBA{R: 255, A: 255})
	if got, want := fb.pixel(3, 2), rgb565(255, 0, 0); got != want {
		t.Fatalf("pixel = %#04x, want %#04x", got, want)
	}
	r, g, b := rgb888From565(fb.pixel(3, 2))
	if r != 255 || g != 0 || b != 0 {
		t.Fatalf("rgb888From565() = %d, %d, %d, want 255, 0, 0", r, g, b)
	}

	for _, c := range [][3]uint8{{0, 0, 0}, {255, 255, 255}, {0, 255, 0}} {
		r, g, b := rgb888From565(rgb565(c[0], c[1], c[2]))
		if r != c[0] || g != c[1] || b != c[2] {
			t.Fatalf("rgb888From565(rgb565(%v)) = %d, %d, %d", c, r, g, b)
		}
	}

	// Off-screen writes are dropped.
	d.SetPixel(-1, 0, color.RGBA{G: 255, A: 255})
	d.SetPixel(8, 0, color.RGBA{G: 255, A: 255})

	if err := d.Display(); err != nil || fb.presents != 1 {
		t.Fatalf("Display() = %v, presents = %d", err, fb.presents)
	}
}

func TestFBDisplayFillAndScroll(t *testing.T) {
	fb := newMemFramebuffer(4, 4)
	d := NewFBDisplay(fb)
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	if err := d.FillRectangle(0, 2, 4, 2, white); err != nil {
		t.Fatalf("FillRectangle() error = %v", err)
	}
	if fb.pixel(0, 1) != 0 || fb.pixel(3, 3) != 0xffff {
		t.Fatalf("FillRectangle() filled the wrong rows")
	}

	if err := d.ScrollUp(2, color.RGBA{A: 255}); err != nil {
		t.Fatalf("ScrollUp() error = %v", err)
	}
	if fb.pixel(0, 0) != 0xffff || fb.pixel(0, 3) != 0 {
		t.Fatalf("ScrollUp() did not move rows up")
	}

	if err := d.SetRotation(drivers.Rotation0); err != nil {
		t.Fatalf("SetRotation(0) error = %v", err)
	}
	if err := d.SetRotation(drivers.Rotation90); err == nil {
		t.Fatal("SetRotation(90) succeeded")
	}
}

func TestFBDisplayNil(t *testing.T) {
	d := NewFBDisplay(nil)
	if w, h := d.Size(); w != 0 || h != 0 {
		t.Fatalf("Size() = %d, %d, want 0, 0", w, h)
	}
	d.SetPixel(0, 0, color.RGBA{})
	if err := d.Display(); err != nil {
		t.Fatalf("Display() = %v", err)
	}
}
