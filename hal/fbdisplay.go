package hal

import (
	"image/color"

	"tinygo.org/x/drivers"
)

// FBDisplay adapts an RGB565 Framebuffer to the drivers.Displayer family of
// interfaces, so tinyfont and tinyterm can draw into it.
type FBDisplay struct {
	fb Framebuffer
}

// NewFBDisplay wraps fb. A nil fb yields a zero-sized display.
func NewFBDisplay(fb Framebuffer) *FBDisplay {
	return &FBDisplay{fb: fb}
}

var _ drivers.Displayer = (*FBDisplay)(nil)

func (d *FBDisplay) usable() []byte {
	if d.fb == nil || d.fb.Format() != PixelFormatRGB565 {
		return nil
	}
	return d.fb.Buffer()
}

func (d *FBDisplay) Size() (x, y int16) {
	if d.fb == nil {
		return 0, 0
	}
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d *FBDisplay) SetPixel(x, y int16, c color.RGBA) {
	buf := d.usable()
	if buf == nil {
		return
	}

	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.fb.Width() || iy < 0 || iy >= d.fb.Height() {
		return
	}

	pixel := rgb565(c.R, c.G, c.B)
	off := iy*d.fb.StrideBytes() + ix*2
	if off < 0 || off+1 >= len(buf) {
		return
	}
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

func (d *FBDisplay) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

// ScrollUp moves the picture up by lines pixel rows and clears the exposed
// rows to bg.
func (d *FBDisplay) ScrollUp(lines int16, bg color.RGBA) error {
	buf := d.usable()
	if buf == nil || lines <= 0 {
		return nil
	}

	w, h := d.fb.Width(), d.fb.Height()
	n := int(lines)
	if n >= h {
		return d.FillRectangle(0, 0, int16(w), int16(h), bg)
	}

	stride := d.fb.StrideBytes()
	dstLen := (h - n) * stride
	srcStart := n * stride
	if srcStart+dstLen > len(buf) {
		return d.FillRectangle(0, 0, int16(w), int16(h), bg)
	}
	copy(buf[:dstLen], buf[srcStart:srcStart+dstLen])

	return d.FillRectangle(0, int16(h-n), int16(w), int16(n), bg)
}

func (d *FBDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	buf := d.usable()
	if buf == nil {
		return nil
	}

	w, h := d.fb.Width(), d.fb.Height()
	x0 := clampInt(int(x), 0, w)
	y0 := clampInt(int(y), 0, h)
	x1 := clampInt(int(x)+int(width), 0, w)
	y1 := clampInt(int(y)+int(height), 0, h)
	if x0 >= x1 || y0 >= y1 {
		return nil
	}

	pixel := rgb565(c.R, c.G, c.B)
	lo, hi := byte(pixel), byte(pixel>>8)

	stride := d.fb.StrideBytes()
	for py := y0; py < y1; py++ {
		row := py * stride
		for px := x0; px < x1; px++ {
			off := row + px*2
			if off+1 >= len(buf) {
				continue
			}
			buf[off] = lo
			buf[off+1] = hi
		}
	}
	return nil
}

// SetScroll is a no-op: the framebuffer has no hardware scrolling.
func (d *FBDisplay) SetScroll(line int16) {}

func (d *FBDisplay) SetRotation(rotation drivers.Rotation) error {
	if rotation != drivers.Rotation0 {
		return ErrNotImplemented
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// rgb565 packs an 8-bit-per-channel color into the framebuffer format.
func rgb565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// rgb888From565 widens a framebuffer pixel back to 8 bits per channel,
// replicating the high bits so full intensity stays 0xff.
func rgb888From565(p uint16) (r, g, b uint8) {
	r5 := uint8(p>>11) & 0x1f
	g6 := uint8(p>>5) & 0x3f
	b5 := uint8(p) & 0x1f
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}
