//go:build !tinygo && cgo

package hal

import (
	"context"
	"errors"
	"image"

	"ember/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
)

// RunWindow boots the kernel like RunHeadless and shows its framebuffer in a
// desktop window. It blocks until the window closes or the machine powers off.
func RunWindow(boot func(HAL) error) error {
	h := New().(*hostHAL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.run(ctx, boot, 0) }()

	g := &hostGame{h: h, done: done}
	ebiten.SetWindowTitle("Ember (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(60)
	err := ebiten.RunGame(g)
	if errors.Is(err, ebiten.Termination) {
		return g.err
	}
	return err
}

type hostGame struct {
	h       *hostHAL
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
	done    chan error
	err     error
}

func (g *hostGame) Update() error {
	select {
	case err := <-g.done:
		g.err = err
		return ebiten.Termination
	default:
	}
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil || g.img.Bounds().Dx() != fb.width || g.img.Bounds().Dy() != fb.height {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		if g.fbImg != nil {
			g.fbImg.Deallocate()
		}
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	fb.snapshotRGB565(g.scratch)

	src := g.scratch
	dst := g.img.Pix
	for i := 0; i+1 < len(src) && i/2*4+3 < len(dst); i += 2 {
		r, gg, b := rgb888From565(uint16(src[i]) | uint16(src[i+1])<<8)
		j := (i / 2) * 4
		dst[j+0] = r
		dst[j+1] = gg
		dst[j+2] = b
		dst[j+3] = 0xFF
	}

	g.fbImg.WritePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
