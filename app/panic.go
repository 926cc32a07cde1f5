package app

import (
	"image/color"
	"strings"
	"unicode/utf8"

	"ember/hal"
	"ember/kernel/console"
	"ember/kernel/debug"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

// installPanicHandler makes a kernel panic print its report to the logger,
// draw it on the framebuffer and power the machine off. The panicking
// thread never resumes.
func installPanicHandler(h hal.HAL, con *console.Console) {
	debug.SetPanicHandler(func(info *debug.PanicInfo) {
		con.Panic()

		lines := panicLines(info)
		if l := h.Logger(); l != nil {
			for _, line := range lines {
				l.WriteLineString(line)
			}
		}

		drawPanicScreen(h, lines)

		if p := h.Power(); p != nil {
			p.PowerOff(info)
		}
		select {}
	})
}

func panicLines(info *debug.PanicInfo) []string {
	lines := []string{info.Error()}
	for _, line := range strings.Split(info.Dump, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(info.Stack) > 0 {
		lines = append(lines, "Call stack:")
		for _, line := range strings.Split(string(info.Stack), "\n") {
			if line == "" {
				continue
			}
			lines = append(lines, line)
		}
	} else {
		lines = append(lines, "Call stack: unavailable")
	}
	return lines
}

func drawPanicScreen(h hal.HAL, lines []string) {
	disp := h.Display()
	if disp == nil {
		return
	}
	fb := disp.Framebuffer()
	if fb == nil {
		return
	}

	fb.ClearRGB(255, 255, 255)

	font := &proggy.TinySZ8pt7b
	fontHeight, fontOffset := int16(10), int16(6)
	_, outboxWidth := tinyfont.LineWidth(font, "0")
	fontWidth := int16(outboxWidth)
	if fontWidth <= 0 {
		_ = fb.Present()
		return
	}

	d := hal.NewFBDisplay(fb)
	fg := color.RGBA{R: 0, G: 0, B: 0, A: 255}

	y := int16(0)
	maxH := int16(fb.Height())
	cols := int16(fb.Width()) / fontWidth
	if cols <= 0 {
		cols = 1
	}

	for _, line := range lines {
		for len(line) > 0 {
			if y+fontHeight > maxH {
				_ = fb.Present()
				return
			}
			chunk, rest := takeRunes(line, cols)
			drawTextLine(d, font, fontWidth, fontOffset, 0, y, chunk, fg)
			y += fontHeight
			line = strings.TrimLeft(rest, " ")
		}
	}
	_ = fb.Present()
}

func drawTextLine(
	d *hal.FBDisplay,
	font tinyfont.Fonter,
	fontWidth, fontOffset int16,
	x0, y0 int16,
	s string,
	fg color.RGBA,
) {
	drawX := x0
	for _, r := range s {
		tinyfont.DrawChar(d, font, drawX, y0+fontOffset, r, fg)
		drawX += fontWidth
	}
}

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	if int64(len(s)) <= int64(n) {
		return s, ""
	}
	var i int
	var count int16
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			break
		}
		i += size
		count++
	}
	if i >= len(s) {
		return s, ""
	}
	return s[:i], s[i:]
}
