package sink

import (
	"image"

	"github.com/yosanyu/retromux/retro"
)

// RGBA converts the frame to an 8-bit-per-channel image. Low-depth channels
// are expanded by replicating their high bits into the low ones, so full
// white stays full white.
func (f *Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))

	switch f.Format {
	case retro.PixelFormatXRGB8888:
		for y := 0; y < f.Height; y++ {
			row := f.Pixels[y*f.Pitch:]
			for x := 0; x < f.Width; x++ {
				o := img.PixOffset(x, y)
				img.Pix[o+0] = row[x*4+2]
				img.Pix[o+1] = row[x*4+1]
				img.Pix[o+2] = row[x*4+0]
				img.Pix[o+3] = 0xFF
			}
		}

	case retro.PixelFormatRGB565:
		for y := 0; y < f.Height; y++ {
			row := f.Pixels[y*f.Pitch:]
			for x := 0; x < f.Width; x++ {
				v := uint16(row[x*2]) | uint16(row[x*2+1])<<8
				r := uint8(v >> 11 & 0x1F)
				g := uint8(v >> 5 & 0x3F)
				b := uint8(v & 0x1F)
				o := img.PixOffset(x, y)
				img.Pix[o+0] = r<<3 | r>>2
				img.Pix[o+1] = g<<2 | g>>4
				img.Pix[o+2] = b<<3 | b>>2
				img.Pix[o+3] = 0xFF
			}
		}

	case retro.PixelFormat0RGB1555:
		for y := 0; y < f.Height; y++ {
			row := f.Pixels[y*f.Pitch:]
			for x := 0; x < f.Width; x++ {
				v := uint16(row[x*2]) | uint16(row[x*2+1])<<8
				r := uint8(v >> 10 & 0x1F)
				g := uint8(v >> 5 & 0x1F)
				b := uint8(v & 0x1F)
				o := img.PixOffset(x, y)
				img.Pix[o+0] = r<<3 | r>>2
				img.Pix[o+1] = g<<3 | g>>2
				img.Pix[o+2] = b<<3 | b>>2
				img.Pix[o+3] = 0xFF
			}
		}
	}

	return img
}
