package imaging

import (
	"image"

	"golang.org/x/image/draw"
)

// scaleToFit renders src as grayscale scaled to fit inside maxW by
// maxH. Sources already inside the bounds keep their size; nothing is
// ever upscaled.
func scaleToFit(src image.Image, maxW, maxH int) *image.Gray {
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()

	w, h := srcW, srcH
	if srcW > maxW || srcH > maxH {
		scale := float64(maxW) / float64(srcW)
		if s := float64(maxH) / float64(srcH); s < scale {
			scale = s
		}
		w = int(float64(srcW) * scale)
		h = int(float64(srcH) * scale)
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	return dst
}

// scaleToFill renders src as grayscale at exactly w by h, cropping the
// source centrally to match the target aspect ratio.
func scaleToFill(src image.Image, w, h int) *image.Gray {
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()

	crop := sb
	// Compare aspect ratios without division: srcW/srcH vs w/h.
	if srcW*h > w*srcH {
		// Source is wider than the target; crop the sides.
		cw := srcH * w / h
		if cw < 1 {
			cw = 1
		}
		x0 := sb.Min.X + (srcW-cw)/2
		crop = image.Rect(x0, sb.Min.Y, x0+cw, sb.Max.Y)
	} else if srcW*h < w*srcH {
		// Source is taller; crop top and bottom.
		ch := srcW * h / w
		if ch < 1 {
			ch = 1
		}
		y0 := sb.Min.Y + (srcH-ch)/2
		crop = image.Rect(sb.Min.X, y0, sb.Max.X, y0+ch)
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}
