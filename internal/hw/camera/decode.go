package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// Pixel formats the V4L2 adapter negotiates, as fourcc codes.
const (
	fourccMJPEG uint32 = 0x47504A4D // 'MJPG'
	fourccYUYV  uint32 = 0x56595559 // 'YUYV'
)

func formatName(fourcc uint32) string {
	switch fourcc {
	case fourccMJPEG:
		return "MJPEG"
	case fourccYUYV:
		return "YUYV"
	default:
		return fmt.Sprintf("0x%08x", fourcc)
	}
}

// decodeFrame converts a raw frame buffer into an image.
func decodeFrame(fourcc uint32, width, height int, data []byte) (image.Image, error) {
	switch fourcc {
	case fourccMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode mjpeg frame: %w", err)
		}
		return img, nil
	case fourccYUYV:
		return decodeYUYV(width, height, data)
	default:
		return nil, fmt.Errorf("unsupported pixel format %s", formatName(fourcc))
	}
}

// decodeYUYV unpacks YUYV 4:2:2 (Y0 U Y1 V per pixel pair) into a YCbCr image.
func decodeYUYV(width, height int, data []byte) (image.Image, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("invalid YUYV frame size %dx%d", width, height)
	}
	if len(data) < width*height*2 {
		return nil, fmt.Errorf("short YUYV frame: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		src := data[y*width*2 : (y+1)*width*2]
		for x := 0; x < width; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = src[i]
			img.Y[y*img.YStride+x+1] = src[i+2]
			ci := y*img.CStride + x/2
			img.Cb[ci] = src[i+1]
			img.Cr[ci] = src[i+3]
		}
	}
	return img, nil
}
