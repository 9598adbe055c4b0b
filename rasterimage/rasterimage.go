// Package rasterimage is an 8-bit RGB pixel buffer with PNG output and a
// compact native file format.
//
// The native format is a little-endian uint64 header length, a protobuf
// encoded header, then zlib-compressed interleaved RGB bytes in row order.
package rasterimage

import (
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"pinhole/rgb"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	formatName        = "pinhole-raster"
	dataLayoutVersion = 1

	// Extension is the file extension of the native format.
	Extension = ".praster"

	// maxHeaderLength guards against reading garbage as a header length.
	maxHeaderLength = 1 << 16

	// MaxPixels bounds width*height of any image this package allocates.
	MaxPixels = 1 << 28
)

var (
	ErrBadHeader     = errors.New("bad raster header")
	ErrUnknownFormat = errors.New("unknown image format")
	ErrBadSize       = errors.New("bad image size")
)

// Image stores pixels bottom row first, matching the renderer's viewport
// coordinates.  Encoders flip rows so files come out upright.
type Image struct {
	Width, Height int
	Pix           []uint8
}

// CheckSize returns an error wrapping ErrBadSize unless both dimensions are
// positive and width*height is at most MaxPixels.
func CheckSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrBadSize, width, height)
	}
	if width > MaxPixels/height {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrBadSize, width, height, MaxPixels)
	}
	return nil
}

// NewChecked allocates a black image, refusing sizes CheckSize rejects.
func NewChecked(width, height int) (*Image, error) {
	if err := CheckSize(width, height); err != nil {
		return nil, err
	}
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}, nil
}

// New is NewChecked for sizes known to be valid.  It panics otherwise.
func New(width, height int) *Image {
	im, err := NewChecked(width, height)
	if err != nil {
		panic(err)
	}
	return im
}

func (im *Image) Size() (int, int) {
	return im.Width, im.Height
}

func (im *Image) Set(x, y int, c rgb.Color) {
	idx := (y*im.Width + x) * 3
	im.Pix[idx] = c.R
	im.Pix[idx+1] = c.G
	im.Pix[idx+2] = c.B
}

func (im *Image) At(x, y int) rgb.Color {
	idx := (y*im.Width + x) * 3
	return rgb.Color{R: im.Pix[idx], G: im.Pix[idx+1], B: im.Pix[idx+2]}
}

// ToImage converts to a standard library image with row 0 at the top.
func (im *Image) ToImage() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			out.SetRGBA(x, im.Height-1-y, im.At(x, y).ToRGBA())
		}
	}
	return out
}

func WritePNG(im *Image, w io.Writer) error {
	if err := png.Encode(w, im.ToImage()); err != nil {
		return fmt.Errorf("while encoding png: %w", err)
	}
	return nil
}

func Read(in io.Reader) (*Image, error) {
	var headerLength uint64
	if err := binary.Read(in, binary.LittleEndian, &headerLength); err != nil {
		return nil, fmt.Errorf("while reading header length: %w", err)
	}
	if headerLength > maxHeaderLength {
		return nil, fmt.Errorf("%w: header length %d", ErrBadHeader, headerLength)
	}

	headerBytes := make([]byte, int(headerLength))
	if _, err := io.ReadFull(in, headerBytes); err != nil {
		return nil, fmt.Errorf("while reading header bytes: %w", err)
	}

	hdr := &structpb.Struct{}
	if err := proto.Unmarshal(headerBytes, hdr); err != nil {
		return nil, fmt.Errorf("while unmarshaling header: %w", err)
	}

	fields := hdr.GetFields()
	if got := fields["format"].GetStringValue(); got != formatName {
		return nil, fmt.Errorf("%w: format %q", ErrBadHeader, got)
	}
	if v := fields["dataLayoutVersion"].GetNumberValue(); v != dataLayoutVersion {
		return nil, fmt.Errorf("%w: bad data layout version: %v", ErrBadHeader, v)
	}

	width, err := dimension(fields["width"])
	if err != nil {
		return nil, err
	}
	height, err := dimension(fields["height"])
	if err != nil {
		return nil, err
	}
	im, err := NewChecked(width, height)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}

	zipReader, err := zlib.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("while opening zip reader: %w", err)
	}
	defer zipReader.Close()

	if _, err := io.ReadFull(zipReader, im.Pix); err != nil {
		return nil, fmt.Errorf("while reading pixels: %w", err)
	}

	return im, nil
}

// dimension converts a header size field, rejecting values that are not
// whole numbers in (0, MaxPixels].
func dimension(v *structpb.Value) (int, error) {
	f := v.GetNumberValue()
	if f != math.Trunc(f) || f <= 0 || f > MaxPixels {
		return 0, fmt.Errorf("%w: dimension %v", ErrBadHeader, f)
	}
	return int(f), nil
}

func Write(im *Image, w io.Writer) error {
	if err := CheckSize(im.Width, im.Height); err != nil {
		return fmt.Errorf("while checking image: %w", err)
	}
	if len(im.Pix) != im.Width*im.Height*3 {
		return fmt.Errorf("%w: %d bytes of pixels for %dx%d", ErrBadSize, len(im.Pix), im.Width, im.Height)
	}

	hdr, err := structpb.NewStruct(map[string]interface{}{
		"format":            formatName,
		"dataLayoutVersion": dataLayoutVersion,
		"width":             im.Width,
		"height":            im.Height,
	})
	if err != nil {
		return fmt.Errorf("while building header: %w", err)
	}

	hdrBytes, err := proto.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("while marshaling header: %w", err)
	}

	headerLengthBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(headerLengthBytes, uint64(len(hdrBytes)))
	if _, err := w.Write(headerLengthBytes); err != nil {
		return fmt.Errorf("while writing header length: %w", err)
	}

	if _, err := w.Write(hdrBytes); err != nil {
		return fmt.Errorf("while writing header: %w", err)
	}

	zipWriter := zlib.NewWriter(w)

	if _, err := zipWriter.Write(im.Pix); err != nil {
		return fmt.Errorf("while writing pixels: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("while closing zip writer: %w", err)
	}

	return nil
}

// Encode writes im in the format named by ext, either ".png" or Extension.
func Encode(im *Image, ext string, w io.Writer) error {
	switch strings.ToLower(ext) {
	case ".png":
		return WritePNG(im, w)
	case Extension:
		return Write(im, w)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
}

func ReadFile(name string) (*Image, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("while opening file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// WriteFile picks the encoding from name's extension.  It fails if name
// already exists unless overwrite is set.
func WriteFile(im *Image, name string, overwrite bool) error {
	ext := filepath.Ext(name)
	switch strings.ToLower(ext) {
	case ".png", Extension:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}

	flags := os.O_RDWR | os.O_CREATE | os.O_EXCL
	if overwrite {
		flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(name, flags, 0644)
	if err != nil {
		return fmt.Errorf("while opening output file: %w", err)
	}

	if err := Encode(im, ext, f); err != nil {
		f.Close()
		return fmt.Errorf("while writing %s: %w", name, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("while closing output file: %w", err)
	}
	return nil
}
