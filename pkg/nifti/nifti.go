package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"lungqct/internal/models"
)

// Image is a decoded 3-D NIfTI image with scaling applied
type Image struct {
	Header  Header
	Shape   models.Shape
	Spacing models.Spacing

	// Data holds Shape.Len() voxels, x fastest
	Data []float64
}

// Open reads the image at path. Gzip-compressed files are detected by their
// magic bytes, whatever the extension.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("nifti %s: %w", path, err)
	}
	return img, nil
}

// Read decodes an image from r, which may be gzip-compressed
func Read(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return decode(bufio.NewReader(zr))
	}
	return decode(br)
}

func decode(r io.Reader) (*Image, error) {
	h, order, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	ndim := int(h.Dim[0])
	if ndim < 3 || ndim > 7 {
		return nil, fmt.Errorf("%w: %d dimensions", ErrUnsupported, ndim)
	}
	for i := 4; i <= ndim; i++ {
		if h.Dim[i] > 1 {
			return nil, fmt.Errorf("%w: dimension %d has size %d", ErrUnsupported, i, h.Dim[i])
		}
	}
	shape := models.Shape{Width: int(h.Dim[1]), Height: int(h.Dim[2]), Depth: int(h.Dim[3])}
	if shape.Width <= 0 || shape.Height <= 0 || shape.Depth <= 0 {
		return nil, fmt.Errorf("%w: shape %s", ErrUnsupported, shape)
	}

	size, err := bytesPerVoxel(h.Datatype)
	if err != nil {
		return nil, err
	}

	// skip extensions up to the data offset
	offset := int64(h.VoxOffset)
	if offset < headerSize {
		offset = voxOffset
	}
	if _, err := io.CopyN(io.Discard, r, offset-headerSize); err != nil {
		return nil, fmt.Errorf("seek to data: %w", err)
	}

	raw := make([]byte, shape.Len()*size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read %d voxels: %w", shape.Len(), err)
	}

	img := &Image{
		Header: h,
		Shape:  shape,
		Spacing: models.Spacing{
			X: math.Abs(float64(h.Pixdim[1])),
			Y: math.Abs(float64(h.Pixdim[2])),
			Z: math.Abs(float64(h.Pixdim[3])),
		},
		Data: decodeVoxels(raw, h.Datatype, order),
	}

	slope, inter := float64(h.SclSlope), float64(h.SclInter)
	if slope != 0 && !(slope == 1 && inter == 0) {
		for i, v := range img.Data {
			img.Data[i] = v*slope + inter
		}
	}
	return img, nil
}

func decodeVoxels(raw []byte, datatype int16, order binary.ByteOrder) []float64 {
	size, _ := bytesPerVoxel(datatype)
	out := make([]float64, len(raw)/size)
	for i := range out {
		b := raw[i*size:]
		switch datatype {
		case DTUint8:
			out[i] = float64(b[0])
		case DTInt8:
			out[i] = float64(int8(b[0]))
		case DTInt16:
			out[i] = float64(int16(order.Uint16(b)))
		case DTUint16:
			out[i] = float64(order.Uint16(b))
		case DTInt32:
			out[i] = float64(int32(order.Uint32(b)))
		case DTFloat32:
			out[i] = float64(math.Float32frombits(order.Uint32(b)))
		case DTFloat64:
			out[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return out
}

// LoadVolume reads a CT image as Hounsfield Units
func LoadVolume(path string) (*models.Volume, error) {
	img, err := Open(path)
	if err != nil {
		return nil, err
	}
	vol := models.NewVolume(img.Shape, img.Spacing)
	for i, v := range img.Data {
		vol.Data[i] = toInt16(v)
	}
	return vol, nil
}

// LoadMask reads a label image
func LoadMask(path string) (*models.Mask, error) {
	img, err := Open(path)
	if err != nil {
		return nil, err
	}
	mask := models.NewMask(img.Shape)
	for i, v := range img.Data {
		mask.Labels[i] = toInt16(v)
	}
	return mask, nil
}

func toInt16(v float64) int16 {
	v = math.Round(v)
	switch {
	case math.IsNaN(v):
		return 0
	case v < math.MinInt16:
		return math.MinInt16
	case v > math.MaxInt16:
		return math.MaxInt16
	}
	return int16(v)
}

// WriteVolume stores vol as an int16 image. A path ending in .gz is compressed.
func WriteVolume(path string, vol *models.Volume) error {
	return write(path, vol.Shape, vol.Spacing, vol.Data)
}

// WriteMask stores mask as an int16 label image with the given spacing
func WriteMask(path string, mask *models.Mask, spacing models.Spacing) error {
	return write(path, mask.Shape, spacing, mask.Labels)
}

func write(path string, shape models.Shape, spacing models.Spacing, data []int16) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, strings.HasSuffix(path, ".gz"), shape, spacing, data); err != nil {
		f.Close()
		return fmt.Errorf("nifti %s: %w", path, err)
	}
	return f.Close()
}

// Encode writes a little-endian int16 image to w
func Encode(w io.Writer, compress bool, shape models.Shape, spacing models.Spacing, data []int16) error {
	if len(data) != shape.Len() {
		return fmt.Errorf("%d voxels for shape %s", len(data), shape)
	}
	if shape.Width > math.MaxInt16 || shape.Height > math.MaxInt16 || shape.Depth > math.MaxInt16 {
		return fmt.Errorf("%w: shape %s", ErrUnsupported, shape)
	}

	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(w)
		w = zw
	}
	bw := bufio.NewWriter(w)

	h := newHeader(shape.Width, shape.Height, shape.Depth, [3]float64{spacing.X, spacing.Y, spacing.Z})
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return err
	}
	// empty extension flag
	if _, err := bw.Write(make([]byte, voxOffset-headerSize)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, data); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}
