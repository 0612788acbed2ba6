// Package nifti reads and writes single-file NIfTI-1 images (.nii and .nii.gz).
package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	headerSize = 348

	// voxOffset is the data offset of a single-file image without extensions
	voxOffset = 352
)

// Datatype codes of the voxel formats this package decodes
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
)

var (
	// ErrNotNifti is returned when the header size field is not 348 in either byte order
	ErrNotNifti = errors.New("not a NIfTI-1 file")

	// ErrUnsupported is returned for valid headers this package cannot decode
	ErrUnsupported = errors.New("unsupported NIfTI image")
)

// Header is the on-disk NIfTI-1 header. Field order and sizes follow the
// format exactly, so binary.Size(Header{}) is 348.
type Header struct {
	SizeofHdr    int32
	DataType     [10]byte
	DBName       [18]byte
	Extents      int32
	SessionError int16
	Regular      byte
	DimInfo      byte

	Dim        [8]int16
	IntentP1   float32
	IntentP2   float32
	IntentP3   float32
	IntentCode int16
	Datatype   int16
	Bitpix     int16
	SliceStart int16
	Pixdim     [8]float32
	VoxOffset  float32
	SclSlope   float32
	SclInter   float32
	SliceEnd   int16
	SliceCode  byte
	XYZTUnits  byte

	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	GLMax         int32
	GLMin         int32

	Descrip [80]byte
	AuxFile [24]byte

	QformCode int16
	SformCode int16
	QuaternB  float32
	QuaternC  float32
	QuaternD  float32
	QOffsetX  float32
	QOffsetY  float32
	QOffsetZ  float32
	SrowX     [4]float32
	SrowY     [4]float32
	SrowZ     [4]float32

	IntentName [16]byte
	Magic      [4]byte
}

func readHeader(r io.Reader) (Header, binary.ByteOrder, error) {
	var h Header
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return h, nil, fmt.Errorf("read header: %w", err)
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(buf) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(buf) == headerSize:
		order = binary.BigEndian
	default:
		return h, nil, ErrNotNifti
	}

	if err := binary.Read(bytes.NewReader(buf), order, &h); err != nil {
		return h, nil, fmt.Errorf("decode header: %w", err)
	}
	if string(h.Magic[:3]) != "n+1" {
		return h, nil, fmt.Errorf("%w: magic %q, only single-file images are read", ErrUnsupported, h.Magic[:3])
	}
	return h, order, nil
}

// bytesPerVoxel returns the storage size of a datatype
func bytesPerVoxel(datatype int16) (int, error) {
	switch datatype {
	case DTUint8, DTInt8:
		return 1, nil
	case DTInt16, DTUint16:
		return 2, nil
	case DTInt32, DTFloat32:
		return 4, nil
	case DTFloat64:
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: datatype %d", ErrUnsupported, datatype)
	}
}

// newHeader builds a little-endian int16 header for a 3-D image
func newHeader(width, height, depth int, spacing [3]float64) Header {
	h := Header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  DTInt16,
		Bitpix:    16,
		VoxOffset: voxOffset,
		SclSlope:  1,
		XYZTUnits: 2, // mm
		QformCode: 0,
		SformCode: 1,
	}
	h.Dim = [8]int16{3, int16(width), int16(height), int16(depth), 1, 1, 1, 1}
	h.Pixdim = [8]float32{1, float32(spacing[0]), float32(spacing[1]), float32(spacing[2]), 1, 1, 1, 1}
	h.SrowX = [4]float32{float32(spacing[0]), 0, 0, 0}
	h.SrowY = [4]float32{0, float32(spacing[1]), 0, 0}
	h.SrowZ = [4]float32{0, 0, float32(spacing[2]), 0}
	copy(h.Descrip[:], "lungqct")
	copy(h.Magic[:], "n+1\x00")
	return h
}
