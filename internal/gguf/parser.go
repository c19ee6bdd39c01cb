package gguf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// "GGUF" in little-endian
const magic = 0x46554747

const (
	maxStringLen = 1 << 30
	maxArrayLen  = 1 << 28
)

// ErrNotGGUF is returned when the magic number does not match.
var ErrNotGGUF = errors.New("not a GGUF file")

// Open reads the header and metadata of the GGUF file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GGUF file: %w", err)
	}
	defer f.Close()

	gf, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	gf.Path = path
	return gf, nil
}

// Read parses a GGUF header and metadata section from r.
func Read(r io.Reader) (*File, error) {
	gf := &File{Metadata: make(map[string]interface{})}

	var kvCount uint64
	if err := gf.readHeader(r, &kvCount); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	for i := uint64(0); i < kvCount; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata key %d: %w", i, err)
		}

		var vtype ValueType
		if err := binary.Read(r, binary.LittleEndian, &vtype); err != nil {
			return nil, fmt.Errorf("failed to read value type for key %s: %w", key, err)
		}

		value, err := readValue(r, vtype)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata value for %s: %w", key, err)
		}
		gf.Metadata[key] = value
	}

	return gf, nil
}

func (gf *File) readHeader(r io.Reader, kvCount *uint64) error {
	var m uint32
	if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
		return fmt.Errorf("failed to read magic: %w", err)
	}
	if m != magic {
		return fmt.Errorf("%w: magic 0x%x", ErrNotGGUF, m)
	}

	if err := binary.Read(r, binary.LittleEndian, &gf.Version); err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}
	if gf.Version < 2 || gf.Version > 3 {
		return fmt.Errorf("unsupported GGUF version: %d (supported: 2-3)", gf.Version)
	}

	if err := binary.Read(r, binary.LittleEndian, &gf.TensorCount); err != nil {
		return fmt.Errorf("failed to read tensor count: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, kvCount); err != nil {
		return fmt.Errorf("failed to read KV count: %w", err)
	}
	return nil
}

func readValue(r io.Reader, vtype ValueType) (interface{}, error) {
	switch vtype {
	case TypeUint8:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case TypeInt8:
		var v int8
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case TypeUint16:
		var v uint16
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case TypeInt16:
		var v int16
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case TypeUint32:
		var v uint32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case TypeInt32:
		var v int32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case TypeFloat32:
		var v float32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case TypeUint64:
		var v uint64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case TypeInt64:
		var v int64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case TypeFloat64:
		var v float64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case TypeBool:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return v != 0, err
	case TypeString:
		return readString(r)
	case TypeArray:
		return readArray(r)
	default:
		return nil, fmt.Errorf("unsupported metadata type: %d", vtype)
	}
}

// readString reads a uint64 length-prefixed string
func readString(r io.Reader) (string, error) {
	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", fmt.Errorf("failed to read string length: %w", err)
	}
	if length > maxStringLen {
		return "", fmt.Errorf("string length too large: %d", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read string data: %w", err)
	}
	return string(buf), nil
}

func readArray(r io.Reader) ([]interface{}, error) {
	var elemType ValueType
	if err := binary.Read(r, binary.LittleEndian, &elemType); err != nil {
		return nil, fmt.Errorf("failed to read array element type: %w", err)
	}

	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read array length: %w", err)
	}
	if length > maxArrayLen {
		return nil, fmt.Errorf("array length too large: %d", length)
	}

	// Grow as elements arrive so a corrupt length cannot force a huge allocation.
	arr := make([]interface{}, 0, min(length, 4096))
	for i := uint64(0); i < length; i++ {
		val, err := readValue(r, elemType)
		if err != nil {
			return nil, fmt.Errorf("failed to read array element %d: %w", i, err)
		}
		arr = append(arr, val)
	}
	return arr, nil
}
