package detector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// RFC 8746 tags used by the sidecar protocol.
const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagFloat32LE     = 85
)

func encodeImage(data []byte, rows, cols int) cbor.Tag {
	return cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]int{rows, cols},
			cbor.Tag{Number: tagUint8, Content: data},
		},
	}
}

func encodeFloat32Matrix(values []float32, rows, cols int) cbor.Tag {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]int{rows, cols},
			cbor.Tag{Number: tagFloat32LE, Content: buf},
		},
	}
}

// decodeFloat32Matrix accepts a tag-40 array of float32 values and returns
// its rows. Plain nested arrays of numbers are accepted too.
func decodeFloat32Matrix(value any) ([][]float32, error) {
	switch v := value.(type) {
	case cbor.Tag:
		return decodeTaggedMatrix(v)
	case []any:
		out := make([][]float32, len(v))
		for i, row := range v {
			items, ok := row.([]any)
			if !ok {
				return nil, fmt.Errorf("row %d is %T, not an array", i, row)
			}
			out[i] = make([]float32, len(items))
			for j, item := range items {
				f, err := toFloat(item)
				if err != nil {
					return nil, fmt.Errorf("row %d col %d: %w", i, j, err)
				}
				out[i][j] = float32(f)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported matrix encoding %T", value)
	}
}

func decodeTaggedMatrix(tag cbor.Tag) ([][]float32, error) {
	if tag.Number != tagMultiDimArray {
		return nil, fmt.Errorf("expected multidim tag 40, got %d", tag.Number)
	}
	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, errors.New("invalid multidim array content")
	}
	dims, ok := items[0].([]any)
	if !ok || len(dims) != 2 {
		return nil, errors.New("invalid multidim dimensions")
	}
	rows, err := toInt(dims[0])
	if err != nil {
		return nil, err
	}
	cols, err := toInt(dims[1])
	if err != nil {
		return nil, err
	}

	typed, ok := items[1].(cbor.Tag)
	if !ok || typed.Number != tagFloat32LE {
		return nil, errors.New("expected float32 typed array")
	}
	data, ok := typed.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", typed.Content)
	}
	flat := bytesToFloat32(data)
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("negative dimensions [%d, %d]", rows, cols)
	}
	if cols == 0 || len(flat)%cols != 0 || len(flat)/cols != rows {
		return nil, fmt.Errorf("dimension mismatch: [%d, %d] for %d values", rows, cols, len(flat))
	}
	out := make([][]float32, rows)
	for r := 0; r < rows; r++ {
		row := make([]float32, cols)
		copy(row, flat[r*cols:(r+1)*cols])
		out[r] = row
	}
	return out, nil
}

func bytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := 0; i < len(out); i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unsupported float type %T", v)
	}
}
