package restart

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/DataDog/zstd"
)

// EncodeVector packs values as little endian float64 behind an int64 length,
// zstd compressed.
func EncodeVector(values []float64) (blob []byte, err error) {
	var buf bytes.Buffer
	if err = binary.Write(&buf, binary.LittleEndian, int64(len(values))); err != nil {
		return
	}
	if len(values) != 0 {
		if err = binary.Write(&buf, binary.LittleEndian, values); err != nil {
			return
		}
	}
	return zstd.CompressLevel(nil, buf.Bytes(), 1)
}

func DecodeVector(blob []byte) (values []float64, err error) {
	var raw []byte
	if raw, err = zstd.Decompress(nil, blob); err != nil {
		return nil, fmt.Errorf("decompressing threshold vector: %w", err)
	}
	rd := bytes.NewReader(raw)
	var n int64
	if err = binary.Read(rd, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("reading threshold vector length: %w", err)
	}
	if n < 0 || n*8 != int64(rd.Len()) {
		return nil, fmt.Errorf("threshold vector claims %d values in %d bytes", n, rd.Len())
	}
	values = make([]float64, n)
	if n == 0 {
		return
	}
	if err = binary.Read(rd, binary.LittleEndian, values); err != nil {
		return nil, fmt.Errorf("reading threshold vector: %w", err)
	}
	return
}
