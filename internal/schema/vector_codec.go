package schema

import (
	"errors"
	"strconv"
)

// ParseVectorJSON decodes a JSON array of floats ("[0.1,0.2,...]") into a
// []float32 without going through encoding/json's reflection-based decoder.
// Embedding vectors run to several thousand dimensions per row and this
// package scans every row on every retrieval request, so the hand-rolled scanner
// from the teacher's fastParseVectorJSON (internal/store/vector_utils.go)
// is kept rather than reached past for encoding/json.
func ParseVectorJSON(data []byte) ([]float32, error) {
	var dest []float32
	if len(data) == 0 {
		return dest, nil
	}

	i := 0
	for i < len(data) && isSpace(data[i]) {
		i++
	}
	if i == len(data) {
		return dest, nil
	}
	if data[i] != '[' {
		return nil, errors.New("vector_codec: expected '[' at start")
	}
	i++

	for i < len(data) {
		for i < len(data) && isSpace(data[i]) {
			i++
		}
		if i == len(data) {
			break
		}
		if data[i] == ']' {
			return dest, nil
		}

		start := i
		for i < len(data) && data[i] != ',' && data[i] != ']' && !isSpace(data[i]) {
			i++
		}
		numBytes := data[start:i]
		if len(numBytes) > 0 {
			f, err := strconv.ParseFloat(string(numBytes), 32)
			if err != nil {
				return nil, err
			}
			dest = append(dest, float32(f))
		}

		for i < len(data) && isSpace(data[i]) {
			i++
		}
		if i < len(data) && data[i] == ',' {
			i++
		} else if i < len(data) && data[i] == ']' {
			return dest, nil
		}
	}
	return dest, nil
}

// EncodeVectorJSON renders a []float32 back into the same JSON array form
// ParseVectorJSON reads, for storage in schema_embeddings.vector.
func EncodeVectorJSON(v []float32) []byte {
	out := make([]byte, 0, len(v)*9+2)
	out = append(out, '[')
	for i, f := range v {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendFloat(out, float64(f), 'g', -1, 32)
	}
	out = append(out, ']')
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
