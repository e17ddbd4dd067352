package vector

import (
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"websearch/internal/domain"
)

// cosineSimilarity computes dot(a,b) / (||a|| * ||b||).
// Returns 0 for zero-length vectors, length mismatch, or NaN/Inf results.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denom == 0 {
		return 0
	}
	result := dot / denom
	if math.IsNaN(float64(result)) || math.IsInf(float64(result), 0) {
		return 0
	}
	return result
}

// float32ToBytes converts a float32 slice to little-endian bytes.
func float32ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32 converts little-endian bytes back to a float32 slice.
func bytesToFloat32(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// scanPoint reads one points row. Corrupt JSON or timestamps are logged and
// the point is still returned.
func scanPoint(row interface{ Scan(dest ...any) error }) (domain.Point, []float32, error) {
	var (
		p         domain.Point
		metaJSON  string
		embBlob   []byte
		createdAt string
	)
	if err := row.Scan(&p.ID, &p.Content, &metaJSON, &embBlob, &createdAt); err != nil {
		return p, nil, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &p.Metadata); err != nil {
		slog.Warn("vector memory: corrupt metadata JSON", "id", p.ID, "error", err)
	}
	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		slog.Warn("vector memory: corrupt created_at", "id", p.ID, "error", err)
	}
	return p, bytesToFloat32(embBlob), nil
}
