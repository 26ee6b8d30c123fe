package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint hashes a table's structural shape (column names, types,
// nullability, ordinal position) so the retriever can detect drift
// without re-embedding unchanged tables on every refresh. Grounded on the
// teacher's content_hash dedup column (internal/store/migrations.go v4),
// adapted from per-row content hashing to per-table structural hashing.
func Fingerprint(cols []Column) string {
	var b strings.Builder
	for _, c := range cols {
		b.WriteString(c.ColumnName)
		b.WriteByte('|')
		b.WriteString(c.DataType)
		b.WriteByte('|')
		b.WriteString(strconv.FormatBool(c.IsNullable))
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(c.Ordinal))
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ColumnFingerprint hashes a single column's type shape, used to decide
// whether that column's embedding needs recomputing independent of its
// table siblings.
func ColumnFingerprint(c Column) string {
	sum := sha256.Sum256([]byte(c.ColumnName + "|" + c.DataType + "|" + strconv.FormatBool(c.IsNullable)))
	return hex.EncodeToString(sum[:])
}
