package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const payloadHashVersion = "v1"

// PayloadHash fingerprints the logical content of an entry for a tenant: account codes and
// minor-unit amounts in line order. Transaction ids, request metadata and timestamps are excluded
// so a resubmission of the same entry always hashes identically.
func PayloadHash(tenantID string, lines []Line) string {
	var b strings.Builder
	b.WriteString(payloadHashVersion)
	b.WriteByte('\n')
	b.WriteString(strings.TrimSpace(tenantID))
	b.WriteByte('\n')
	for _, raw := range lines {
		line := raw.Normalize()
		b.WriteString(line.Account)
		b.WriteByte(0x1f)
		b.WriteString(toMinorUnits(line.Debit))
		b.WriteByte(0x1f)
		b.WriteString(toMinorUnits(line.Credit))
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
