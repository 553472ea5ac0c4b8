package detection

import (
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// Fingerprint hashes the stable traits of a transmitter: address, the set of
// message kinds it sends and its authentication type.
func Fingerprint(address string, kinds []domain.MessageKind, authType string) string {
	sorted := append([]domain.MessageKind(nil), kinds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var b strings.Builder
	b.WriteString(strings.ToUpper(address))
	b.WriteByte('|')
	for i, k := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(k)))
	}
	b.WriteByte('|')
	b.WriteString(strings.ToLower(authType))

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// FingerprintDetector matches the sighting hash against recorded tool signatures.
type FingerprintDetector struct {
	tables *Tables
}

func (d *FingerprintDetector) Name() string { return "FingerprintDetector" }

func (d *FingerprintDetector) Detect(s domain.Sighting, _ []domain.Sighting) []domain.Detection {
	fp := Fingerprint(s.Address, s.Kinds(), s.AuthType)
	threat, ok := d.tables.Fingerprints[fp]
	if !ok {
		return nil
	}
	return []domain.Detection{domain.NewDetection(s, domain.ThreatFingerprintHit,
		"sighting matches recorded signature of "+string(threat),
		ConfidenceFingerprint,
		map[string]string{"fingerprint": fp, "platform": string(threat)})}
}
