package dedupe

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mmcloughlin/geohash"
	"github.com/samber/lo"

	"github.com/okian/comparo/internal/domain/model"
)

const (
	fingerprintPrecision = 5
	sqmBucket            = 2.0
)

// Fingerprint returns a stable hash identifying rec for duplicate detection.
//
// A record without a ref is reduced to the fields that identify a sale:
// coarse location, type, area bucket, rooms, sale day and price, so two
// ref-less listings of the same sale from different sources collide.
//
// A record with a ref is hashed over its ref and its full content. Only an
// exact replay collides; a correction of any attribute passes through and
// the store files it as the next version of that ref.
func Fingerprint(rec model.ComparableRecord) string {
	if rec.Ref != nil {
		return contentFingerprint(rec)
	}
	parts := []string{
		geohash.EncodeWithPrecision(rec.Lat, rec.Lng, fingerprintPrecision),
		strings.ToUpper(string(rec.Type)),
		fmt.Sprintf("%d", int(rec.Sqm/sqmBucket)),
		rec.Date.UTC().Format("2006-01-02"),
		fmt.Sprintf("%.0f", rec.Price),
	}
	if rec.Rooms != nil {
		parts = append(parts, fmt.Sprintf("%d", *rec.Rooms))
	} else {
		parts = append(parts, "null")
	}
	return digest("sale|" + strings.Join(parts, "|"))
}

func contentFingerprint(rec model.ComparableRecord) string {
	rec.Ref = lo.ToPtr(strings.TrimSpace(*rec.Ref))
	rec.Date = rec.Date.UTC()
	// a struct of plain fields always marshals
	body, _ := json.Marshal(rec)
	return digest("ref|" + string(body))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}
