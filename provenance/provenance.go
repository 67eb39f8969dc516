/*
SPDX-License-Identifier: Apache-2.0
*/

// Package provenance encodes and decodes the delimited provenance snapshot
// returned by the TrueRoots chaincode.
//
// The snapshot has a fixed seven field schema:
//
//	batchId|status|species|geo|labCertCid|finalImageCid|consumerQrPayload
//
// Fields that have not been recorded yet are empty segments. No escaping is
// performed, so writers must keep the separator out of every field.
package provenance

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"
)

// Separator splits the snapshot fields.
const Separator = "|"

// FieldCount is the number of segments in every snapshot.
const FieldCount = 7

var (
	ErrFieldCount = errors.New("provenance: wrong number of fields")
	ErrSeparator  = errors.New("provenance: field contains separator")
	ErrAbsent     = errors.New("provenance: field not recorded")
	ErrGeo        = errors.New("provenance: invalid geo")
)

// Record is a decoded provenance snapshot.
type Record struct {
	BatchID       string `json:"batchId"`
	Status        string `json:"status"`
	Species       string `json:"species"`
	Geo           string `json:"geo"`
	LabCertCID    string `json:"labCertCid"`
	FinalImageCID string `json:"finalImageCid"`
	ConsumerQR    string `json:"consumerQrPayload"`
}

// Encode joins the record fields with Separator.
func Encode(r Record) string {
	return strings.Join([]string{
		r.BatchID,
		r.Status,
		r.Species,
		r.Geo,
		r.LabCertCID,
		r.FinalImageCID,
		r.ConsumerQR,
	}, Separator)
}

// Parse splits a snapshot into its fields.
func Parse(s string) (Record, error) {
	parts := strings.Split(s, Separator)
	if len(parts) != FieldCount {
		return Record{}, fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(parts), FieldCount)
	}
	return Record{
		BatchID:       parts[0],
		Status:        parts[1],
		Species:       parts[2],
		Geo:           parts[3],
		LabCertCID:    parts[4],
		FinalImageCID: parts[5],
		ConsumerQR:    parts[6],
	}, nil
}

// Verified reports whether a lab certificate has been recorded.
func (r Record) Verified() bool {
	return r.LabCertCID != ""
}

// Processed reports whether processing output has been recorded.
func (r Record) Processed() bool {
	return r.FinalImageCID != ""
}

// CheckField rejects values that would break the snapshot layout.
func CheckField(v string) error {
	if strings.Contains(v, Separator) {
		return fmt.Errorf("%w: %q", ErrSeparator, v)
	}
	return nil
}

// DecodeCID parses a content identifier segment.
func DecodeCID(v string) (cid.Cid, error) {
	if v == "" {
		return cid.Undef, ErrAbsent
	}
	c, err := cid.Decode(v)
	if err != nil {
		return cid.Undef, fmt.Errorf("provenance: decode cid %q: %v", v, err)
	}
	return c, nil
}

// ParseGeo splits a "lat,lng" pair.
func ParseGeo(geo string) (lat, lng float64, err error) {
	latStr, lngStr, ok := strings.Cut(geo, ",")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrGeo, geo)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("%w: latitude %q", ErrGeo, latStr)
	}
	lng, err = strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil || lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("%w: longitude %q", ErrGeo, lngStr)
	}
	return lat, lng, nil
}
