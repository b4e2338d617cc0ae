package models

import (
	"strconv"
	"strings"
	"time"

	"queue-system/internal/status"
	"queue-system/utils"
)

// DeprecatedAttributes are legacy remote-store columns that every push
// attempts to strip as a best-effort schema cleanup.
var DeprecatedAttributes = []string{
	"waitingTimeBetween",
	"waitedSeconds",
	"estimatedWaitSeconds",
	"arrivalTime",
}

// RemoteRecord is the explicit optional-field model sitting between the
// remote store's attribute map and a TokenEntry. All legacy-name tolerance
// lives here so the rest of the code never does ad-hoc presence checks.
type RemoteRecord struct {
	fields map[string]string
	order  []string
}

func NewRemoteRecord() *RemoteRecord {
	return &RemoteRecord{fields: map[string]string{}}
}

// RemoteRecordFromAttrs wraps a scanned attribute map (e.g. HGetAll result).
func RemoteRecordFromAttrs(attrs map[string]string) *RemoteRecord {
	r := NewRemoteRecord()
	for k, v := range attrs {
		r.fields[k] = v
	}
	return r
}

func (r *RemoteRecord) set(key, value string) {
	if _, ok := r.fields[key]; !ok {
		r.order = append(r.order, key)
	}
	r.fields[key] = value
}

func (r *RemoteRecord) get(key string) (string, bool) {
	v, ok := r.fields[key]
	return v, ok && v != ""
}

// Pairs returns the attributes as a flat key/value list in insertion order,
// ready for a field-wise upsert. Deterministic ordering keeps pushes
// byte-identical for identical entries.
func (r *RemoteRecord) Pairs() []interface{} {
	pairs := make([]interface{}, 0, len(r.order)*2)
	for _, k := range r.order {
		pairs = append(pairs, k, r.fields[k])
	}
	return pairs
}

// RemoteRecordFromEntry maps a ledger entry onto the remote schema.
// waitingTime travels as a stringified integer.
func RemoteRecordFromEntry(e TokenEntry, waitingTime int) *RemoteRecord {
	r := NewRemoteRecord()
	r.set("clinicId", e.ClinicID)
	r.set("tokenId", e.TokenID)
	r.set("token", strconv.Itoa(e.Token))
	r.set("date", e.Timestamp.Format(time.RFC3339))
	r.set("dateFormatted", utils.FormatDateTime(e.Timestamp))
	r.set("status", string(e.Status))

	if e.Name != "" {
		r.set("personName", e.Name)
	}
	if e.PhoneNumber != "" {
		r.set("phoneNumber", e.PhoneNumber)
	}
	if e.Email != "" {
		r.set("email", e.Email)
	}

	r.set("tokenTakenAt", e.Timestamp.Format(time.RFC3339))
	r.set("tokenTakenAtFormatted", utils.FormatTime(e.Timestamp))

	if e.ArrivedAt != nil {
		r.set("arrivedAt", e.ArrivedAt.Format(time.RFC3339))
		r.set("arrivedAtFormatted", utils.FormatTime(*e.ArrivedAt))
	}
	if e.ServedAt != nil {
		r.set("servedAt", e.ServedAt.Format(time.RFC3339))
		r.set("servedAtFormatted", utils.FormatTime(*e.ServedAt))
	}
	if e.CancelledAt != nil {
		r.set("cancelledAt", e.CancelledAt.Format(time.RFC3339))
		r.set("cancelledAtFormatted", utils.FormatTime(*e.CancelledAt))
	}

	if waitingTime < 0 {
		waitingTime = 0
	}
	r.set("waitingTime", strconv.Itoa(waitingTime))

	return r
}

// ToEntry maps a remote record back into a TokenEntry, tolerating records
// written by older schema versions. A record that yields no valid token is
// rejected with ErrMalformedRecord.
func (r *RemoteRecord) ToEntry(defaultClinicID string) (TokenEntry, error) {
	token := r.tokenNumber()
	if token <= 0 {
		return TokenEntry{}, status.ErrMalformedRecord
	}

	e := TokenEntry{
		Token:    token,
		TokenID:  strconv.Itoa(token),
		ClinicID: defaultClinicID,
		Status:   StatusWaiting,
	}
	if v, ok := r.get("tokenId"); ok {
		e.TokenID = v
	}
	if v, ok := r.get("clinicId"); ok {
		e.ClinicID = v
	}
	if v, ok := r.get("status"); ok {
		e.Status = TokenStatus(v)
	}
	// personName is current, name is legacy
	if v, ok := r.get("personName"); ok {
		e.Name = v
	} else if v, ok := r.get("name"); ok {
		e.Name = v
	}
	if v, ok := r.get("phoneNumber"); ok {
		e.PhoneNumber = v
	}
	if v, ok := r.get("email"); ok {
		e.Email = v
	}

	e.Timestamp = r.issuedAt()
	e.ArrivedAt = r.timeField("arrivedAt")
	e.ServedAt = r.timeField("servedAt")
	e.CancelledAt = r.timeField("cancelledAt")

	if v, ok := r.get("waitingTime"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			e.WaitingTime = n
		}
	}

	return e, nil
}

func (r *RemoteRecord) tokenNumber() int {
	if v, ok := r.get("token"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	// legacy records carried only the string key; extract its digits
	if v, ok := r.get("tokenId"); ok {
		digits := strings.Map(func(c rune) rune {
			if c >= '0' && c <= '9' {
				return c
			}
			return -1
		}, v)
		if n, err := strconv.Atoi(digits); err == nil {
			return n
		}
	}
	return 0
}

func (r *RemoteRecord) issuedAt() time.Time {
	for _, key := range []string{"tokenTakenAt", "timestamp", "createdAt", "date"} {
		if v, ok := r.get(key); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t
			}
		}
	}
	return time.Now().UTC()
}

func (r *RemoteRecord) timeField(key string) *time.Time {
	v, ok := r.get(key)
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}
