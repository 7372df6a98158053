package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrChainBroken is returned by VerifyChain for the first inconsistent record.
var ErrChainBroken = errors.New("audit chain broken")

// Seal links r to prevHash and sets its hash. Timestamps are normalized to
// UTC microseconds so the hash survives a database round trip.
func Seal(r *Record, prevHash string) error {
	r.Timestamp = r.Timestamp.UTC().Truncate(time.Microsecond)
	r.PrevHash = prevHash
	sum, err := digest(*r)
	if err != nil {
		return err
	}
	r.Hash = sum
	return nil
}

func digest(r Record) (string, error) {
	r.Hash = ""
	payload, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode audit record: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain checks records oldest first. It returns the index of the first
// record whose hash or link is wrong together with ErrChainBroken, or -1 and
// nil for an intact chain. The first record may link to any hash so that a
// window of a longer chain can be verified.
func VerifyChain(records []Record) (int, error) {
	for i, r := range records {
		if i > 0 && r.PrevHash != records[i-1].Hash {
			return i, fmt.Errorf("%w: record %s does not link to %s", ErrChainBroken, r.ID, records[i-1].ID)
		}
		want, err := digest(r)
		if err != nil {
			return i, err
		}
		if want != r.Hash {
			return i, fmt.Errorf("%w: record %s content does not match its hash", ErrChainBroken, r.ID)
		}
	}
	return -1, nil
}
