package utils

import (
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint derives the check-in code of a ticket: keyed BLAKE2b-256 over
// the ticket id, order code, showtime and seat.  Stable for the same inputs,
// unforgeable without the key.
func Fingerprint(secret []byte, ticketID, orderCode string, showtimeID, seatID uint64) (string, error) {
	key := secret
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return "", err
	}
	for _, part := range []string{ticketID, orderCode, strconv.FormatUint(showtimeID, 10), strconv.FormatUint(seatID, 10)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
