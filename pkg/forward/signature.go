package forward

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const (
	HeaderSignature = "X-Sync-Signature"
	HeaderTimestamp = "X-Sync-Timestamp"
)

// Sign returns the hex HMAC-SHA256 of "timestamp.payload".
func Sign(secret string, payload []byte, timestamp int64) (string, error) {
	if secret == "" {
		return "", ErrInvalidSecret
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	h.Write([]byte{'.'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks a signature produced by Sign. maxAge bounds how old the
// timestamp may be relative to now; zero disables the check.
func Verify(secret string, payload []byte, signature string, timestamp int64, maxAge time.Duration, now time.Time) error {
	if maxAge > 0 {
		age := now.Sub(time.Unix(timestamp, 0))
		if age > maxAge || age < -time.Minute {
			return fmt.Errorf("%w: %s", ErrStaleSignature, age)
		}
	}

	expected, err := Sign(secret, payload, timestamp)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
