package klypt

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Document id conventions. The prefixes carry no semantics; they exist
// so ids in logs can be told apart at a glance.
func NewClassID() string {
	return "class_" + randomHex(4)
}

func NewKlypID() string {
	return "klyp_" + uuid.NewString()
}

func NewAttemptID() string {
	return "attempt_" + uuid.NewString()
}

func NewSummaryID(userID, classCode string) string {
	return "summary_" + userID + "_" + classCode + "_" + nowMillis()
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// nowMillis is the timestamp format used everywhere a schema carries a
// time: epoch milliseconds rendered as a string, same as the export
// format's exportTimestamp.
func nowMillis() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
