package klypt

import "crypto/rand"

// Class codes are read out loud and typed on another device, so the
// alphabet drops the characters people confuse: 0/O, 1/I/L.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const ClassCodeLength = 6

// GenerateClassCode mints a short uppercase code. It promises
// statistical collision resistance only; uniqueness is the caller's
// query-before-insert job.
func GenerateClassCode() string {
	buf := make([]byte, ClassCodeLength)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}
