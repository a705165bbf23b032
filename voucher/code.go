/*
code.go - Redemption code generation

PURPOSE:
  Generates the human-presentable code printed on a redemption: a fixed
  prefix, the redemption timestamp, and a short random alphanumeric
  suffix. Uniqueness is probabilistic, not checked globally before
  insertion; the store's unique index on the code column turns the
  vanishingly rare collision into an insert error instead of a silent
  overwrite.
*/
package voucher

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const (
	codePrefix    = "GT"
	codeSuffixLen = 6
	codeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O, 1/I
)

// NewCode generates a redemption code for the given redemption time,
// e.g. "GT-1735689600-K7Q2MX".
func NewCode(at time.Time) string {
	var b strings.Builder
	for i := 0; i < codeSuffixLen; i++ {
		b.WriteByte(codeAlphabet[rand.Intn(len(codeAlphabet))])
	}
	return fmt.Sprintf("%s-%d-%s", codePrefix, at.Unix(), b.String())
}
