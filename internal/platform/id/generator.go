package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Generator creates opaque IDs suitable for external references.
type Generator interface {
	NewID() (string, error)
}

// CodeGenerator produces the short human-facing identifiers used by
// auctions: invite codes and team keys.
type CodeGenerator interface {
	InviteCode() (string, error)
	TeamKey(now time.Time) (string, error)
}

const (
	inviteCodeLength   = 6
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	teamKeySuffixLen   = 9
	teamKeyAlphabet    = "abcdefghijklmnopqrstuvwxyz0123456789"
)

type RandomGenerator struct{}

func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{}
}

func (g *RandomGenerator) NewID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// InviteCode returns a 6-character uppercase alphanumeric code.
func (g *RandomGenerator) InviteCode() (string, error) {
	out, err := randomString(inviteCodeAlphabet, inviteCodeLength)
	if err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	return out, nil
}

// TeamKey returns a collision-resistant key of the form
// team_<unix-millis>_<random-suffix>. The timestamp component keeps keys
// sortable by creation time.
func (g *RandomGenerator) TeamKey(now time.Time) (string, error) {
	suffix, err := randomString(teamKeyAlphabet, teamKeySuffixLen)
	if err != nil {
		return "", fmt.Errorf("generate team key: %w", err)
	}
	return fmt.Sprintf("team_%d_%s", now.UnixMilli(), suffix), nil
}

func randomString(alphabet string, length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}
