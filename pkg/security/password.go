package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/barter-backend/pkg/config"
)

var ErrInvalidHash = errors.New("invalid argon2id hash")

var b64 = base64.RawStdEncoding

// argonCost is the work factor encoded into every stored credential.
type argonCost struct {
	memory  uint32
	passes  uint32
	threads uint8
	saltLen uint32
	keyLen  uint32
}

func costFrom(cfg config.PasswordConfig) argonCost {
	return argonCost{
		memory:  uint32(within(cfg.ArgonMemoryKB, 8, 512*1024)),
		passes:  uint32(within(cfg.ArgonTime, 1, 10)),
		threads: uint8(within(cfg.ArgonParallelism, 1, 255)),
		saltLen: uint32(within(cfg.ArgonSaltLen, 8, 64)),
		keyLen:  uint32(within(cfg.ArgonKeyLen, 16, 64)),
	}
}

func (c argonCost) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, c.passes, c.memory, c.threads, c.keyLen)
}

// Hasher hashes new user passwords with the configured cost and verifies
// stored ones with whatever cost they were written under.
type Hasher struct {
	cfg config.PasswordConfig
}

func NewHasher(cfg config.PasswordConfig) Hasher {
	return Hasher{cfg: cfg}
}

func (h Hasher) Hash(password string) (string, error) {
	return HashPassword(password, h.cfg)
}

func (h Hasher) Verify(password, encoded string) (bool, error) {
	return VerifyPassword(password, encoded)
}

// HashPassword encodes password as $argon2id$v=19$m=..,t=..,p=..$salt$key.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	cost := costFrom(cfg)
	salt := make([]byte, cost.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := cost.derive(password, salt)

	var sb strings.Builder
	fmt.Fprintf(&sb, "$argon2id$v=%d$m=%d,t=%d,p=%d$", argon2.Version, cost.memory, cost.passes, cost.threads)
	sb.WriteString(b64.EncodeToString(salt))
	sb.WriteByte('$')
	sb.WriteString(b64.EncodeToString(key))
	return sb.String(), nil
}

// VerifyPassword reports whether password matches encoded. Malformed input
// yields ErrInvalidHash.
func VerifyPassword(password, encoded string) (bool, error) {
	cost, salt, want, err := parseEncoded(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(want, cost.derive(password, salt)) == 1, nil
}

func parseEncoded(encoded string) (argonCost, []byte, []byte, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return argonCost{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argonCost{}, nil, nil, ErrInvalidHash
	}

	var cost argonCost
	if n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &cost.memory, &cost.passes, &cost.threads); err != nil || n != 3 {
		return argonCost{}, nil, nil, ErrInvalidHash
	}

	salt, err := b64.DecodeString(fields[4])
	if err != nil {
		return argonCost{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return argonCost{}, nil, nil, ErrInvalidHash
	}
	cost.saltLen = uint32(len(salt))
	cost.keyLen = uint32(len(key))
	return cost, salt, key, nil
}

func within(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
