// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// argonParams are the cost settings recorded in an argon2id PHC string.
type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
}

// currentParams follow the OWASP argon2id baseline. Hashes made with any
// other settings are rehashed on the next successful login.
var currentParams = argonParams{memory: 64 * 1024, time: 1, threads: 4}

const (
	saltBytes = 16
	keyBytes  = 32
)

// Password length constraints.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	// Hash produces an argon2id PHC string.
	Hash(password string) (string, error)

	// Verify returns (true, nil) on match, (false, nil) on mismatch and an
	// error for a malformed hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade reports whether hash should be replaced on next login.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher hashes with argon2id and also verifies the bcrypt hashes
// migrated from the legacy Node services.
type Argon2idHasher struct{}

func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// phc is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" string.
type phc struct {
	params argonParams
	salt   []byte
	key    []byte
}

func (p phc) String() string {
	b64 := base64.RawStdEncoding
	return "$argon2id$v=" + strconv.Itoa(argon2.Version) +
		"$m=" + strconv.FormatUint(uint64(p.params.memory), 10) +
		",t=" + strconv.FormatUint(uint64(p.params.time), 10) +
		",p=" + strconv.FormatUint(uint64(p.params.threads), 10) +
		"$" + b64.EncodeToString(p.salt) +
		"$" + b64.EncodeToString(p.key)
}

func derive(password string, salt []byte, params argonParams, n uint32) []byte {
	return argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, n)
}

func invalidHash(format string, args ...any) error {
	return oops.Code("AUTH_INVALID_HASH").Errorf(format, args...)
}

// parsePHC decodes an argon2id PHC string.
func parsePHC(encoded string) (phc, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return phc{}, invalidHash("expected 6 $-separated fields")
	}
	if fields[1] != "argon2id" {
		return phc{}, invalidHash("unsupported algorithm %q", fields[1])
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return phc{}, invalidHash("unsupported version %q", fields[2])
	}

	var out phc
	for _, kv := range strings.Split(fields[3], ",") {
		k, v, _ := strings.Cut(kv, "=")
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return phc{}, invalidHash("bad parameter %q", kv)
		}
		switch k {
		case "m":
			out.params.memory = uint32(n)
		case "t":
			out.params.time = uint32(n)
		case "p":
			if n == 0 || n > 255 {
				return phc{}, invalidHash("parallelism %d out of range", n)
			}
			out.params.threads = uint8(n)
		default:
			return phc{}, invalidHash("unknown parameter %q", k)
		}
	}
	if out.params.memory == 0 || out.params.time == 0 || out.params.threads == 0 {
		return phc{}, invalidHash("missing cost parameter")
	}

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return phc{}, oops.Code("AUTH_INVALID_HASH").Wrapf(err, "salt")
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil {
		return phc{}, oops.Code("AUTH_INVALID_HASH").Wrapf(err, "key")
	}
	if len(out.key) == 0 || len(out.key) > 1024 {
		return phc{}, invalidHash("key length %d out of range", len(out.key))
	}
	return out, nil
}

// Hash returns a PHC string for password using currentParams and a fresh
// random salt.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}
	return phc{
		params: currentParams,
		salt:   salt,
		key:    derive(password, salt, currentParams, keyBytes),
	}.String(), nil
}

// Verify checks password against an argon2id or bcrypt hash.
func (h *Argon2idHasher) Verify(password, encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return verifyBcrypt(password, encoded)
	}
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	got := derive(password, p.salt, p.params, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(got, p.key) == 1, nil
}

// NeedsUpgrade is true for bcrypt hashes and for argon2id hashes made with
// settings other than currentParams.
func (h *Argon2idHasher) NeedsUpgrade(encoded string) bool {
	p, err := parsePHC(encoded)
	return err != nil || p.params != currentParams
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

func verifyBcrypt(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", "bcrypt").Wrap(err)
	}
	return true, nil
}

// ValidatePasswordStrength requires 8..128 characters with at least one
// letter and one digit.
func ValidatePasswordStrength(password string) error {
	n := len([]rune(password))
	if n < MinPasswordLength || n > MaxPasswordLength {
		return oops.Code("AUTH_WEAK_PASSWORD").
			With("min", MinPasswordLength).
			With("max", MaxPasswordLength).
			Errorf("password must be %d to %d characters", MinPasswordLength, MaxPasswordLength)
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return oops.Code("AUTH_WEAK_PASSWORD").Errorf("password must contain a letter and a digit")
	}
	return nil
}
