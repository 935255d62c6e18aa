package core

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// Password policy.
const (
	SignupPasswordMin = 8
	SignupPasswordMax = 20
	NewPasswordMin    = 10
	// newPasswordSpecials are the characters a changed password must draw one from.
	newPasswordSpecials = "!@#$%^&*"
)

var (
	ErrWeakSignupPassword = fmt.Errorf("password must be %d to %d characters and include a letter, a digit and a special character",
		SignupPasswordMin, SignupPasswordMax)
	ErrWeakNewPassword = errors.New("새 비밀번호는 영문, 숫자, 특수문자를 포함하고 10자 이상이어야 합니다.")
)

// HashPassword returns the bcrypt hash of plain.
func HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// VerifyPassword reports whether plain matches hash.
func VerifyPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

type charClasses struct {
	letter, digit, special bool
}

func classify(p string, specials string) charClasses {
	var c charClasses
	for _, r := range p {
		switch {
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			c.letter = true
		case r >= '0' && r <= '9':
			c.digit = true
		case specials == "" && !unicode.IsSpace(r) && (unicode.IsPunct(r) || unicode.IsSymbol(r)):
			c.special = true
		case specials != "" && strings.ContainsRune(specials, r):
			c.special = true
		}
	}
	return c
}

// CheckSignupPassword enforces the signup rule: 8 to 20 characters with at least one
// ASCII letter, one digit and one punctuation or symbol character.
func CheckSignupPassword(p string) error {
	n := utf8.RuneCountInString(p)
	if n < SignupPasswordMin || n > SignupPasswordMax {
		return ErrWeakSignupPassword
	}
	if c := classify(p, ""); !c.letter || !c.digit || !c.special {
		return ErrWeakSignupPassword
	}
	return nil
}

// CheckNewPassword enforces the change-password rule: at least 10 characters with an
// ASCII letter, a digit and one of !@#$%^&*.
func CheckNewPassword(p string) error {
	if utf8.RuneCountInString(p) < NewPasswordMin {
		return ErrWeakNewPassword
	}
	if c := classify(p, newPasswordSpecials); !c.letter || !c.digit || !c.special {
		return ErrWeakNewPassword
	}
	return nil
}
