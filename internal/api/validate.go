package api

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidID is returned when a caller-supplied id fails validation.
var ErrInvalidID = errors.New("invalid id")

const maxIDLen = 64

var idRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,` + strconv.Itoa(maxIDLen) + `}$`)

// ValidateID returns nil for allowed task/user ids, or ErrInvalidID.
// Rules:
// - Only ASCII letters, digits, dot, underscore and dash.
// - Max length is 64.
// - Disallow any ".." substring.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty id: %w", ErrInvalidID)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("id too long: %w", ErrInvalidID)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("id contains disallowed '..': %w", ErrInvalidID)
	}
	if !idRe.MatchString(id) {
		return fmt.Errorf("id contains invalid characters: %w", ErrInvalidID)
	}
	return nil
}
