package tg

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotAuthorized means the remote side no longer accepts the
	// session (revoked or never signed in). The owner must re-link.
	ErrNotAuthorized = errors.New("session not authorized")

	// ErrCodeInvalid means the supplied one-time code was rejected.
	// The code challenge stays open; the caller may retry.
	ErrCodeInvalid = errors.New("login code invalid")

	// ErrCodeExpired means the code challenge is no longer valid and the
	// login must restart from the beginning.
	ErrCodeExpired = errors.New("login code expired")

	// ErrPasswordNeeded means the account has a second factor enabled and
	// sign-in must continue with CheckPassword.
	ErrPasswordNeeded = errors.New("second-factor password required")

	// ErrPasswordInvalid means the supplied second-factor password was
	// rejected. The challenge stays open.
	ErrPasswordInvalid = errors.New("second-factor password invalid")
)

// FloodWaitError is a provider-imposed cooldown: the caller must wait
// RetryAfter before repeating the request.
type FloodWaitError struct {
	RetryAfter time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: retry after %s", e.RetryAfter)
}

// AsFloodWait extracts the mandated cooldown from an error chain.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.RetryAfter, true
	}
	return 0, false
}

var floodWaitRegexp = regexp.MustCompile(`FLOOD_WAIT_(\d+)`)

// translateRPCError maps raw provider error strings onto the package
// taxonomy. Unrecognized errors pass through unchanged.
func translateRPCError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	if m := floodWaitRegexp.FindStringSubmatch(msg); m != nil {
		seconds, _ := strconv.Atoi(m[1])
		return &FloodWaitError{RetryAfter: time.Duration(seconds) * time.Second}
	}

	switch {
	case containsAny(msg, "PHONE_CODE_INVALID"):
		return ErrCodeInvalid
	case containsAny(msg, "PHONE_CODE_EXPIRED"):
		return ErrCodeExpired
	case containsAny(msg, "SESSION_PASSWORD_NEEDED"):
		return ErrPasswordNeeded
	case containsAny(msg, "PASSWORD_HASH_INVALID"):
		return ErrPasswordInvalid
	case containsAny(msg, "AUTH_KEY_UNREGISTERED", "SESSION_REVOKED", "USER_DEACTIVATED"):
		return ErrNotAuthorized
	}
	return err
}

func containsAny(msg string, tokens ...string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}
