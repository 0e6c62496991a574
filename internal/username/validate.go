// Package username implements the claim-and-lookup service for payment
// handles, including input validation and message sanitization.
package username

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tippinbit/tippind/internal/domain"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 20

	// MaxMessageLen bounds both tip messages and thank-you messages.
	MaxMessageLen = 200
)

var (
	usernameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

	// scriptRe removes script and style elements wholesale, content
	// included; tagRe then strips any remaining markup.
	scriptRe = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)\s*>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
)

// Normalize lowercases a username and strips a single leading "@", so
// "@Alice" and "alice" address the same record.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

// Validate checks a normalized username: 3-20 characters, lowercase letters,
// digits, underscore or hyphen, starting with a letter or digit.
func Validate(name string) error {
	if len(name) < minUsernameLen || len(name) > maxUsernameLen {
		return fmt.Errorf("username: length must be %d-%d characters: %w",
			minUsernameLen, maxUsernameLen, domain.ErrInvalidInput)
	}
	if !usernameRe.MatchString(name) {
		return fmt.Errorf("username: only letters, digits, '_' and '-' allowed: %w", domain.ErrInvalidInput)
	}
	return nil
}

// ValidateAddress checks a hex wallet address.
func ValidateAddress(addr string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("username: invalid wallet address: %w", domain.ErrInvalidInput)
	}
	return nil
}

// SanitizeMessage strips markup from a free-text message, trims whitespace,
// and truncates to MaxMessageLen runes. Script and style bodies vanish
// entirely rather than leaving their contents behind.
func SanitizeMessage(msg string) string {
	msg = scriptRe.ReplaceAllString(msg, "")
	msg = tagRe.ReplaceAllString(msg, "")
	msg = strings.TrimSpace(msg)

	runes := []rune(msg)
	if len(runes) > MaxMessageLen {
		msg = string(runes[:MaxMessageLen])
	}
	return msg
}

// ValidateTipMessage rejects over-long tip messages up front so they never
// reach the chain layer.
func ValidateTipMessage(msg string) error {
	if len([]rune(strings.TrimSpace(msg))) > MaxMessageLen {
		return fmt.Errorf("username: message exceeds %d characters: %w", MaxMessageLen, domain.ErrInvalidInput)
	}
	return nil
}
