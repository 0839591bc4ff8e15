package services

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

const (
	// MinPasswordLength is the shortest password accepted, in characters.
	MinPasswordLength = 6

	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72

	maxPasswordSimilarity = 0.7
)

//go:embed common_passwords.txt
var commonPasswordsText string

var commonPasswords = sync.OnceValue(func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(commonPasswordsText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[strings.ToLower(line)] = struct{}{}
	}
	return set
})

var nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// PasswordAttributes are the account fields a password must not resemble.
type PasswordAttributes struct {
	Username  string
	FirstName string
	LastName  string
}

// ValidatePassword runs every password rule and returns all failures.
// The rules are checked in a fixed order: similarity to the account's
// attributes, minimum length, maximum length, common passwords, all digits.
func ValidatePassword(password string, attrs PasswordAttributes) []string {
	var problems []string

	if msg := checkSimilarity(password, attrs); msg != "" {
		problems = append(problems, msg)
	}
	if len([]rune(password)) < MinPasswordLength {
		problems = append(problems, fmt.Sprintf(
			"This password is too short. It must contain at least %d characters.", MinPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		problems = append(problems, fmt.Sprintf(
			"This password is too long. It must contain at most %d bytes.", maxPasswordBytes))
	}
	if _, common := commonPasswords()[strings.ToLower(strings.TrimSpace(password))]; common {
		problems = append(problems, "This password is too common.")
	}
	if isNumeric(password) {
		problems = append(problems, "This password is entirely numeric.")
	}
	return problems
}

func checkSimilarity(password string, attrs PasswordAttributes) string {
	if password == "" {
		return ""
	}
	lowered := strings.ToLower(password)

	candidates := []struct {
		label string
		value string
	}{
		{"username", attrs.Username},
		{"first name", attrs.FirstName},
		{"last name", attrs.LastName},
	}
	for _, candidate := range candidates {
		value := strings.ToLower(candidate.value)
		if value == "" {
			continue
		}
		parts := append(nonWordPattern.Split(value, -1), value)
		for _, part := range parts {
			if exceedsLengthRatio(lowered, part) {
				continue
			}
			if quickRatio(lowered, part) >= maxPasswordSimilarity {
				return fmt.Sprintf("The password is too similar to the %s.", candidate.label)
			}
		}
	}
	return ""
}

// exceedsLengthRatio skips attribute parts so much shorter than the
// password that they cannot make it similar.
func exceedsLengthRatio(password, value string) bool {
	pwdLen := len([]rune(password))
	valueLen := len([]rune(value))
	bound := maxPasswordSimilarity / 2 * float64(pwdLen)
	return pwdLen >= 10*valueLen && float64(valueLen) < bound
}

// quickRatio is an upper bound on the similarity of a and b: twice the
// size of the multiset intersection of their runes over their total length.
func quickRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}

	counts := make(map[rune]int, len(rb))
	for _, r := range rb {
		counts[r]++
	}
	matches := 0
	for _, r := range ra {
		if counts[r] > 0 {
			counts[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
