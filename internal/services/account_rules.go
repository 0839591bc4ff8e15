package services

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxNameLength = 150

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

// ValidateUsername checks the shape of a username. Uniqueness is checked
// against the store by the caller.
func ValidateUsername(username string) []string {
	switch {
	case strings.TrimSpace(username) == "":
		return []string{msgBlank}
	case utf8.RuneCountInString(username) > maxNameLength:
		return []string{msgMaxLength(maxNameLength)}
	case !usernamePattern.MatchString(username):
		return []string{"Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."}
	}
	return nil
}

func ValidateFirstName(name string) []string {
	if strings.TrimSpace(name) == "" {
		return []string{msgBlank}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return []string{msgMaxLength(maxNameLength)}
	}
	return nil
}

// ValidateLastName allows an empty value.
func ValidateLastName(name string) []string {
	if utf8.RuneCountInString(name) > maxNameLength {
		return []string{msgMaxLength(maxNameLength)}
	}
	return nil
}
