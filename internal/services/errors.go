package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidCredentials  = errors.New("no active account found with the given credentials")
	ErrInvalidToken        = errors.New("token is invalid")
	ErrExpiredToken        = errors.New("token is expired")
	ErrUnauthenticated     = errors.New("authentication credentials were not provided or are invalid")
	ErrAttachmentsDisabled = errors.New("attachments are not enabled on this server")
)

// Field names used as keys in ValidationError.Fields.
const (
	FieldUsername    = "username"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldPassword    = "password"
	FieldIsAdmin     = "is_admin"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldFile        = "file"
	FieldNonField    = "non_field_errors"
)

const (
	msgRequired  = "This field is required."
	msgBlank     = "This field may not be blank."
	msgDuplicate = "A user with that username already exists."
)

func msgMaxLength(n int) string {
	return fmt.Sprintf("Ensure this field has no more than %d characters.", n)
}

func msgInvalidChoice(value string) string {
	return fmt.Sprintf("%q is not a valid choice.", value)
}

// ValidationError reports one or more rejected fields. Nothing is written
// when a ValidationError is returned.
type ValidationError struct {
	Fields map[string][]string
}

// FieldError builds a ValidationError for a single field.
func FieldError(field string, messages ...string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, messages...)
	return v
}

func (v *ValidationError) Add(field string, messages ...string) {
	if len(messages) == 0 {
		return
	}
	if v.Fields == nil {
		v.Fields = make(map[string][]string)
	}
	v.Fields[field] = append(v.Fields[field], messages...)
}

func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.Fields) > 0
}

// OrNil returns v as an error when it holds at least one message.
func (v *ValidationError) OrNil() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	fields := make([]string, 0, len(v.Fields))
	for field := range v.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(v.Fields[field], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
