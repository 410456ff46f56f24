// Package serrors provides structured errors with stable codes and locale keys.
package serrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// BaseError is an error carrying a machine readable code alongside a human message.
type BaseError struct {
	Code         string            `json:"code"`
	Message      string            `json:"message"`
	LocaleKey    string            `json:"locale_key,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	if len(e.TemplateData) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.TemplateData))
	for _, k := range sortedKeys(e.TemplateData) {
		parts = append(parts, fmt.Sprintf("%s=%s", k, e.TemplateData[k]))
	}
	return e.Message + " (" + strings.Join(parts, ", ") + ")"
}

// WithTemplateData returns a copy of the error carrying the given template data.
func (e *BaseError) WithTemplateData(data map[string]string) *BaseError {
	cp := *e
	cp.TemplateData = make(map[string]string, len(data))
	for k, v := range data {
		cp.TemplateData[k] = v
	}
	return &cp
}

// Is matches errors by code so sentinel BaseErrors work with errors.Is.
func (e *BaseError) Is(target error) bool {
	var t *BaseError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Code extracts the code of the first BaseError in the chain, if any.
func Code(err error) string {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
