package common

import (
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
)

// MaskedValue replaces any redacted value.
const MaskedValue = "***MASKED***"

// SensitivePattern represents a pattern to detect and mask sensitive information
type SensitivePattern struct {
	Name        string         // Pattern name (e.g., "password")
	Regex       *regexp.Regexp // Matches sensitive data inside free text
	Replacement string
	Keys        []string // Attribute keys whose whole value is masked (case-insensitive)
}

// DefaultSensitivePatterns covers the credentials a HyperCore client ever handles.
var DefaultSensitivePatterns = []SensitivePattern{
	{
		Name:        "password",
		Regex:       regexp.MustCompile(`(?i)("?(?:password|passwd|pwd)"?\s*[:=]\s*)("[^"]*"|[^\s,}&]+)`),
		Replacement: `${1}"` + MaskedValue + `"`,
		Keys:        []string{"password", "passwd", "pwd", "secret_key", "access_key"},
	},
	{
		Name:        "authorization",
		Regex:       regexp.MustCompile(`(?i)("?authorization"?\s*[:=]\s*)("[^"]*"|[^\s,}&]+(?:\s+[^\s,}&]+)?)`),
		Replacement: `${1}"` + MaskedValue + `"`,
		Keys:        []string{"authorization"},
	},
	{
		Name:        "basic_auth",
		Regex:       regexp.MustCompile(`(?i)Basic\s+[A-Za-z0-9+/]+=*`),
		Replacement: "Basic " + MaskedValue,
	},
	{
		Name:        "url_userinfo",
		Regex:       regexp.MustCompile(`(https?://[^:/\s]+):[^@/\s]+@`),
		Replacement: "${1}:" + MaskedValue + "@",
	},
}

// Masker handles masking of sensitive information in logs
type Masker struct {
	patterns []SensitivePattern
	enabled  atomic.Bool
}

// NewMasker creates a new masker with default patterns
func NewMasker() *Masker {
	return NewMaskerWithPatterns(DefaultSensitivePatterns)
}

// NewMaskerWithPatterns creates a new masker with custom patterns
func NewMaskerWithPatterns(patterns []SensitivePattern) *Masker {
	m := &Masker{patterns: patterns}
	m.enabled.Store(true)
	return m
}

// SetEnabled enables or disables masking
func (m *Masker) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

// IsEnabled returns whether masking is enabled
func (m *Masker) IsEnabled() bool {
	return m.enabled.Load()
}

// MaskString masks sensitive information in free text
func (m *Masker) MaskString(input string) string {
	if !m.IsEnabled() {
		return input
	}
	result := input
	for _, p := range m.patterns {
		if p.Regex != nil {
			result = p.Regex.ReplaceAllString(result, p.Replacement)
		}
	}
	return result
}

// isSensitiveKey reports whether an attribute key always holds a secret.
func (m *Masker) isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range m.patterns {
		for _, k := range p.Keys {
			if lower == k {
				return true
			}
		}
	}
	return false
}

// MaskValue masks a value based on its key, falling back to text patterns for strings.
func (m *Masker) MaskValue(key string, value any) any {
	if !m.IsEnabled() {
		return value
	}
	if m.isSensitiveKey(key) {
		return MaskedValue
	}
	switch v := value.(type) {
	case string:
		return m.MaskString(v)
	case error:
		return m.MaskString(v.Error())
	default:
		return value
	}
}

// MaskAttr masks a slog attribute, recursing into groups.
func (m *Masker) MaskAttr(a slog.Attr) slog.Attr {
	if !m.IsEnabled() {
		return a
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		masked := make([]any, len(group))
		for i, g := range group {
			masked[i] = m.MaskAttr(g)
		}
		return slog.Group(a.Key, masked...)
	}
	if m.isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskedValue)
	}
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, m.MaskString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, m.MaskString(err.Error()))
		}
	}
	return a
}

// Global masker instance
var globalMasker = NewMasker()

// GetGlobalMasker returns the global masker instance
func GetGlobalMasker() *Masker {
	return globalMasker
}

// MaskSensitiveData masks sensitive data using the global masker
func MaskSensitiveData(input string) string {
	return globalMasker.MaskString(input)
}

// EnableMasking enables/disables global masking
func EnableMasking(enabled bool) {
	globalMasker.SetEnabled(enabled)
}

// IsMaskingEnabled returns whether global masking is enabled
func IsMaskingEnabled() bool {
	return globalMasker.IsEnabled()
}
