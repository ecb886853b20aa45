package stage

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind identifies a stage worker.
type Kind string

const (
	KindCleanup Kind = "cleanup"
	KindBlur    Kind = "blur"
	KindSave    Kind = "save"
)

// Valid reports whether k names a known worker.
func (k Kind) Valid() bool {
	switch k {
	case KindCleanup, KindBlur, KindSave:
		return true
	}
	return false
}

// Label returns the human-facing name of the stage, e.g. "Blur".
func (k Kind) Label() string {
	s := strings.TrimSpace(strings.ReplaceAll(string(k), "_", " "))
	if s == "" {
		return "Unknown"
	}
	return cases.Title(language.English).String(s)
}

// ParseKind maps a persisted kind string back to a Kind.
func ParseKind(raw string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	return k, k.Valid()
}
