package simulator

import (
	"fmt"
	"slices"
	"strings"
)

// Query selects simulators. UDIDs are alternatives, as are States; a
// simulator must satisfy both groups. An empty group matches everything.
type Query struct {
	UDIDs  []string
	States []State
}

func (q Query) Empty() bool {
	return len(q.UDIDs) == 0 && len(q.States) == 0
}

func (q Query) Match(s Simulator) bool {
	if len(q.UDIDs) > 0 && !slices.Contains(q.UDIDs, s.UDID) {
		return false
	}
	if len(q.States) > 0 && !slices.Contains(q.States, s.State) {
		return false
	}
	return true
}

// Field is one column of a formatted simulator.
type Field string

const (
	FieldUDID       Field = "udid"
	FieldName       Field = "name"
	FieldDeviceName Field = "device-name"
	FieldOSVersion  Field = "os-version"
	FieldState      Field = "state"
)

var knownFields = []Field{FieldUDID, FieldName, FieldDeviceName, FieldOSVersion, FieldState}

// Format is an ordered list of fields rendered per simulator.
type Format []Field

// DefaultFormat is used when no format is requested.
var DefaultFormat = Format{FieldUDID, FieldName, FieldState}

// ParseFormat parses a comma separated field list. An empty string yields
// DefaultFormat.
func ParseFormat(s string) (Format, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultFormat, nil
	}
	var f Format
	for _, part := range strings.Split(s, ",") {
		name := Field(strings.ToLower(strings.TrimSpace(part)))
		if !slices.Contains(knownFields, name) {
			return nil, fmt.Errorf("unknown format field %q (want one of %s)", part, fieldList())
		}
		f = append(f, name)
	}
	return f, nil
}

// Render joins the selected fields of s with a space.
func (f Format) Render(s Simulator) string {
	if len(f) == 0 {
		f = DefaultFormat
	}
	parts := make([]string, 0, len(f))
	for _, field := range f {
		parts = append(parts, field.value(s))
	}
	return strings.Join(parts, " ")
}

// RenderAll renders each simulator on its own line.
func (f Format) RenderAll(sims []Simulator) string {
	lines := make([]string, 0, len(sims))
	for _, s := range sims {
		lines = append(lines, f.Render(s))
	}
	return strings.Join(lines, "\n")
}

func (field Field) value(s Simulator) string {
	switch field {
	case FieldUDID:
		return s.UDID
	case FieldName:
		return s.Name
	case FieldDeviceName:
		return s.DeviceName
	case FieldOSVersion:
		return s.OSVersion
	case FieldState:
		return string(s.State)
	}
	return ""
}

func fieldList() string {
	names := make([]string, len(knownFields))
	for i, f := range knownFields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
