package registry

import (
	"fmt"
	"strings"
)

type CapabilityKind string

const (
	KindSwitch   CapabilityKind = "switch"
	KindRange    CapabilityKind = "range"
	KindEnum     CapabilityKind = "enum"
	KindColor    CapabilityKind = "color"
	KindPosition CapabilityKind = "position"
	KindTimer    CapabilityKind = "timer"
)

type RangeSpec struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step,omitempty"`
	Unit string  `json:"unit,omitempty"`
}

// CapabilitySpec is the wire form of a capability declaration as devices
// report it at registration. Readable/Writable default to true when omitted.
type CapabilitySpec struct {
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Readable  *bool      `json:"readable,omitempty"`
	Writable  *bool      `json:"writable,omitempty"`
	Range     *RangeSpec `json:"range,omitempty"`
	Values    []string   `json:"values,omitempty"`
	ColorMode string     `json:"color_mode,omitempty"`
}

// Capability is the validated, immutable form stored on a Device.
type Capability struct {
	Name      string         `json:"name"`
	Kind      CapabilityKind `json:"kind"`
	Readable  bool           `json:"readable"`
	Writable  bool           `json:"writable"`
	Range     *RangeSpec     `json:"range,omitempty"`
	Values    []string       `json:"values,omitempty"`
	ColorMode string         `json:"color_mode,omitempty"`
}

func parseCapabilities(specs []CapabilitySpec) ([]Capability, error) {
	caps := make([]Capability, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		c, err := parseCapability(spec)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[c.Name]; dup {
			return nil, &InvalidCapabilityError{Name: c.Name, Reason: "duplicate capability name"}
		}
		seen[c.Name] = struct{}{}
		caps = append(caps, c)
	}
	return caps, nil
}

func parseCapability(spec CapabilitySpec) (Capability, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return Capability{}, &InvalidCapabilityError{Name: spec.Name, Reason: "name is required"}
	}

	kind := CapabilityKind(strings.ToLower(strings.TrimSpace(spec.Kind)))
	c := Capability{
		Name:     name,
		Kind:     kind,
		Readable: boolOr(spec.Readable, true),
		Writable: boolOr(spec.Writable, true),
	}

	switch kind {
	case KindSwitch, KindTimer:
		// no kind-specific parameters
	case KindRange:
		if spec.Range == nil {
			return Capability{}, &InvalidCapabilityError{Name: name, Reason: "range capability requires min/max"}
		}
		if spec.Range.Min > spec.Range.Max {
			return Capability{}, &InvalidCapabilityError{Name: name, Reason: fmt.Sprintf("range min %g exceeds max %g", spec.Range.Min, spec.Range.Max)}
		}
		r := *spec.Range
		c.Range = &r
	case KindPosition:
		// open/close percentage by default
		r := RangeSpec{Min: 0, Max: 100, Unit: "%"}
		if spec.Range != nil {
			r = *spec.Range
		}
		if r.Min > r.Max {
			return Capability{}, &InvalidCapabilityError{Name: name, Reason: fmt.Sprintf("position min %g exceeds max %g", r.Min, r.Max)}
		}
		c.Range = &r
	case KindEnum:
		if len(spec.Values) == 0 {
			return Capability{}, &InvalidCapabilityError{Name: name, Reason: "enum capability requires a non-empty value set"}
		}
		c.Values = append([]string{}, spec.Values...)
	case KindColor:
		mode := strings.ToLower(strings.TrimSpace(spec.ColorMode))
		if mode == "" {
			mode = "rgb"
		}
		switch mode {
		case "rgb", "hsv", "temperature":
		default:
			return Capability{}, &InvalidCapabilityError{Name: name, Reason: fmt.Sprintf("unsupported color mode %q", spec.ColorMode)}
		}
		c.ColorMode = mode
	default:
		return Capability{}, &InvalidCapabilityError{Name: name, Reason: fmt.Sprintf("unknown capability kind %q", spec.Kind)}
	}

	return c, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
