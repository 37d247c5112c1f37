package match

import (
	"sort"

	"hearth/internal/domain"
	"hearth/internal/registry"
)

// Scorer ranks a candidate device for an intent. Higher is better; the
// contract ends there. The default returns a constant so ranking falls back
// to registration order.
type Scorer interface {
	Score(dev registry.Device, intent domain.Intent) float64
}

type ConstantScorer struct {
	Value float64
}

func (s ConstantScorer) Score(registry.Device, domain.Intent) float64 {
	return s.Value
}

// DeviceLister is the slice of the registry the matcher needs.
type DeviceLister interface {
	ListByType(ownerID, deviceType string) []registry.Device
}

// Matcher finds the owner's devices compatible with a resolved intent.
// Device types match exactly; there is no fuzzy type resolution.
type Matcher struct {
	devices DeviceLister
	scorer  Scorer
}

func New(devices DeviceLister, scorer Scorer) *Matcher {
	if scorer == nil {
		scorer = ConstantScorer{Value: 0.9}
	}
	return &Matcher{devices: devices, scorer: scorer}
}

func (m *Matcher) Match(intent domain.Intent, ownerID string) []domain.DeviceMatch {
	if intent.Target == "" {
		return nil
	}

	candidates := m.devices.ListByType(ownerID, intent.Target)
	matches := make([]domain.DeviceMatch, 0, len(candidates))
	for _, dev := range candidates {
		matches = append(matches, domain.DeviceMatch{
			DeviceID:     dev.DeviceID,
			DeviceType:   dev.DeviceType,
			Capability:   pickCapability(dev, intent),
			CurrentState: dev.CurrentState,
			MatchScore:   m.scorer.Score(dev, intent),
		})
	}

	// Stable sort keeps registration order for equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
	return matches
}

// pickCapability chooses the capability a command for this intent would
// drive: a writable switch for on/off categories, a writable range for
// value adjustment, otherwise the first writable capability.
func pickCapability(dev registry.Device, intent domain.Intent) string {
	var wantKind registry.CapabilityKind
	switch intent.Category {
	case "turn_on", "turn_off":
		wantKind = registry.KindSwitch
	case "set_value", "increase", "decrease":
		wantKind = registry.KindRange
	}

	firstWritable := ""
	for _, c := range dev.Capabilities {
		if !c.Writable {
			continue
		}
		if firstWritable == "" {
			firstWritable = c.Name
		}
		if wantKind != "" && c.Kind == wantKind {
			return c.Name
		}
	}
	if firstWritable != "" {
		return firstWritable
	}
	return "power"
}
