package intent

import (
	"regexp"
	"strings"

	"hearth/internal/domain"
)

const (
	// Pattern hits carry a fixed confidence above the implicit-mining
	// floor, so a directly stated command always beats an inferred need
	// for the same text.
	explicitConfidence = 0.85
	implicitConfidence = 0.7
	explicitThreshold  = 0.7
)

var numberPattern = regexp.MustCompile(`\d+`)

// Resolver turns recognized text plus scene context into a typed intent:
// explicit pattern recognition first, implicit complaint mining only when no
// confident explicit hit exists.
type Resolver struct {
	patterns   []explicitPattern
	devices    []deviceKeyword
	rooms      []string
	complaints []complaintRule
}

func NewResolver() *Resolver {
	return &Resolver{
		patterns:   defaultExplicitPatterns(),
		devices:    defaultDeviceKeywords(),
		rooms:      defaultRoomKeywords(),
		complaints: defaultComplaintRules(),
	}
}

func (r *Resolver) Understand(text string, bundle domain.SignalBundle, sceneResult domain.SceneResult) domain.Intent {
	text = strings.TrimSpace(text)

	explicit, hasExplicit := r.recognizeExplicit(text)
	if hasExplicit && explicit.Confidence > explicitThreshold {
		return explicit
	}

	if implicit, ok := r.mineImplicit(text, sceneResult); ok {
		return implicit
	}

	if hasExplicit {
		return explicit
	}
	return unknownIntent()
}

func (r *Resolver) recognizeExplicit(text string) (domain.Intent, bool) {
	for _, p := range r.patterns {
		if !strings.Contains(text, p.Surface) {
			continue
		}
		entities := r.extractEntities(text)
		return domain.Intent{
			Type:       p.Type,
			Category:   p.Category,
			Target:     entities["device"],
			Confidence: explicitConfidence,
			Entities:   entities,
			IsImplicit: false,
		}, true
	}
	return domain.Intent{}, false
}

func (r *Resolver) mineImplicit(text string, sceneResult domain.SceneResult) (domain.Intent, bool) {
	for _, rule := range r.complaints {
		if !strings.Contains(text, rule.Keyword) {
			continue
		}
		return domain.Intent{
			Type:       domain.IntentEnvironmentAdjust,
			Category:   rule.Category,
			Target:     rule.TargetDevice,
			Confidence: implicitConfidence,
			Entities: map[string]string{
				"condition":        rule.Keyword,
				"suggested_action": rule.SuggestedAction,
			},
			IsImplicit: true,
		}, true
	}

	// Scene urgency without a matching complaint becomes a safety check
	// rather than silence.
	if sceneResult.Flags.IsUrgent {
		return domain.Intent{
			Type:       domain.IntentSafetyCheck,
			Category:   "emergency",
			Confidence: implicitConfidence,
			Entities:   map[string]string{},
			IsImplicit: true,
		}, true
	}
	return domain.Intent{}, false
}

func (r *Resolver) extractEntities(text string) map[string]string {
	entities := map[string]string{}

	for _, dk := range r.devices {
		if strings.Contains(text, dk.Keyword) {
			entities["device"] = dk.DeviceType
			break
		}
	}

	if num := numberPattern.FindString(text); num != "" {
		entities["value"] = num
	}

	for _, room := range r.rooms {
		if strings.Contains(text, room) {
			entities["room"] = room
			break
		}
	}

	return entities
}

func unknownIntent() domain.Intent {
	return domain.Intent{
		Type:       domain.IntentInfoQuery,
		Category:   "unknown",
		Confidence: 0,
		Entities:   map[string]string{},
		IsImplicit: false,
	}
}
