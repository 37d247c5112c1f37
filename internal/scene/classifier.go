package scene

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hearth/internal/domain"
)

// Classifier turns one multimodal signal bundle into a ranked scene
// hypothesis plus situational flags and a recommended action. Rule matching
// is deterministic; the Model supplies a prior when no keyword rule fires.
type Classifier struct {
	model  Model
	logger *slog.Logger
	now    func() time.Time
}

func NewClassifier(model Model, logger *slog.Logger) *Classifier {
	if model == nil {
		model = StaticPrior{}
	}
	return &Classifier{
		model:  model,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *Classifier) Analyze(ctx context.Context, bundle domain.SignalBundle, deviceStates map[string]map[string]any, history []domain.ContextEntry) (domain.SceneResult, error) {
	features := extractFeatures(bundle, deviceStates, history)

	rule, ruleHit := matchRules(features)

	var alternatives []domain.SceneHypothesis
	primary := rule
	if !ruleHit {
		// The model call may be expensive; respect caller cancellation
		// before reaching for it.
		if err := ctx.Err(); err != nil {
			return domain.SceneResult{}, err
		}
		hypotheses, err := c.model.Predict(ctx, features)
		if err != nil || len(hypotheses) == 0 {
			if err != nil && c.logger != nil {
				c.logger.Warn("scene model predict failed, using fallback prior", "error", err)
			}
			hypotheses, _ = StaticPrior{}.Predict(ctx, features)
		}
		primary = hypotheses[0]
		alternatives = hypotheses[1:]
	} else if ctx.Err() == nil {
		// The rule already decided the primary; the model only supplies
		// alternatives here, so a cancelled caller skips the round-trip.
		if hypotheses, err := c.model.Predict(ctx, features); err == nil {
			for _, h := range hypotheses {
				if h.Type != primary.Type {
					alternatives = append(alternatives, h)
				}
			}
		}
	}

	flags := deriveFlags(primary, features)
	result := domain.SceneResult{
		SceneID:           uuid.NewString(),
		Timestamp:         c.now(),
		Primary:           primary,
		Alternatives:      alternatives,
		Flags:             flags,
		ComplaintCategory: features.Complaint,
		TimeBucket:        features.TimeBucket,
		RecommendedAction: recommendAction(primary, features, flags),
	}
	return result, nil
}

// matchRules is the deterministic half of the fusion policy. An exact device
// keyword or complaint hit decides the primary scene outright.
func matchRules(features Features) (domain.SceneHypothesis, bool) {
	if features.HasDeviceKeyword {
		sub := domain.SubSceneDeviceControl
		if features.SentenceType == SentenceInterrogative {
			sub = domain.SubSceneInfoQuery
		}
		return domain.SceneHypothesis{Type: domain.SceneHumanDevice, SubType: sub, Confidence: 0.9}, true
	}
	if features.Complaint != "" {
		if features.SpeakerCount >= 2 {
			return domain.SceneHypothesis{Type: domain.SceneHumanHuman, SubType: domain.SubSceneImplicitRequest, Confidence: 0.75}, true
		}
		return domain.SceneHypothesis{Type: domain.SceneSelfTalk, SubType: domain.SubSceneImplicitRequest, Confidence: 0.75}, true
	}
	if containsAny(features.Text, urgentHints) {
		return domain.SceneHypothesis{Type: domain.SceneSelfTalk, SubType: domain.SubSceneEmergency, Confidence: 0.85}, true
	}
	return domain.SceneHypothesis{}, false
}

func deriveFlags(primary domain.SceneHypothesis, features Features) domain.SceneFlags {
	return domain.SceneFlags{
		IsDeviceRelated:  features.HasDeviceKeyword || primary.Type == domain.SceneHumanDevice,
		RequiresResponse: primary.Type == domain.SceneHumanDevice && primary.SubType != domain.SubSceneEmergency,
		IsPrivate:        primary.SubType == domain.SubScenePrivacy || containsAny(features.Text, privateHints),
		IsUrgent:         primary.SubType == domain.SubSceneEmergency || containsAny(features.Text, urgentHints),
	}
}

// recommendAction maps scene type, confidence, complaint and urgency to the
// fixed recommended-action table. Branch order matters: the human-device
// rules are consulted before the urgency escape hatch.
func recommendAction(primary domain.SceneHypothesis, features Features, flags domain.SceneFlags) domain.RecommendedAction {
	if primary.Type == domain.SceneHumanDevice {
		switch {
		case primary.Confidence > 0.8:
			return domain.ActionRespond
		case features.Complaint != "":
			return domain.ActionProactiveSuggestion
		default:
			return domain.ActionSilentObserve
		}
	}

	if flags.IsUrgent {
		return domain.ActionEmergencyAlert
	}

	if primary.Type == domain.SceneHumanHuman || primary.Type == domain.SceneSelfTalk {
		if features.Complaint != "" {
			return domain.ActionProactiveSuggestion
		}
		return domain.ActionSilentObserve
	}

	return domain.ActionIgnore
}
