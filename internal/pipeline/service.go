package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hearth/internal/convo"
	"hearth/internal/decision"
	"hearth/internal/domain"
	"hearth/internal/intent"
	"hearth/internal/match"
	"hearth/internal/registry"
	"hearth/internal/scene"
)

// Dispatcher executes a validated device command. The registry satisfies
// this directly; the MQTT gateway wraps it for remote devices.
type Dispatcher interface {
	SendCommand(ctx context.Context, deviceID string, cmd domain.CommandRequest) (registry.CommandResult, error)
}

// TurnSaver persists finished turns. Persistence is best effort: a failed
// save is logged and the turn still returns.
type TurnSaver interface {
	SaveTurn(ctx context.Context, userID string, result domain.TurnResult) error
}

// Service runs one dialogue turn end to end: scene classification, intent
// resolution, device matching, decision, immediate command dispatch and
// context bookkeeping.
type Service struct {
	classifier *scene.Classifier
	resolver   *intent.Resolver
	matcher    *match.Matcher
	engine     *decision.Engine
	contexts   *convo.Store
	devices    *registry.Registry
	dispatcher Dispatcher
	turns      TurnSaver
	logger     *slog.Logger
	now        func() time.Time
}

func New(classifier *scene.Classifier, resolver *intent.Resolver, matcher *match.Matcher, engine *decision.Engine, contexts *convo.Store, devices *registry.Registry, dispatcher Dispatcher, turns TurnSaver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if dispatcher == nil {
		dispatcher = devices
	}
	return &Service{
		classifier: classifier,
		resolver:   resolver,
		matcher:    matcher,
		engine:     engine,
		contexts:   contexts,
		devices:    devices,
		dispatcher: dispatcher,
		turns:      turns,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) HandleTurn(ctx context.Context, req domain.TurnRequest) (domain.TurnResult, error) {
	turnStart := time.Now()
	text := req.Signal.ASR.Text
	history := s.contexts.History(req.UserID)

	sceneStart := time.Now()
	sceneResult, err := s.classifier.Analyze(ctx, req.Signal, s.deviceStates(req.UserID), history)
	if err != nil {
		return domain.TurnResult{}, err
	}
	sceneDur := time.Since(sceneStart)

	resolved := s.resolver.Understand(text, req.Signal, sceneResult)
	matches := s.matcher.Match(resolved, req.UserID)
	envData := s.environment(req.Signal, matches)
	decided := s.engine.Decide(resolved, matches, envData, req.UserID)

	s.dispatchImmediate(ctx, decided)

	result := domain.TurnResult{
		TurnID:    uuid.NewString(),
		Timestamp: s.now(),
		InputText: text,
		Scene:     sceneResult,
		Intent:    resolved,
		Matches:   matches,
		Decision:  decided,
	}

	s.contexts.Append(req.UserID, domain.ContextEntry{
		Timestamp: result.Timestamp,
		InputText: text,
		Intent:    resolved,
		Decision:  decided,
	})

	if s.turns != nil {
		if err := s.turns.SaveTurn(ctx, req.UserID, result); err != nil {
			s.logger.Warn("turn persist failed", "turn_id", result.TurnID, "error", err)
		}
	}

	s.logger.Info("turn handled",
		"turn_id", result.TurnID,
		"user", req.UserID,
		"scene", string(sceneResult.Primary.Type),
		"intent", string(resolved.Type),
		"strategy", string(decided.Strategy),
		"matches", len(matches),
		"scene_ms", sceneDur.Milliseconds(),
		"total_ms", time.Since(turnStart).Milliseconds())
	return result, nil
}

// dispatchImmediate executes the decision's non-pending device commands.
// Failures downgrade the turn to a report, never an error: the spoken
// response already describes the attempt and the ack arrives out of band.
func (s *Service) dispatchImmediate(ctx context.Context, decided domain.Decision) {
	for _, act := range decided.Actions {
		if act.ActionType != domain.ActionDeviceControl || act.RequiresConfirmation {
			continue
		}
		cmd := domain.CommandRequest{
			CommandID:  uuid.NewString(),
			Action:     act.Action,
			Properties: commandProperties(act),
		}
		if _, err := s.dispatcher.SendCommand(ctx, act.DeviceID, cmd); err != nil {
			s.logger.Warn("command dispatch failed",
				"device", act.DeviceID,
				"action", act.Action,
				"error", err)
		}
	}
}

// ConfirmPending executes a previously suggested action once the user
// agrees. The action comes from the last context entry's pending set and
// is consumed on a successful dispatch; a failed dispatch leaves it in
// place so the user can confirm again.
func (s *Service) ConfirmPending(ctx context.Context, userID string) (registry.CommandResult, bool, error) {
	last, ok := s.contexts.Last(userID)
	if !ok || len(last.Decision.PendingActions) == 0 {
		return registry.CommandResult{}, false, nil
	}
	act := last.Decision.PendingActions[0]
	cmd := domain.CommandRequest{
		CommandID:  uuid.NewString(),
		Action:     act.Action,
		Properties: commandProperties(act),
	}
	res, err := s.dispatcher.SendCommand(ctx, act.DeviceID, cmd)
	if err != nil {
		return registry.CommandResult{}, true, err
	}
	s.contexts.ConsumePending(userID)
	return res, true, nil
}

// History exposes the user's in-memory dialogue context.
func (s *Service) History(userID string) []domain.ContextEntry {
	return s.contexts.History(userID)
}

// ClearContext drops the user's dialogue context, pending actions included.
func (s *Service) ClearContext(userID string) {
	s.contexts.Clear(userID)
}

// deviceStates snapshots the owner's device states for scene context.
func (s *Service) deviceStates(userID string) map[string]map[string]any {
	devices := s.devices.ListByOwner(userID)
	if len(devices) == 0 {
		return nil
	}
	out := make(map[string]map[string]any, len(devices))
	for _, dev := range devices {
		out[dev.DeviceID] = dev.CurrentState
	}
	return out
}

// environment merges ambient sensor signals with readings reported by the
// matched devices, ambient values winning.
func (s *Service) environment(bundle domain.SignalBundle, matches []domain.DeviceMatch) map[string]any {
	env := make(map[string]any)
	for _, m := range matches {
		for _, key := range []string{"humidity", "temperature", "brightness"} {
			if v, ok := m.CurrentState[key]; ok {
				env[key] = v
			}
		}
	}
	for k, v := range bundle.Ambient {
		env[k] = v
	}
	if len(env) == 0 {
		return nil
	}
	return env
}

func commandProperties(act domain.Action) map[string]any {
	prop, ok := act.Params["property"].(string)
	if !ok || prop == "" {
		return nil
	}
	value, ok := act.Params["value"]
	if !ok {
		return nil
	}
	return map[string]any{prop: value}
}
