package decision

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"hearth/internal/domain"
)

// Config tunes when the engine is allowed to act without asking first.
type Config struct {
	// ExecuteThreshold is the minimum intent confidence for autonomous
	// execution of an explicit command.
	ExecuteThreshold float64
	// SafeCategories are command categories considered reversible enough
	// to run without confirmation.
	SafeCategories map[string]bool
}

func DefaultConfig() Config {
	return Config{
		ExecuteThreshold: 0.8,
		SafeCategories: map[string]bool{
			"turn_on":   true,
			"turn_off":  true,
			"set_value": true,
		},
	}
}

// Engine turns a resolved intent plus device matches into a decision: what
// to say, what to execute now, and what to hold pending confirmation.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Engine {
	if cfg.ExecuteThreshold == 0 {
		cfg.ExecuteThreshold = DefaultConfig().ExecuteThreshold
	}
	if cfg.SafeCategories == nil {
		cfg.SafeCategories = DefaultConfig().SafeCategories
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

func (e *Engine) Decide(intent domain.Intent, matches []domain.DeviceMatch, envData map[string]any, userID string) domain.Decision {
	var d domain.Decision
	switch {
	case intent.IsImplicit && len(matches) > 0:
		d = e.suggest(intent, matches[0], envData)
	case intent.IsImplicit:
		d = domain.Decision{Strategy: domain.StrategySilentObserve}
	case len(matches) == 0 && intent.Target == "":
		// Not a device intent (chitchat, unknown, plain queries): nothing
		// for this engine to do.
		d = domain.Decision{Strategy: domain.StrategySilentObserve}
	case len(matches) == 0:
		d = e.noDevice(intent)
	case intent.Confidence > e.cfg.ExecuteThreshold && e.cfg.SafeCategories[intent.Category]:
		d = e.execute(intent, matches[0])
	default:
		d = e.confirm(intent, matches[0])
	}

	e.logger.Debug("decision made",
		"user", userID,
		"strategy", string(d.Strategy),
		"actions", len(d.Actions),
		"pending", len(d.PendingActions))
	return d
}

// suggest proposes a remedy for an implicit complaint: one spoken
// suggestion plus exactly one pending device command awaiting confirmation.
func (e *Engine) suggest(intent domain.Intent, top domain.DeviceMatch, envData map[string]any) domain.Decision {
	text := suggestionText(intent, top, envData)
	pending := domain.Action{
		ActionType:           domain.ActionDeviceControl,
		DeviceID:             top.DeviceID,
		Action:               suggestedCommand(intent),
		RequiresConfirmation: true,
	}
	return domain.Decision{
		Strategy:       domain.StrategyProactiveSuggestion,
		ResponseText:   text,
		Actions:        []domain.Action{voiceAction(text)},
		PendingActions: []domain.Action{pending},
	}
}

func voiceAction(text string) domain.Action {
	return domain.Action{
		ActionType: domain.ActionVoiceResponse,
		Params:     map[string]any{"text": text},
	}
}

func (e *Engine) execute(intent domain.Intent, top domain.DeviceMatch) domain.Decision {
	act := domain.Action{
		ActionType: domain.ActionDeviceControl,
		DeviceID:   top.DeviceID,
		Action:     intent.Category,
		Params:     commandParams(intent, top),
	}
	return domain.Decision{
		Strategy:     domain.StrategyExecuteAndInform,
		ResponseText: fmt.Sprintf("好的，已为您%s%s。", verbFor(intent.Category), deviceLabel(top.DeviceType)),
		Actions:      []domain.Action{act},
	}
}

func (e *Engine) confirm(intent domain.Intent, top domain.DeviceMatch) domain.Decision {
	pending := domain.Action{
		ActionType:           domain.ActionDeviceControl,
		DeviceID:             top.DeviceID,
		Action:               intent.Category,
		Params:               commandParams(intent, top),
		RequiresConfirmation: true,
	}
	text := fmt.Sprintf("您是要%s%s吗？", verbFor(intent.Category), deviceLabel(top.DeviceType))
	return domain.Decision{
		Strategy:       domain.StrategyAskConfirmation,
		ResponseText:   text,
		Actions:        []domain.Action{voiceAction(text)},
		PendingActions: []domain.Action{pending},
	}
}

func (e *Engine) noDevice(intent domain.Intent) domain.Decision {
	text := fmt.Sprintf("抱歉，我没有找到可以控制的%s，请确认设备是否在线。", deviceLabel(intent.Target))
	return domain.Decision{
		Strategy:     domain.StrategyAskConfirmation,
		ResponseText: text,
		Actions:      []domain.Action{voiceAction(text)},
	}
}

func suggestionText(intent domain.Intent, top domain.DeviceMatch, envData map[string]any) string {
	label := deviceLabel(top.DeviceType)
	switch intent.Category {
	case "humidity":
		if v, ok := envNumber(envData, "humidity"); ok {
			return fmt.Sprintf("检测到室内湿度为%.0f%%，需要我帮您打开%s吗？", v, label)
		}
	case "temperature":
		if v, ok := envNumber(envData, "temperature"); ok {
			return fmt.Sprintf("检测到室内温度为%.0f°C，需要我帮您打开%s吗？", v, label)
		}
	}
	return fmt.Sprintf("需要我帮您调节一下%s吗？", label)
}

// suggestedCommand maps an implicit complaint to the device command the
// suggestion would run if confirmed.
func suggestedCommand(intent domain.Intent) string {
	if a := intent.Entities["suggested_action"]; a != "" {
		return a
	}
	return "turn_on"
}

func commandParams(intent domain.Intent, top domain.DeviceMatch) map[string]any {
	raw, ok := intent.Entities["value"]
	if !ok {
		return nil
	}
	params := map[string]any{"property": top.Capability}
	if n, err := strconv.Atoi(raw); err == nil {
		params["value"] = n
	} else {
		params["value"] = raw
	}
	return params
}

var deviceLabels = map[string]string{
	"light":        "灯",
	"ac":           "空调",
	"humidifier":   "加湿器",
	"dehumidifier": "除湿机",
	"tv":           "电视",
	"curtain":      "窗帘",
	"speaker":      "音箱",
}

func deviceLabel(deviceType string) string {
	if label, ok := deviceLabels[deviceType]; ok {
		return label
	}
	if deviceType == "" {
		return "设备"
	}
	return deviceType
}

var verbs = map[string]string{
	"turn_on":   "打开",
	"turn_off":  "关闭",
	"set_value": "调节",
	"increase":  "调高",
	"decrease":  "调低",
}

func verbFor(category string) string {
	if v, ok := verbs[category]; ok {
		return v
	}
	return "操作"
}

func envNumber(env map[string]any, key string) (float64, bool) {
	switch v := env[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
