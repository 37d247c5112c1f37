package intent

import (
	"testing"

	"hearth/internal/domain"
)

func TestExplicitPatternDominatesImplicitMining(t *testing.T) {
	r := NewResolver()
	// 加湿器 also appears in the complaint table's target set; the explicit
	// pattern hit must win.
	got := r.Understand("打开加湿器", domain.SignalBundle{}, domain.SceneResult{})
	if got.IsImplicit {
		t.Fatalf("is_implicit=true, want explicit intent")
	}
	if got.Category != "turn_on" {
		t.Fatalf("category=%q, want turn_on", got.Category)
	}
	if got.Target != "humidifier" {
		t.Fatalf("target=%q, want humidifier", got.Target)
	}
	if got.Confidence != 0.85 {
		t.Fatalf("confidence=%.2f, want 0.85", got.Confidence)
	}
}

func TestImplicitComplaintMining(t *testing.T) {
	r := NewResolver()
	got := r.Understand("好干燥啊", domain.SignalBundle{}, domain.SceneResult{})
	if !got.IsImplicit {
		t.Fatalf("expected implicit intent")
	}
	if got.Type != domain.IntentEnvironmentAdjust {
		t.Fatalf("type=%s, want environment_adjust", got.Type)
	}
	if got.Category != "humidity" || got.Target != "humidifier" {
		t.Fatalf("category=%q target=%q, want humidity/humidifier", got.Category, got.Target)
	}
	if got.Confidence != 0.7 {
		t.Fatalf("confidence=%.2f, want 0.7", got.Confidence)
	}
	if got.Entities["suggested_action"] != "increase" {
		t.Fatalf("suggested_action=%q, want increase", got.Entities["suggested_action"])
	}
}

func TestExplicitPatternOrderFirstMatchWins(t *testing.T) {
	r := NewResolver()
	// 关闭 precedes the shorter 关 in the table; both match this text.
	got := r.Understand("关闭电视", domain.SignalBundle{}, domain.SceneResult{})
	if got.Category != "turn_off" || got.Target != "tv" {
		t.Fatalf("category=%q target=%q, want turn_off/tv", got.Category, got.Target)
	}
}

func TestEntityExtraction(t *testing.T) {
	r := NewResolver()
	got := r.Understand("把卧室空调调到26度", domain.SignalBundle{}, domain.SceneResult{})
	if got.Category != "set_value" {
		t.Fatalf("category=%q, want set_value", got.Category)
	}
	if got.Entities["device"] != "ac" {
		t.Fatalf("device=%q, want ac", got.Entities["device"])
	}
	if got.Entities["room"] != "卧室" {
		t.Fatalf("room=%q, want 卧室", got.Entities["room"])
	}
	if got.Entities["value"] != "26" {
		t.Fatalf("value=%q, want 26", got.Entities["value"])
	}
}

func TestUnknownTextYieldsZeroConfidence(t *testing.T) {
	r := NewResolver()
	got := r.Understand("今天心情不错", domain.SignalBundle{}, domain.SceneResult{})
	if got.Category != "unknown" || got.Confidence != 0 {
		t.Fatalf("got %+v, want unknown intent with zero confidence", got)
	}
	if got.IsImplicit {
		t.Fatalf("unknown intent must not be implicit")
	}
}

func TestUrgentSceneMinesSafetyCheck(t *testing.T) {
	r := NewResolver()
	sceneResult := domain.SceneResult{Flags: domain.SceneFlags{IsUrgent: true}}
	got := r.Understand("救命", domain.SignalBundle{}, sceneResult)
	if got.Type != domain.IntentSafetyCheck || !got.IsImplicit {
		t.Fatalf("got %+v, want implicit safety_check", got)
	}
}
