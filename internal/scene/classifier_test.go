package scene

import (
	"context"
	"testing"
	"time"

	"hearth/internal/domain"
)

func bundleWithText(text string) domain.SignalBundle {
	return domain.SignalBundle{
		ASR:       domain.ASRSignal{Text: text, Confidence: 0.9},
		Speakers:  []domain.SpeakerID{{SpeakerID: "spk-1", IsRegistered: true, Confidence: 0.8}},
		Timestamp: time.Date(2025, 3, 1, 20, 30, 0, 0, time.UTC),
	}
}

func TestDetectComplaintFirstMatchWins(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{text: "好干燥啊", want: "humidity"},
		{text: "屋里好热", want: "temperature"},
		{text: "太暗了看不清", want: "light"},
		{text: "外面真吵", want: "noise"},
		{text: "闷热难受", want: "humidity"}, // 闷 precedes 热 in table order
		{text: "今天天气不错", want: ""},
	}
	for _, tt := range tests {
		if got := detectComplaint(tt.text); got != tt.want {
			t.Fatalf("detectComplaint(%q)=%q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestTimeBucket(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{hour: 7, want: "morning"},
		{hour: 14, want: "afternoon"},
		{hour: 20, want: "evening"},
		{hour: 2, want: "night"},
		{hour: 23, want: "night"},
	}
	for _, tt := range tests {
		ts := time.Date(2025, 3, 1, tt.hour, 0, 0, 0, time.UTC)
		if got := timeBucket(ts); got != tt.want {
			t.Fatalf("timeBucket(hour=%d)=%q, want %q", tt.hour, got, tt.want)
		}
	}
}

func TestAnalyzeDeviceCommandRespond(t *testing.T) {
	c := NewClassifier(nil, nil)
	result, err := c.Analyze(context.Background(), bundleWithText("打开客厅的灯"), nil, nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if result.Primary.Type != domain.SceneHumanDevice {
		t.Fatalf("scene=%s, want human_device", result.Primary.Type)
	}
	if !result.Flags.IsDeviceRelated {
		t.Fatalf("expected is_device_related flag")
	}
	if result.RecommendedAction != domain.ActionRespond {
		t.Fatalf("action=%s, want respond", result.RecommendedAction)
	}
}

func TestAnalyzeComplaintWithoutDeviceKeyword(t *testing.T) {
	c := NewClassifier(nil, nil)
	result, err := c.Analyze(context.Background(), bundleWithText("好干燥啊"), nil, nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if result.Primary.Type != domain.SceneSelfTalk {
		t.Fatalf("scene=%s, want self_talk for single speaker", result.Primary.Type)
	}
	if result.ComplaintCategory != "humidity" {
		t.Fatalf("complaint=%q, want humidity", result.ComplaintCategory)
	}
	if result.RecommendedAction != domain.ActionProactiveSuggestion {
		t.Fatalf("action=%s, want proactive_suggestion", result.RecommendedAction)
	}
}

func TestAnalyzeUrgentOverridesObservation(t *testing.T) {
	c := NewClassifier(nil, nil)
	result, err := c.Analyze(context.Background(), bundleWithText("救命，快来人"), nil, nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !result.Flags.IsUrgent {
		t.Fatalf("expected is_urgent flag")
	}
	if result.RecommendedAction != domain.ActionEmergencyAlert {
		t.Fatalf("action=%s, want emergency_alert", result.RecommendedAction)
	}
}

func TestAnalyzeTwoSpeakersComplaint(t *testing.T) {
	c := NewClassifier(nil, nil)
	bundle := bundleWithText("这屋里好冷")
	bundle.Speakers = append(bundle.Speakers, domain.SpeakerID{SpeakerID: "spk-2"})
	result, err := c.Analyze(context.Background(), bundle, nil, nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if result.Primary.Type != domain.SceneHumanHuman {
		t.Fatalf("scene=%s, want human_human", result.Primary.Type)
	}
	if result.RecommendedAction != domain.ActionProactiveSuggestion {
		t.Fatalf("action=%s, want proactive_suggestion", result.RecommendedAction)
	}
}

func TestAnalyzePlainChatSilent(t *testing.T) {
	c := NewClassifier(nil, nil)
	result, err := c.Analyze(context.Background(), bundleWithText("今天上班挺顺利的"), nil, nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if result.RecommendedAction != domain.ActionSilentObserve {
		t.Fatalf("action=%s, want silent_observe", result.RecommendedAction)
	}
}

func TestAnalyzeRespectsCancellation(t *testing.T) {
	c := NewClassifier(StaticPrior{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// No rule hit, so the model path is reached and the cancelled context
	// must short-circuit it.
	_, err := c.Analyze(ctx, bundleWithText("昨天看了部电影"), nil, nil)
	if err == nil {
		t.Fatalf("expected context error")
	}
}

type countingModel struct {
	calls int
}

func (m *countingModel) Predict(context.Context, Features) ([]domain.SceneHypothesis, error) {
	m.calls++
	return []domain.SceneHypothesis{{Type: domain.SceneBackground, SubType: domain.SubSceneCasualChat, Confidence: 0.3}}, nil
}

func TestAnalyzeRuleHitSkipsModelWhenCancelled(t *testing.T) {
	model := &countingModel{}
	c := NewClassifier(model, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A rule hit already fixes the primary scene; the model would only add
	// alternatives, so a cancelled caller must not pay for the call.
	result, err := c.Analyze(ctx, bundleWithText("打开客厅的灯"), nil, nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if result.Primary.Type != domain.SceneHumanDevice {
		t.Fatalf("scene=%s, want human_device", result.Primary.Type)
	}
	if model.calls != 0 {
		t.Fatalf("model called %d times under a cancelled context", model.calls)
	}
	if len(result.Alternatives) != 0 {
		t.Fatalf("alternatives=%d, want none without a model call", len(result.Alternatives))
	}
}

type fixedModel struct {
	scenes []domain.SceneHypothesis
}

func (m fixedModel) Predict(context.Context, Features) ([]domain.SceneHypothesis, error) {
	return m.scenes, nil
}

func TestAnalyzeUsesModelPriorWhenNoRuleHit(t *testing.T) {
	model := fixedModel{scenes: []domain.SceneHypothesis{
		{Type: domain.SceneHumanPet, SubType: domain.SubSceneCasualChat, Confidence: 0.7},
		{Type: domain.SceneBackground, SubType: domain.SubSceneCasualChat, Confidence: 0.2},
	}}
	c := NewClassifier(model, nil)
	result, err := c.Analyze(context.Background(), bundleWithText("毛毛过来"), nil, nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if result.Primary.Type != domain.SceneHumanPet {
		t.Fatalf("scene=%s, want model's human_pet", result.Primary.Type)
	}
	if len(result.Alternatives) != 1 {
		t.Fatalf("alternatives=%d, want 1", len(result.Alternatives))
	}
	if result.RecommendedAction != domain.ActionIgnore {
		t.Fatalf("action=%s, want ignore for human_pet without complaint", result.RecommendedAction)
	}
}
