package scene

import (
	"strings"
	"time"

	"hearth/internal/domain"
)

// Features extracted from one signal bundle before rule matching and model
// prediction. The keyword tables are ordered association lists: first match
// wins, and per-locale deployments swap the phrase sets, not the control
// flow.

type Features struct {
	Text             string                `json:"text"`
	SpeakerCount     int                   `json:"speaker_count"`
	SpeakerIDs       []string              `json:"speaker_ids,omitempty"`
	HasDeviceKeyword bool                  `json:"has_device_keyword"`
	SentenceType     string                `json:"sentence_type"`
	Complaint        string                `json:"environment_complaint,omitempty"`
	TimeBucket       string                `json:"time_bucket"`
	HistoryLen       int                   `json:"history_len"`
	KnownDevices     int                   `json:"known_devices"`
	Emotion          *domain.EmotionSignal `json:"emotion,omitempty"`
}

const (
	SentenceDeclarative   = "declarative"
	SentenceInterrogative = "interrogative"
	SentenceImperative    = "imperative"
)

var deviceKeywords = []string{
	"打开", "关闭", "开", "关", "调", "设置",
	"灯", "空调", "电视", "音乐", "窗帘",
}

var complaintHints = []struct {
	category string
	hints    []string
}{
	{category: "humidity", hints: []string{"干燥", "潮湿", "闷"}},
	{category: "temperature", hints: []string{"热", "冷", "凉"}},
	{category: "light", hints: []string{"暗", "亮", "刺眼"}},
	{category: "noise", hints: []string{"吵", "安静"}},
}

var urgentHints = []string{"救命", "着火", "漏水", "摔倒", "报警", "快来人"}

var privateHints = []string{"隐私", "别录", "私密", "悄悄话"}

var interrogativeHints = []string{"?", "？", "吗", "呢", "什么", "怎么", "多少", "几点", "哪"}

var imperativeHints = []string{"请", "帮我", "帮忙", "把", "给我"}

func extractFeatures(bundle domain.SignalBundle, deviceStates map[string]map[string]any, history []domain.ContextEntry) Features {
	text := strings.TrimSpace(bundle.ASR.Text)
	ids := make([]string, 0, len(bundle.Speakers))
	for _, sp := range bundle.Speakers {
		if sp.SpeakerID != "" {
			ids = append(ids, sp.SpeakerID)
		}
	}

	return Features{
		Text:             text,
		SpeakerCount:     len(bundle.Speakers),
		SpeakerIDs:       ids,
		HasDeviceKeyword: containsAny(text, deviceKeywords),
		SentenceType:     sentenceType(text),
		Complaint:        detectComplaint(text),
		TimeBucket:       timeBucket(bundle.Timestamp),
		HistoryLen:       len(history),
		KnownDevices:     len(deviceStates),
		Emotion:          bundle.Emotion,
	}
}

func detectComplaint(text string) string {
	for _, item := range complaintHints {
		if containsAny(text, item.hints) {
			return item.category
		}
	}
	return ""
}

func sentenceType(text string) string {
	if containsAny(text, interrogativeHints) {
		return SentenceInterrogative
	}
	if containsAny(text, imperativeHints) || containsAny(text, deviceKeywords) {
		return SentenceImperative
	}
	return SentenceDeclarative
}

func timeBucket(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	switch h := ts.Hour(); {
	case h >= 5 && h < 11:
		return "morning"
	case h >= 11 && h < 18:
		return "afternoon"
	case h >= 18 && h < 23:
		return "evening"
	default:
		return "night"
	}
}

func containsAny(text string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}
