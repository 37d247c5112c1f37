package domain

import "time"

// Signal bundle produced by the external audio pipeline. ASR confidence,
// speaker identity and emotion are opaque inputs here; nothing in the core
// re-derives them.

type SignalBundle struct {
	ASR       ASRSignal      `json:"asr"`
	Speakers  []SpeakerID    `json:"speakers,omitempty"`
	Emotion   *EmotionSignal `json:"emotion,omitempty"`
	Ambient   map[string]any `json:"ambient,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type ASRSignal struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
}

type SpeakerID struct {
	SpeakerID    string  `json:"speaker_id"`
	SpeakerName  string  `json:"speaker_name,omitempty"`
	IsRegistered bool    `json:"is_registered"`
	Confidence   float64 `json:"confidence"`
}

type EmotionSignal struct {
	Primary   string  `json:"primary"`
	Intensity float64 `json:"intensity"`
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
}

// Scene classification.

type SceneType string

const (
	SceneHumanDevice SceneType = "human_device"
	SceneHumanHuman  SceneType = "human_human"
	SceneHumanPet    SceneType = "human_pet"
	SceneSelfTalk    SceneType = "self_talk"
	SceneBackground  SceneType = "background"
)

type SubSceneType string

const (
	SubSceneDeviceControl   SubSceneType = "device_control"
	SubSceneInfoQuery       SubSceneType = "info_query"
	SubSceneContentPlay     SubSceneType = "content_play"
	SubSceneReminderSet     SubSceneType = "reminder_set"
	SubSceneCasualChat      SubSceneType = "casual_chat"
	SubSceneImplicitRequest SubSceneType = "implicit_request"
	SubSceneFamilyChat      SubSceneType = "family_chat"
	SubSceneVisitorChat     SubSceneType = "visitor_chat"
	SubScenePhoneCall       SubSceneType = "phone_call"
	SubScenePrivacy         SubSceneType = "privacy"
	SubSceneEmergency       SubSceneType = "emergency"
	SubSceneSleep           SubSceneType = "sleep"
)

type RecommendedAction string

const (
	ActionRespond             RecommendedAction = "respond"
	ActionProactiveSuggestion RecommendedAction = "proactive_suggestion"
	ActionSilentObserve       RecommendedAction = "silent_observe"
	ActionIgnore              RecommendedAction = "ignore"
	ActionEmergencyAlert      RecommendedAction = "emergency_alert"
)

type SceneHypothesis struct {
	Type       SceneType    `json:"type"`
	SubType    SubSceneType `json:"sub_type"`
	Confidence float64      `json:"confidence"`
}

type SceneFlags struct {
	IsDeviceRelated  bool `json:"is_device_related"`
	RequiresResponse bool `json:"requires_response"`
	IsPrivate        bool `json:"is_private"`
	IsUrgent         bool `json:"is_urgent"`
}

type SceneResult struct {
	SceneID           string            `json:"scene_id"`
	Timestamp         time.Time         `json:"timestamp"`
	Primary           SceneHypothesis   `json:"primary_scene"`
	Alternatives      []SceneHypothesis `json:"alternative_scenes,omitempty"`
	Flags             SceneFlags        `json:"flags"`
	ComplaintCategory string            `json:"complaint_category,omitempty"`
	TimeBucket        string            `json:"time_bucket"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
}

// Intent resolution.

type IntentType string

const (
	IntentDeviceControl IntentType = "device_control"
	IntentInfoQuery     IntentType = "info_query"
	IntentContentPlay   IntentType = "content_play"
	IntentTimerSet      IntentType = "timer_set"
	IntentSceneTrigger  IntentType = "scene_trigger"

	IntentEnvironmentAdjust IntentType = "environment_adjust"
	IntentMoodSetting       IntentType = "mood_setting"
	IntentSafetyCheck       IntentType = "safety_check"
	IntentHealthCare        IntentType = "health_care"
)

type Intent struct {
	Type       IntentType        `json:"type"`
	Category   string            `json:"category"`
	Target     string            `json:"target,omitempty"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
	IsImplicit bool              `json:"is_implicit"`
}

type DeviceMatch struct {
	DeviceID     string         `json:"device_id"`
	DeviceType   string         `json:"device_type"`
	Capability   string         `json:"capability"`
	CurrentState map[string]any `json:"current_state"`
	MatchScore   float64        `json:"match_score"`
}

// Decision output.

type ActionType string

const (
	ActionDeviceControl ActionType = "device_control"
	ActionVoiceResponse ActionType = "voice_response"
	ActionNotification  ActionType = "notification"
)

type DecisionStrategy string

const (
	StrategyDirectExecute       DecisionStrategy = "direct_execute"
	StrategyExecuteAndInform    DecisionStrategy = "execute_and_inform"
	StrategyAskConfirmation     DecisionStrategy = "ask_confirmation"
	StrategyProactiveSuggestion DecisionStrategy = "proactive_suggestion"
	StrategySilentObserve       DecisionStrategy = "silent_observe"
)

type Action struct {
	ActionType           ActionType     `json:"action_type"`
	DeviceID             string         `json:"device_id,omitempty"`
	Action               string         `json:"action,omitempty"`
	Params               map[string]any `json:"params,omitempty"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
}

type Decision struct {
	Strategy       DecisionStrategy `json:"strategy"`
	Actions        []Action         `json:"actions"`
	ResponseText   string           `json:"response_text,omitempty"`
	PendingActions []Action         `json:"pending_actions,omitempty"`
}

// ContextEntry is one remembered (intent, decision) pair in a user's
// conversation context.
type ContextEntry struct {
	Timestamp time.Time `json:"timestamp"`
	InputText string    `json:"input_text,omitempty"`
	Intent    Intent    `json:"intent"`
	Decision  Decision  `json:"decision"`
}

// Turn API payloads.

type TurnRequest struct {
	UserID string       `json:"user_id"`
	Signal SignalBundle `json:"signal"`
}

type TurnResult struct {
	TurnID    string        `json:"turn_id"`
	Timestamp time.Time     `json:"timestamp"`
	InputText string        `json:"input_text"`
	Scene     SceneResult   `json:"scene"`
	Intent    Intent        `json:"intent"`
	Matches   []DeviceMatch `json:"device_matches,omitempty"`
	Decision  Decision      `json:"decision"`
}

// MQTT payloads exchanged with device-side integrations.

type StatusReport struct {
	DeviceID string         `json:"device_id,omitempty"`
	Online   *bool          `json:"online,omitempty"`
	Status   map[string]any `json:"status,omitempty"`
	TS       string         `json:"ts,omitempty"`
}

type CommandRequest struct {
	CommandID  string         `json:"command_id"`
	Action     string         `json:"action,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

type CommandAck struct {
	CommandID string         `json:"command_id"`
	OK        bool           `json:"ok"`
	State     map[string]any `json:"state,omitempty"`
	Error     string         `json:"error,omitempty"`
}
