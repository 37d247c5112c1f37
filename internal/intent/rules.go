package intent

import "hearth/internal/domain"

// Rule tables are static data loaded at construction, ordered so the first
// match wins. Extending a deployment means appending rows, not touching the
// resolver control flow. Phrase sets are locale-specific; these cover the
// zh-CN deployment.

type explicitPattern struct {
	Surface  string
	Category string
	Type     domain.IntentType
}

func defaultExplicitPatterns() []explicitPattern {
	return []explicitPattern{
		{Surface: "打开", Category: "turn_on", Type: domain.IntentDeviceControl},
		{Surface: "关闭", Category: "turn_off", Type: domain.IntentDeviceControl},
		{Surface: "关", Category: "turn_off", Type: domain.IntentDeviceControl},
		{Surface: "开", Category: "turn_on", Type: domain.IntentDeviceControl},
		{Surface: "调到", Category: "set_value", Type: domain.IntentDeviceControl},
		{Surface: "调高", Category: "increase", Type: domain.IntentDeviceControl},
		{Surface: "调低", Category: "decrease", Type: domain.IntentDeviceControl},
		{Surface: "播放", Category: "play", Type: domain.IntentContentPlay},
		{Surface: "暂停", Category: "pause", Type: domain.IntentContentPlay},
		{Surface: "定时", Category: "set_timer", Type: domain.IntentTimerSet},
		{Surface: "提醒我", Category: "set_timer", Type: domain.IntentTimerSet},
		{Surface: "几点", Category: "query_time", Type: domain.IntentInfoQuery},
		{Surface: "天气", Category: "query_weather", Type: domain.IntentInfoQuery},
	}
}

type deviceKeyword struct {
	Keyword    string
	DeviceType string
}

func defaultDeviceKeywords() []deviceKeyword {
	return []deviceKeyword{
		{Keyword: "灯", DeviceType: "light"},
		{Keyword: "空调", DeviceType: "ac"},
		{Keyword: "加湿器", DeviceType: "humidifier"},
		{Keyword: "电视", DeviceType: "tv"},
		{Keyword: "窗帘", DeviceType: "curtain"},
		{Keyword: "音箱", DeviceType: "speaker"},
	}
}

func defaultRoomKeywords() []string {
	return []string{"客厅", "卧室", "厨房", "卫生间", "书房"}
}

// complaintRule maps an environment complaint to the inferred need: the
// category of discomfort, the device type that addresses it and the action
// the suggestion should carry.
type complaintRule struct {
	Keyword         string
	Category        string
	TargetDevice    string
	SuggestedAction string
}

func defaultComplaintRules() []complaintRule {
	return []complaintRule{
		{Keyword: "干燥", Category: "humidity", TargetDevice: "humidifier", SuggestedAction: "increase"},
		{Keyword: "潮湿", Category: "humidity", TargetDevice: "dehumidifier", SuggestedAction: "decrease"},
		{Keyword: "热", Category: "temperature", TargetDevice: "ac", SuggestedAction: "cool"},
		{Keyword: "冷", Category: "temperature", TargetDevice: "ac", SuggestedAction: "heat"},
		{Keyword: "暗", Category: "light", TargetDevice: "light", SuggestedAction: "increase"},
		{Keyword: "亮", Category: "light", TargetDevice: "light", SuggestedAction: "decrease"},
	}
}
