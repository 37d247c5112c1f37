package gateway

import "testing"

func TestParseDeviceID(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		prefix  string
		want    string
		wantErr bool
	}{
		{name: "status topic", topic: "hearth/device/hum-01/status", prefix: "hearth", want: "hum-01"},
		{name: "result topic", topic: "hearth/device/hum-01/result/abc", prefix: "hearth", want: "hum-01"},
		{name: "nested prefix", topic: "home/hearth/device/ac-02/online", prefix: "home/hearth", want: "ac-02"},
		{name: "wrong prefix", topic: "other/device/hum-01/status", prefix: "hearth", wantErr: true},
		{name: "wrong segment", topic: "hearth/terminal/hum-01/status", prefix: "hearth", wantErr: true},
		{name: "too short", topic: "hearth/device", prefix: "hearth", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDeviceID(tt.topic, tt.prefix)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDeviceID(%q) succeeded, want error", tt.topic)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDeviceID(%q): %v", tt.topic, err)
			}
			if got != tt.want {
				t.Fatalf("ParseDeviceID(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}

func TestParseCommandID(t *testing.T) {
	if got := ParseCommandID("hearth/device/hum-01/result/cmd-123"); got != "cmd-123" {
		t.Fatalf("ParseCommandID = %q, want cmd-123", got)
	}
}

func TestTopicRoundTrip(t *testing.T) {
	topic := TopicCommand("hearth", "hum-01", "cmd-9")
	if topic != "hearth/device/hum-01/command/cmd-9" {
		t.Fatalf("TopicCommand = %q", topic)
	}
	deviceID, err := ParseDeviceID(topic, "hearth")
	if err != nil || deviceID != "hum-01" {
		t.Fatalf("ParseDeviceID(%q) = %q, %v", topic, deviceID, err)
	}
	if got := ParseCommandID(topic); got != "cmd-9" {
		t.Fatalf("ParseCommandID(%q) = %q", topic, got)
	}
}
