package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"hearth/internal/domain"
)

func humidifierInfo() DeviceInfo {
	return DeviceInfo{
		DeviceID:   "hum-01",
		DeviceType: "humidifier",
		DeviceName: "卧室加湿器",
		Location:   Location{Room: "卧室"},
		Capabilities: []CapabilitySpec{
			{Name: "power", Kind: "switch"},
			{Name: "target_humidity", Kind: "range", Range: &RangeSpec{Min: 30, Max: 80, Step: 5, Unit: "%"}},
			{Name: "mode", Kind: "enum", Values: []string{"auto", "sleep", "turbo"}},
		},
		Sensors: map[string]SensorSpec{
			"humidity": {Unit: "%", ReportInterval: 60},
		},
	}
}

func TestRegisterGetRoundTrip(t *testing.T) {
	r := New(nil)
	dev, err := r.Register(humidifierInfo(), "user-1")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if dev.Status != StatusOnline {
		t.Fatalf("status=%s, want online", dev.Status)
	}

	got, ok := r.Get("hum-01")
	if !ok {
		t.Fatalf("device not found after register")
	}
	if len(got.Capabilities) != 3 {
		t.Fatalf("capabilities=%d, want 3", len(got.Capabilities))
	}
	if got.Capabilities[1].Kind != KindRange || got.Capabilities[1].Range.Max != 80 {
		t.Fatalf("range capability not preserved: %+v", got.Capabilities[1])
	}
	if !got.Capabilities[0].Writable || !got.Capabilities[0].Readable {
		t.Fatalf("omitted readable/writable should default to true")
	}

	if !r.Unregister("hum-01") {
		t.Fatalf("unregister returned false for known device")
	}
	if _, ok := r.Get("hum-01"); ok {
		t.Fatalf("device still present after unregister")
	}
	if r.Unregister("hum-01") {
		t.Fatalf("unregister of unknown device should return false")
	}
}

func TestRegisterAssignsDeviceID(t *testing.T) {
	r := New(nil)
	info := humidifierInfo()
	info.DeviceID = ""
	dev, err := r.Register(info, "user-1")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if dev.DeviceID == "" {
		t.Fatalf("expected generated device id")
	}
}

func TestRegisterRejectsMalformedCapabilities(t *testing.T) {
	tests := []struct {
		name string
		spec CapabilitySpec
	}{
		{name: "enum without values", spec: CapabilitySpec{Name: "mode", Kind: "enum"}},
		{name: "range min above max", spec: CapabilitySpec{Name: "level", Kind: "range", Range: &RangeSpec{Min: 50, Max: 10}}},
		{name: "unknown kind", spec: CapabilitySpec{Name: "beep", Kind: "sound"}},
		{name: "missing name", spec: CapabilitySpec{Kind: "switch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(nil)
			info := DeviceInfo{DeviceType: "light", Capabilities: []CapabilitySpec{tt.spec}}
			_, err := r.Register(info, "user-1")
			var capErr *InvalidCapabilityError
			if !errors.As(err, &capErr) {
				t.Fatalf("err=%v, want InvalidCapabilityError", err)
			}
		})
	}
}

func TestSendCommandValidation(t *testing.T) {
	r := New(nil)
	if _, err := r.Register(humidifierInfo(), "user-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	tests := []struct {
		name  string
		props map[string]any
	}{
		{name: "range above max", props: map[string]any{"target_humidity": 90}},
		{name: "range below min", props: map[string]any{"target_humidity": 10}},
		{name: "enum outside set", props: map[string]any{"mode": "plaid"}},
		{name: "unknown property", props: map[string]any{"volume": 3}},
		{name: "valid mixed with invalid", props: map[string]any{"power": true, "target_humidity": 200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.SendCommand(context.Background(), "hum-01", domain.CommandRequest{Properties: tt.props})
			var cmdErr *InvalidCommandError
			if !errors.As(err, &cmdErr) {
				t.Fatalf("err=%v, want InvalidCommandError", err)
			}
			dev, _ := r.Get("hum-01")
			if len(dev.CurrentState) != 0 {
				t.Fatalf("rejected command mutated state: %v", dev.CurrentState)
			}
		})
	}
}

func TestSendCommandBoundaryValuesInclusive(t *testing.T) {
	r := New(nil)
	if _, err := r.Register(humidifierInfo(), "user-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	for _, v := range []int{30, 80} {
		result, err := r.SendCommand(context.Background(), "hum-01", domain.CommandRequest{
			Properties: map[string]any{"target_humidity": v},
		})
		if err != nil {
			t.Fatalf("boundary value %d rejected: %v", v, err)
		}
		if result.Status != "success" {
			t.Fatalf("status=%s, want success", result.Status)
		}
	}
}

func TestSendCommandOfflineAndUnknown(t *testing.T) {
	r := New(nil)
	if _, err := r.Register(humidifierInfo(), "user-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	handlerCalled := false
	r.RegisterCommandHandler("humidifier", func(context.Context, string, domain.CommandRequest) (CommandResult, error) {
		handlerCalled = true
		return CommandResult{Status: "success"}, nil
	})

	offline := false
	r.UpdateStatus("hum-01", domain.StatusReport{Online: &offline})

	_, err := r.SendCommand(context.Background(), "hum-01", domain.CommandRequest{Properties: map[string]any{"power": true}})
	if !errors.Is(err, ErrDeviceOffline) {
		t.Fatalf("err=%v, want ErrDeviceOffline", err)
	}
	if handlerCalled {
		t.Fatalf("type handler must not run for offline device")
	}

	_, err = r.SendCommand(context.Background(), "ghost", domain.CommandRequest{})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("err=%v, want ErrDeviceNotFound", err)
	}
}

func TestSendCommandDelegatesToTypeHandler(t *testing.T) {
	r := New(nil)
	if _, err := r.Register(humidifierInfo(), "user-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	r.RegisterCommandHandler("humidifier", func(_ context.Context, deviceID string, cmd domain.CommandRequest) (CommandResult, error) {
		return CommandResult{CommandID: cmd.CommandID, Status: "queued", State: map[string]any{"power": true}}, nil
	})

	result, err := r.SendCommand(context.Background(), "hum-01", domain.CommandRequest{
		CommandID:  "cmd-9",
		Properties: map[string]any{"power": true},
	})
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if result.Status != "queued" || result.CommandID != "cmd-9" {
		t.Fatalf("handler result not returned: %+v", result)
	}
}

func TestSendCommandHandlerMayCallUpdateStatus(t *testing.T) {
	r := New(nil)
	if _, err := r.Register(humidifierInfo(), "user-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// A remote transport handler merges the device's ack state back into
	// the registry before returning. The command path must not hold the
	// device entry lock across the handler for this to work.
	r.RegisterCommandHandler("humidifier", func(_ context.Context, deviceID string, cmd domain.CommandRequest) (CommandResult, error) {
		r.UpdateStatus(deviceID, domain.StatusReport{Status: map[string]any{"power": true, "humidity": 48.0}})
		return CommandResult{CommandID: cmd.CommandID, Status: "success"}, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := r.SendCommand(context.Background(), "hum-01", domain.CommandRequest{
			CommandID:  "cmd-11",
			Properties: map[string]any{"power": true},
		})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("command failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendCommand did not return while its handler updated status")
	}

	dev, _ := r.Get("hum-01")
	if dev.CurrentState["humidity"] != 48.0 {
		t.Fatalf("ack state not merged: %v", dev.CurrentState)
	}
}

func TestSendCommandMergesStateWithoutHandler(t *testing.T) {
	r := New(nil)
	if _, err := r.Register(humidifierInfo(), "user-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	result, err := r.SendCommand(context.Background(), "hum-01", domain.CommandRequest{
		Properties: map[string]any{"power": true, "target_humidity": 55},
	})
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if result.State["power"] != true {
		t.Fatalf("state not merged: %v", result.State)
	}

	dev, _ := r.Get("hum-01")
	if dev.CurrentState["target_humidity"] != 55 {
		t.Fatalf("current_state=%v, want target_humidity=55", dev.CurrentState)
	}
}

func TestUpdateStatusMergesAndNotifies(t *testing.T) {
	r := New(nil)
	if _, err := r.Register(humidifierInfo(), "user-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	var notified []string
	r.AddStatusListener(func(string, map[string]any) {
		panic("listener exploded")
	})
	r.AddStatusListener(func(deviceID string, state map[string]any) {
		notified = append(notified, deviceID)
		if state["humidity"] != 42.0 {
			t.Errorf("listener state=%v, want humidity=42", state)
		}
	})

	r.UpdateStatus("hum-01", domain.StatusReport{Status: map[string]any{"humidity": 42.0}})
	if len(notified) != 1 {
		t.Fatalf("second listener not reached past panicking one, notified=%v", notified)
	}

	// Unknown device reports are ignored, not errors.
	r.UpdateStatus("ghost", domain.StatusReport{Status: map[string]any{"humidity": 1.0}})
}

func TestListByTypeAndRoomKeepRegistrationOrder(t *testing.T) {
	r := New(nil)
	first := humidifierInfo()
	second := humidifierInfo()
	second.DeviceID = "hum-02"
	second.Location = Location{Room: "客厅"}
	other := DeviceInfo{DeviceID: "light-01", DeviceType: "light", Location: Location{Room: "客厅"}}

	for _, info := range []DeviceInfo{first, second, other} {
		if _, err := r.Register(info, "user-1"); err != nil {
			t.Fatalf("register %s failed: %v", info.DeviceID, err)
		}
	}

	byType := r.ListByType("user-1", "humidifier")
	if len(byType) != 2 || byType[0].DeviceID != "hum-01" || byType[1].DeviceID != "hum-02" {
		t.Fatalf("unexpected type listing: %+v", byType)
	}
	byRoom := r.ListByRoom("user-1", "客厅")
	if len(byRoom) != 2 {
		t.Fatalf("room listing=%d entries, want 2", len(byRoom))
	}
	if got := r.ListByType("user-2", "humidifier"); len(got) != 0 {
		t.Fatalf("expected empty listing for unknown owner, got %d", len(got))
	}
}

func TestSummary(t *testing.T) {
	r := New(nil)
	if _, err := r.Register(humidifierInfo(), "user-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	light := DeviceInfo{
		DeviceID:     "light-01",
		DeviceType:   "light",
		Location:     Location{Room: "客厅"},
		Capabilities: []CapabilitySpec{{Name: "power", Kind: "switch"}},
	}
	if _, err := r.Register(light, "user-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	summary := r.Summary("user-1")
	if summary.TotalDevices != 2 {
		t.Fatalf("total=%d, want 2", summary.TotalDevices)
	}
	if len(summary.ByType["humidifier"]) != 1 || len(summary.ByType["light"]) != 1 {
		t.Fatalf("by_type=%v", summary.ByType)
	}
	if len(summary.Capabilities) != 3 {
		t.Fatalf("capabilities=%v, want 3 distinct names", summary.Capabilities)
	}
}
