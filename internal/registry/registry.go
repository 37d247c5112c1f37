package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hearth/internal/domain"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusUnknown Status = "unknown"
)

type Location struct {
	Room string `json:"room,omitempty"`
	Zone string `json:"zone,omitempty"`
}

type SensorSpec struct {
	Unit           string `json:"unit,omitempty"`
	ReportInterval int    `json:"report_interval,omitempty"`
}

type Device struct {
	DeviceID     string                `json:"device_id"`
	DeviceType   string                `json:"device_type"`
	DeviceName   string                `json:"device_name"`
	OwnerID      string                `json:"owner_id"`
	Manufacturer string                `json:"manufacturer,omitempty"`
	Model        string                `json:"model,omitempty"`
	Location     Location              `json:"location"`
	Capabilities []Capability          `json:"capabilities"`
	Sensors      map[string]SensorSpec `json:"sensors,omitempty"`
	Status       Status                `json:"status"`
	CurrentState map[string]any        `json:"current_state"`
	LastSeen     time.Time             `json:"last_seen"`
	CreatedAt    time.Time             `json:"created_at"`
}

// DeviceInfo is the registration payload reported by a device or its adapter.
type DeviceInfo struct {
	DeviceID     string                `json:"device_id,omitempty"`
	DeviceType   string                `json:"device_type"`
	DeviceName   string                `json:"device_name"`
	Manufacturer string                `json:"manufacturer,omitempty"`
	Model        string                `json:"model,omitempty"`
	Location     Location              `json:"location"`
	Capabilities []CapabilitySpec      `json:"capabilities"`
	Sensors      map[string]SensorSpec `json:"sensors,omitempty"`
}

type CommandResult struct {
	CommandID string         `json:"command_id,omitempty"`
	Status    string         `json:"status"`
	State     map[string]any `json:"state,omitempty"`
}

// CommandHandler executes a validated command for one device type, e.g. a
// protocol adapter. When no handler is registered the command is applied
// directly to the device's reported state.
type CommandHandler func(ctx context.Context, deviceID string, cmd domain.CommandRequest) (CommandResult, error)

// StatusListener observes every status update after it has been applied.
type StatusListener func(deviceID string, state map[string]any)

type deviceEntry struct {
	mu  sync.Mutex
	dev Device
}

// Registry owns all known devices, their capabilities and last reported
// state. Lookups and membership changes take the registry lock; status
// updates and command dispatch additionally serialize per device so a
// command never runs against a stale online/offline snapshot.
type Registry struct {
	mu         sync.RWMutex
	devices    map[string]*deviceEntry
	ownerIndex map[string][]string

	handlerMu sync.RWMutex
	handlers  map[string]CommandHandler

	listenerMu sync.RWMutex
	listeners  []StatusListener

	logger Logger
	now    func() time.Time
}

// Logger is the subset of slog used by the registry.
type Logger interface {
	Warn(msg string, args ...any)
}

func New(logger Logger) *Registry {
	return &Registry{
		devices:    make(map[string]*deviceEntry),
		ownerIndex: make(map[string][]string),
		handlers:   make(map[string]CommandHandler),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) Register(info DeviceInfo, ownerID string) (Device, error) {
	if strings.TrimSpace(info.DeviceType) == "" {
		return Device{}, fmt.Errorf("device_type is required")
	}
	caps, err := parseCapabilities(info.Capabilities)
	if err != nil {
		return Device{}, err
	}

	deviceID := strings.TrimSpace(info.DeviceID)
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	sensors := make(map[string]SensorSpec, len(info.Sensors))
	for name, s := range info.Sensors {
		sensors[name] = s
	}

	now := r.now()
	dev := Device{
		DeviceID:     deviceID,
		DeviceType:   info.DeviceType,
		DeviceName:   info.DeviceName,
		OwnerID:      ownerID,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Location:     info.Location,
		Capabilities: caps,
		Sensors:      sensors,
		Status:       StatusOnline,
		CurrentState: map[string]any{},
		LastSeen:     now,
		CreatedAt:    now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.devices[deviceID]; ok {
		// Re-registration replaces the declaration wholesale. Keep the
		// original index position when the owner is unchanged so match
		// ranking stays stable.
		existing.mu.Lock()
		prevOwner := existing.dev.OwnerID
		dev.CreatedAt = existing.dev.CreatedAt
		existing.dev = dev
		existing.mu.Unlock()
		if prevOwner != ownerID {
			r.ownerIndex[prevOwner] = removeID(r.ownerIndex[prevOwner], deviceID)
			r.ownerIndex[ownerID] = append(r.ownerIndex[ownerID], deviceID)
		}
		return dev, nil
	}

	r.devices[deviceID] = &deviceEntry{dev: dev}
	r.ownerIndex[ownerID] = append(r.ownerIndex[ownerID], deviceID)
	return dev, nil
}

func (r *Registry) Unregister(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.devices[deviceID]
	if !ok {
		return false
	}
	delete(r.devices, deviceID)
	r.ownerIndex[entry.dev.OwnerID] = removeID(r.ownerIndex[entry.dev.OwnerID], deviceID)
	return true
}

func (r *Registry) Get(deviceID string) (Device, bool) {
	r.mu.RLock()
	entry, ok := r.devices[deviceID]
	r.mu.RUnlock()
	if !ok {
		return Device{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return cloneDevice(entry.dev), true
}

// ListByOwner returns the owner's devices in registration order.
func (r *Registry) ListByOwner(ownerID string) []Device {
	return r.listWhere(ownerID, func(Device) bool { return true })
}

func (r *Registry) ListByType(ownerID, deviceType string) []Device {
	return r.listWhere(ownerID, func(d Device) bool { return d.DeviceType == deviceType })
}

func (r *Registry) ListByRoom(ownerID, room string) []Device {
	return r.listWhere(ownerID, func(d Device) bool { return d.Location.Room == room })
}

func (r *Registry) listWhere(ownerID string, keep func(Device) bool) []Device {
	r.mu.RLock()
	ids := append([]string{}, r.ownerIndex[ownerID]...)
	entries := make([]*deviceEntry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := r.devices[id]; ok {
			entries = append(entries, entry)
		}
	}
	r.mu.RUnlock()

	out := make([]Device, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		dev := cloneDevice(entry.dev)
		entry.mu.Unlock()
		if keep(dev) {
			out = append(out, dev)
		}
	}
	return out
}

// UpdateStatus merges a reported property patch into the device's state.
// Unknown devices are ignored: status reports race with unregistration and
// that race is expected. Listeners run synchronously after the mutation is
// applied; a panicking listener is isolated and does not block the rest.
func (r *Registry) UpdateStatus(deviceID string, report domain.StatusReport) {
	r.mu.RLock()
	entry, ok := r.devices[deviceID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	for k, v := range report.Status {
		entry.dev.CurrentState[k] = v
	}
	entry.dev.LastSeen = r.now()
	if report.Online != nil {
		if *report.Online {
			entry.dev.Status = StatusOnline
		} else {
			entry.dev.Status = StatusOffline
		}
	}
	state := cloneState(entry.dev.CurrentState)
	entry.mu.Unlock()

	r.notifyListeners(deviceID, state)
}

func (r *Registry) notifyListeners(deviceID string, state map[string]any) {
	r.listenerMu.RLock()
	listeners := append([]StatusListener{}, r.listeners...)
	r.listenerMu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil && r.logger != nil {
					r.logger.Warn("status listener panicked", "device_id", deviceID, "panic", rec)
				}
			}()
			listener(deviceID, state)
		}()
	}
}

// SendCommand validates every property against the device's declared
// capabilities and either delegates to the type handler or applies the
// properties to the reported state. Validation failures reject the command
// atomically.
func (r *Registry) SendCommand(ctx context.Context, deviceID string, cmd domain.CommandRequest) (CommandResult, error) {
	r.mu.RLock()
	entry, ok := r.devices[deviceID]
	r.mu.RUnlock()
	if !ok {
		return CommandResult{}, fmt.Errorf("device %s: %w", deviceID, ErrDeviceNotFound)
	}

	entry.mu.Lock()

	dev := &entry.dev
	if dev.Status != StatusOnline {
		entry.mu.Unlock()
		return CommandResult{}, fmt.Errorf("device %s: %w", deviceID, ErrDeviceOffline)
	}

	for prop, value := range cmd.Properties {
		if err := validateProperty(dev, prop, value); err != nil {
			entry.mu.Unlock()
			return CommandResult{}, err
		}
	}
	deviceType := dev.DeviceType

	r.handlerMu.RLock()
	handler := r.handlers[deviceType]
	r.handlerMu.RUnlock()
	if handler != nil {
		// Handlers run without the device lock held: a handler is free to
		// call back into UpdateStatus when the device acks with state.
		entry.mu.Unlock()
		return handler(ctx, deviceID, cmd)
	}

	for prop, value := range cmd.Properties {
		dev.CurrentState[prop] = value
	}
	dev.LastSeen = r.now()
	res := CommandResult{
		CommandID: cmd.CommandID,
		Status:    "success",
		State:     cloneState(dev.CurrentState),
	}
	entry.mu.Unlock()
	return res, nil
}

func validateProperty(dev *Device, prop string, value any) error {
	var capability *Capability
	for i := range dev.Capabilities {
		if dev.Capabilities[i].Name == prop {
			capability = &dev.Capabilities[i]
			break
		}
	}
	if capability == nil {
		return &InvalidCommandError{DeviceID: dev.DeviceID, Property: prop, Reason: "no such capability"}
	}
	if !capability.Writable {
		return &InvalidCommandError{DeviceID: dev.DeviceID, Property: prop, Reason: "capability is not writable"}
	}

	switch capability.Kind {
	case KindRange, KindPosition:
		v, ok := toFloat(value)
		if !ok {
			return &InvalidCommandError{DeviceID: dev.DeviceID, Property: prop, Reason: fmt.Sprintf("value %v is not numeric", value)}
		}
		if v < capability.Range.Min || v > capability.Range.Max {
			return &InvalidCommandError{
				DeviceID: dev.DeviceID,
				Property: prop,
				Reason:   fmt.Sprintf("value %g outside range [%g, %g]", v, capability.Range.Min, capability.Range.Max),
			}
		}
	case KindEnum:
		s, ok := value.(string)
		if !ok {
			return &InvalidCommandError{DeviceID: dev.DeviceID, Property: prop, Reason: fmt.Sprintf("value %v is not a string", value)}
		}
		for _, allowed := range capability.Values {
			if s == allowed {
				return nil
			}
		}
		return &InvalidCommandError{DeviceID: dev.DeviceID, Property: prop, Reason: fmt.Sprintf("value %q not in enum set", s)}
	}
	return nil
}

// RegisterCommandHandler installs the handler for one device type. The last
// registration for a type wins.
func (r *Registry) RegisterCommandHandler(deviceType string, handler CommandHandler) {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()
	r.handlers[deviceType] = handler
}

// AddStatusListener appends a listener. Listeners are not deduplicated.
func (r *Registry) AddStatusListener(listener StatusListener) {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

type CapabilitySummary struct {
	TotalDevices int                 `json:"total_devices"`
	ByType       map[string][]string `json:"by_type"`
	ByRoom       map[string][]string `json:"by_room"`
	Capabilities []string            `json:"capabilities"`
}

// Summary rolls up one owner's devices by type, room and capability name.
func (r *Registry) Summary(ownerID string) CapabilitySummary {
	out := CapabilitySummary{
		ByType: map[string][]string{},
		ByRoom: map[string][]string{},
	}
	capSet := map[string]struct{}{}
	for _, dev := range r.ListByOwner(ownerID) {
		out.TotalDevices++
		out.ByType[dev.DeviceType] = append(out.ByType[dev.DeviceType], dev.DeviceID)
		room := dev.Location.Room
		if room == "" {
			room = "unknown"
		}
		out.ByRoom[room] = append(out.ByRoom[room], dev.DeviceID)
		for _, c := range dev.Capabilities {
			capSet[c.Name] = struct{}{}
		}
	}
	out.Capabilities = make([]string, 0, len(capSet))
	for name := range capSet {
		out.Capabilities = append(out.Capabilities, name)
	}
	sort.Strings(out.Capabilities)
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func cloneDevice(dev Device) Device {
	out := dev
	out.Capabilities = append([]Capability{}, dev.Capabilities...)
	out.CurrentState = cloneState(dev.CurrentState)
	if dev.Sensors != nil {
		out.Sensors = make(map[string]SensorSpec, len(dev.Sensors))
		for k, v := range dev.Sensors {
			out.Sensors[k] = v
		}
	}
	return out
}

func cloneState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	default:
		return 0, false
	}
}
