package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"hearth/internal/domain"
	"hearth/internal/registry"
)

type HubConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	CommandTimeout time.Duration
}

// Announcement is the registration payload a device publishes on connect.
type Announcement struct {
	OwnerID string              `json:"owner_id"`
	Device  registry.DeviceInfo `json:"device"`
}

// DeviceSaver persists device registrations reported over MQTT.
type DeviceSaver interface {
	UpsertDevice(ctx context.Context, dev registry.Device) error
}

// Hub bridges MQTT devices into the registry: announcements register them,
// status reports update them, and registry commands for announced device
// types are published back out and matched against their acks.
type Hub struct {
	cfg     HubConfig
	client  paho.Client
	devices *registry.Registry
	saver   DeviceSaver
	logger  *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]chan domain.CommandAck
}

func NewHub(cfg HubConfig, devices *registry.Registry, saver DeviceSaver, logger *slog.Logger) *Hub {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 8 * time.Second
	}
	return &Hub{
		cfg:     cfg,
		devices: devices,
		saver:   saver,
		logger:  logger,
		pending: make(map[string]chan domain.CommandAck),
	}
}

func (h *Hub) Start(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(h.cfg.BrokerURL).
		SetClientID(h.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if h.cfg.Username != "" {
		opts.SetUsername(h.cfg.Username)
		opts.SetPassword(h.cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		h.logger.Error("mqtt connection lost", "error", err)
	})

	h.client = paho.NewClient(opts)
	if token := h.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	if err := h.subscribeHandlers(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		h.client.Disconnect(100)
	}()

	return nil
}

func (h *Hub) subscribeHandlers() error {
	if token := h.client.Subscribe(TopicDeviceAnnounce(h.cfg.TopicPrefix), 1, h.handleAnnounce); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := h.client.Subscribe(TopicDeviceOnline(h.cfg.TopicPrefix), 1, h.handleOnline); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := h.client.Subscribe(TopicDeviceStatus(h.cfg.TopicPrefix), 1, h.handleStatus); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := h.client.Subscribe(TopicDeviceResult(h.cfg.TopicPrefix), 1, h.handleCommandAck); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (h *Hub) handleAnnounce(_ paho.Client, msg paho.Message) {
	deviceID, err := ParseDeviceID(msg.Topic(), h.cfg.TopicPrefix)
	if err != nil {
		h.logger.Warn("skip invalid announce topic", "topic", msg.Topic(), "error", err)
		return
	}

	var ann Announcement
	if err := json.Unmarshal(msg.Payload(), &ann); err != nil {
		h.logger.Warn("invalid announce payload", "device_id", deviceID, "error", err)
		return
	}
	if ann.Device.DeviceID == "" {
		ann.Device.DeviceID = deviceID
	}
	if ann.Device.DeviceID != deviceID {
		h.logger.Warn("announce device mismatch", "topic_device", deviceID, "payload_device", ann.Device.DeviceID)
		return
	}

	dev, err := h.devices.Register(ann.Device, ann.OwnerID)
	if err != nil {
		h.logger.Warn("announce rejected", "device_id", deviceID, "error", err)
		return
	}
	h.devices.RegisterCommandHandler(dev.DeviceType, h.remoteCommand)

	if h.saver != nil {
		if err := h.saver.UpsertDevice(context.Background(), dev); err != nil {
			h.logger.Warn("device persist failed", "device_id", deviceID, "error", err)
		}
	}
	h.logger.Info("device announced", "device_id", dev.DeviceID, "device_type", dev.DeviceType, "owner", dev.OwnerID)
}

func (h *Hub) handleOnline(_ paho.Client, msg paho.Message) {
	deviceID, err := ParseDeviceID(msg.Topic(), h.cfg.TopicPrefix)
	if err != nil {
		h.logger.Warn("skip invalid online topic", "topic", msg.Topic(), "error", err)
		return
	}

	payload := strings.TrimSpace(strings.ToLower(string(msg.Payload())))
	online := payload == "1" || payload == "true" || payload == "online"
	h.devices.UpdateStatus(deviceID, domain.StatusReport{Online: &online})
	h.logger.Info("device online status", "device_id", deviceID, "online", online)
}

func (h *Hub) handleStatus(_ paho.Client, msg paho.Message) {
	deviceID, err := ParseDeviceID(msg.Topic(), h.cfg.TopicPrefix)
	if err != nil {
		h.logger.Warn("skip invalid status topic", "topic", msg.Topic(), "error", err)
		return
	}

	var report domain.StatusReport
	if err := json.Unmarshal(msg.Payload(), &report); err != nil {
		h.logger.Warn("invalid status payload", "device_id", deviceID, "error", err)
		return
	}
	h.devices.UpdateStatus(deviceID, report)
}

func (h *Hub) handleCommandAck(_ paho.Client, msg paho.Message) {
	commandID := ParseCommandID(msg.Topic())
	if commandID == "" {
		return
	}

	var ack domain.CommandAck
	if err := json.Unmarshal(msg.Payload(), &ack); err != nil {
		h.logger.Warn("invalid command ack", "topic", msg.Topic(), "error", err)
		return
	}
	if ack.CommandID == "" {
		ack.CommandID = commandID
	}

	h.pendingMu.Lock()
	ch, ok := h.pending[ack.CommandID]
	h.pendingMu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- ack:
	default:
	}
}

// PublishResponse pushes spoken response text to the user's playback
// endpoints.
func (h *Hub) PublishResponse(userID, text string) error {
	body, err := json.Marshal(map[string]string{
		"text": text,
		"ts":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	topic := TopicUserResponse(h.cfg.TopicPrefix, userID)
	if token := h.client.Publish(topic, 1, false, body); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// remoteCommand runs as the registry command handler for announced device
// types: publish the validated command and wait for the device's ack.
func (h *Hub) remoteCommand(ctx context.Context, deviceID string, cmd domain.CommandRequest) (registry.CommandResult, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return registry.CommandResult{}, err
	}

	ackCh := make(chan domain.CommandAck, 1)
	h.pendingMu.Lock()
	h.pending[cmd.CommandID] = ackCh
	h.pendingMu.Unlock()
	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, cmd.CommandID)
		h.pendingMu.Unlock()
	}()

	topic := TopicCommand(h.cfg.TopicPrefix, deviceID, cmd.CommandID)
	if token := h.client.Publish(topic, 1, false, body); token.Wait() && token.Error() != nil {
		return registry.CommandResult{}, token.Error()
	}

	select {
	case <-ctx.Done():
		return registry.CommandResult{}, ctx.Err()
	case ack := <-ackCh:
		if !ack.OK {
			if ack.Error == "" {
				ack.Error = "device rejected command"
			}
			return registry.CommandResult{CommandID: ack.CommandID, Status: "failed"}, fmt.Errorf("%s", ack.Error)
		}
		if len(ack.State) > 0 {
			h.devices.UpdateStatus(deviceID, domain.StatusReport{Status: ack.State})
		}
		return registry.CommandResult{CommandID: ack.CommandID, Status: "success", State: ack.State}, nil
	case <-time.After(h.cfg.CommandTimeout):
		return registry.CommandResult{}, fmt.Errorf("command timeout")
	}
}
