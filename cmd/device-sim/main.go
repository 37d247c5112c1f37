package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"hearth/internal/config"
	"hearth/internal/domain"
	"hearth/internal/gateway"
	"hearth/internal/registry"
)

// deviceState is the simulated humidifier: a power switch, a target
// humidity setpoint and a drifting ambient humidity reading.
type deviceState struct {
	mu             sync.Mutex
	power          string
	targetHumidity float64
	humidity       float64
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := config.LoadDeviceSimConfig()

	state := &deviceState{
		power:          "off",
		targetHumidity: 50,
		humidity:       38,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := startMQTT(ctx, cfg, state, logger)
	if err != nil {
		logger.Error("start device mqtt failed", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect(100)

	logger.Info("device simulator started",
		"device_id", cfg.DeviceID,
		"device_type", cfg.DeviceType,
		"room", cfg.Room,
		"broker", cfg.MQTTBrokerURL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}
}

func startMQTT(ctx context.Context, cfg config.DeviceSimConfig, state *deviceState, logger *slog.Logger) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	onlineTopic := gateway.TopicOnline(cfg.MQTTTopicPrefix, cfg.DeviceID)
	opts.SetWill(onlineTopic, "offline", 1, true)

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	if err := publishAnnounce(client, cfg); err != nil {
		return nil, err
	}
	if token := client.Publish(onlineTopic, 1, true, "online"); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	publishStatus(client, cfg, state, logger)

	commandTopic := gateway.TopicCommand(cfg.MQTTTopicPrefix, cfg.DeviceID, "+")
	if token := client.Subscribe(commandTopic, 1, func(_ paho.Client, msg paho.Message) {
		var cmd domain.CommandRequest
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			logger.Error("invalid command payload", "error", err)
			return
		}
		if cmd.CommandID == "" {
			cmd.CommandID = gateway.ParseCommandID(msg.Topic())
		}
		ack := applyCommand(cmd, state)
		resultTopic := gateway.TopicResult(cfg.MQTTTopicPrefix, cfg.DeviceID, cmd.CommandID)
		buf, _ := json.Marshal(ack)
		if tk := client.Publish(resultTopic, 1, false, buf); tk.Wait() && tk.Error() != nil {
			logger.Error("publish ack failed", "error", tk.Error())
		}
		logger.Info("command handled", "command_id", cmd.CommandID, "action", cmd.Action, "ok", ack.OK)
	}); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	go func() {
		reportTicker := time.NewTicker(cfg.ReportInterval)
		defer reportTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				client.Publish(onlineTopic, 1, true, "offline")
				return
			case <-reportTicker.C:
				driftHumidity(state)
				publishStatus(client, cfg, state, logger)
			}
		}
	}()

	return client, nil
}

func publishAnnounce(client paho.Client, cfg config.DeviceSimConfig) error {
	ann := gateway.Announcement{
		OwnerID: cfg.OwnerID,
		Device: registry.DeviceInfo{
			DeviceID:   cfg.DeviceID,
			DeviceType: cfg.DeviceType,
			DeviceName: cfg.DeviceType + " (simulated)",
			Location:   registry.Location{Room: cfg.Room},
			Capabilities: []registry.CapabilitySpec{
				{Name: "power", Kind: "switch"},
				{Name: "target_humidity", Kind: "range", Range: &registry.RangeSpec{Min: 30, Max: 80, Unit: "%"}},
			},
			Sensors: map[string]registry.SensorSpec{
				"humidity": {Unit: "%"},
			},
		},
	}
	buf, err := json.Marshal(ann)
	if err != nil {
		return err
	}
	topic := gateway.TopicAnnounce(cfg.MQTTTopicPrefix, cfg.DeviceID)
	if token := client.Publish(topic, 1, true, buf); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func publishStatus(client paho.Client, cfg config.DeviceSimConfig, state *deviceState, logger *slog.Logger) {
	state.mu.Lock()
	report := domain.StatusReport{
		DeviceID: cfg.DeviceID,
		Status: map[string]any{
			"power":           state.power,
			"target_humidity": state.targetHumidity,
			"humidity":        state.humidity,
		},
		TS: time.Now().UTC().Format(time.RFC3339),
	}
	state.mu.Unlock()

	buf, _ := json.Marshal(report)
	topic := gateway.TopicStatus(cfg.MQTTTopicPrefix, cfg.DeviceID)
	if token := client.Publish(topic, 0, false, buf); token.Wait() && token.Error() != nil {
		logger.Error("publish status failed", "error", token.Error())
	}
}

func applyCommand(cmd domain.CommandRequest, state *deviceState) domain.CommandAck {
	state.mu.Lock()
	defer state.mu.Unlock()

	switch cmd.Action {
	case "turn_on":
		state.power = "on"
	case "turn_off":
		state.power = "off"
	case "set_value":
	default:
		if len(cmd.Properties) == 0 {
			return domain.CommandAck{CommandID: cmd.CommandID, OK: false, Error: "unsupported action: " + cmd.Action}
		}
	}

	for prop, value := range cmd.Properties {
		switch prop {
		case "power":
			if s, ok := value.(string); ok {
				state.power = s
			}
		case "target_humidity":
			if f, ok := value.(float64); ok {
				state.targetHumidity = f
			}
		default:
			return domain.CommandAck{CommandID: cmd.CommandID, OK: false, Error: "unknown property: " + prop}
		}
	}

	return domain.CommandAck{
		CommandID: cmd.CommandID,
		OK:        true,
		State: map[string]any{
			"power":           state.power,
			"target_humidity": state.targetHumidity,
		},
	}
}

// driftHumidity nudges the reading toward the setpoint when running,
// otherwise lets it wander.
func driftHumidity(state *deviceState) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.power == "on" {
		if state.humidity < state.targetHumidity {
			state.humidity += 1.5
		}
	} else {
		state.humidity += rand.Float64()*2 - 1.2
	}
	if state.humidity < 10 {
		state.humidity = 10
	}
	if state.humidity > 95 {
		state.humidity = 95
	}
}
