package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type ServerConfig struct {
	HTTPAddr          string
	DBDSN             string
	MQTTBrokerURL     string
	MQTTClientID      string
	MQTTUsername      string
	MQTTPassword      string
	MQTTTopicPrefix   string
	CommandTimeout    time.Duration
	SceneModelBaseURL string
	SceneModelTimeout time.Duration
	ExecuteThreshold  float64
	SafeCategories    []string
}

type DeviceSimConfig struct {
	DeviceID        string
	DeviceType      string
	Room            string
	OwnerID         string
	ReportInterval  time.Duration
	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	APIBaseURL      string
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := ServerConfig{
		HTTPAddr:          getenvDefault("HEARTH_HTTP_ADDR", ":9020"),
		DBDSN:             os.Getenv("DB_DSN"),
		MQTTBrokerURL:     getenvDefault("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:      getenvDefault("HEARTH_MQTT_CLIENT_ID", "hearth-server"),
		MQTTUsername:      os.Getenv("MQTT_USERNAME"),
		MQTTPassword:      os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix:   getenvDefault("MQTT_TOPIC_PREFIX", "hearth"),
		CommandTimeout:    time.Duration(getenvIntDefault("COMMAND_TIMEOUT_SECONDS", 8)) * time.Second,
		SceneModelBaseURL: strings.TrimRight(os.Getenv("SCENE_MODEL_BASE_URL"), "/"),
		SceneModelTimeout: time.Duration(getenvIntDefault("SCENE_MODEL_TIMEOUT_SECONDS", 3)) * time.Second,
		ExecuteThreshold:  getenvFloatDefault("EXECUTE_THRESHOLD", 0.8),
		SafeCategories:    splitList(getenvDefault("SAFE_CATEGORIES", "turn_on,turn_off,set_value")),
	}

	if cfg.DBDSN == "" {
		return ServerConfig{}, fmt.Errorf("DB_DSN is required")
	}
	if cfg.ExecuteThreshold <= 0 || cfg.ExecuteThreshold > 1 {
		return ServerConfig{}, fmt.Errorf("EXECUTE_THRESHOLD must be in (0, 1]")
	}

	return cfg, nil
}

func LoadDeviceSimConfig() DeviceSimConfig {
	deviceID := getenvDefault("SIM_DEVICE_ID", "sim-humidifier-01")
	return DeviceSimConfig{
		DeviceID:        deviceID,
		DeviceType:      getenvDefault("SIM_DEVICE_TYPE", "humidifier"),
		Room:            getenvDefault("SIM_DEVICE_ROOM", "客厅"),
		OwnerID:         getenvDefault("SIM_OWNER_ID", "demo-user"),
		ReportInterval:  time.Duration(getenvIntDefault("SIM_REPORT_INTERVAL_SECONDS", 15)) * time.Second,
		MQTTBrokerURL:   getenvDefault("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:    getenvDefault("SIM_MQTT_CLIENT_ID", "device-sim-"+deviceID),
		MQTTUsername:    os.Getenv("MQTT_USERNAME"),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix: getenvDefault("MQTT_TOPIC_PREFIX", "hearth"),
		APIBaseURL:      getenvDefault("HEARTH_API_BASE_URL", "http://localhost:9020"),
	}
}

func getenvDefault(key, val string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return val
}

func getenvIntDefault(key string, val int) int {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return val
	}
	return n
}

func getenvFloatDefault(key string, val float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return val
	}
	return f
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
