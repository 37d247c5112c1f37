package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"hearth/internal/config"
	"hearth/internal/convo"
	"hearth/internal/db"
	"hearth/internal/decision"
	"hearth/internal/domain"
	"hearth/internal/gateway"
	"hearth/internal/intent"
	"hearth/internal/match"
	"hearth/internal/pipeline"
	"hearth/internal/registry"
	"hearth/internal/scene"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Error("connect db failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Error("migrate db failed", "error", err)
		os.Exit(1)
	}

	devices := registry.New(logger)
	if err := rehydrateDevices(ctx, store, devices); err != nil {
		logger.Error("load devices failed", "error", err)
		os.Exit(1)
	}

	devices.AddStatusListener(func(deviceID string, state map[string]any) {
		dev, ok := devices.Get(deviceID)
		if !ok {
			return
		}
		if err := store.UpdateDeviceState(context.Background(), deviceID, string(dev.Status), state, dev.LastSeen); err != nil {
			logger.Warn("device state persist failed", "device_id", deviceID, "error", err)
		}
	})

	hub := gateway.NewHub(gateway.HubConfig{
		BrokerURL:      cfg.MQTTBrokerURL,
		ClientID:       cfg.MQTTClientID,
		Username:       cfg.MQTTUsername,
		Password:       cfg.MQTTPassword,
		TopicPrefix:    cfg.MQTTTopicPrefix,
		CommandTimeout: cfg.CommandTimeout,
	}, devices, store, logger)
	if err := hub.Start(ctx); err != nil {
		logger.Error("start mqtt hub failed", "error", err)
		os.Exit(1)
	}

	var sceneModel scene.Model
	if cfg.SceneModelBaseURL != "" {
		sceneModel = scene.NewHTTPModel(cfg.SceneModelBaseURL, cfg.SceneModelTimeout)
	}

	safeCategories := make(map[string]bool, len(cfg.SafeCategories))
	for _, c := range cfg.SafeCategories {
		safeCategories[c] = true
	}

	svc := pipeline.New(
		scene.NewClassifier(sceneModel, logger),
		intent.NewResolver(),
		match.New(devices, nil),
		decision.New(decision.Config{
			ExecuteThreshold: cfg.ExecuteThreshold,
			SafeCategories:   safeCategories,
		}, logger),
		convo.NewStore(),
		devices,
		nil,
		store,
		logger,
	)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Post("/v1/turn", func(w http.ResponseWriter, req *http.Request) {
		var turnReq domain.TurnRequest
		if err := json.NewDecoder(req.Body).Decode(&turnReq); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
			return
		}
		if turnReq.UserID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id is required"})
			return
		}
		result, err := svc.HandleTurn(req.Context(), turnReq)
		if err != nil {
			logger.Error("turn failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if result.Decision.ResponseText != "" {
			if err := hub.PublishResponse(turnReq.UserID, result.Decision.ResponseText); err != nil {
				logger.Warn("response publish failed", "user", turnReq.UserID, "error", err)
			}
		}
		writeJSON(w, http.StatusOK, result)
	})

	r.Post("/v1/turn/confirm", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.UserID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id is required"})
			return
		}
		res, found, err := svc.ConfirmPending(req.Context(), body.UserID)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
			return
		}
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "no pending action"})
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Get("/v1/turns", func(w http.ResponseWriter, req *http.Request) {
		userID := req.URL.Query().Get("user_id")
		if userID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id is required"})
			return
		}
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		turns, err := store.RecentTurns(req.Context(), userID, limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
	})

	r.Get("/v1/turns/{turnID}", func(w http.ResponseWriter, req *http.Request) {
		result, err := store.GetTurn(req.Context(), chi.URLParam(req, "turnID"))
		if errors.Is(err, db.ErrTurnNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "turn not found"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	r.Get("/v1/users/{userID}/context", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"entries": svc.History(chi.URLParam(req, "userID"))})
	})

	r.Delete("/v1/users/{userID}/context", func(w http.ResponseWriter, req *http.Request) {
		svc.ClearContext(chi.URLParam(req, "userID"))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1/devices", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				OwnerID string              `json:"owner_id"`
				Device  registry.DeviceInfo `json:"device"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
				return
			}
			if body.OwnerID == "" {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "owner_id is required"})
				return
			}
			dev, err := devices.Register(body.Device, body.OwnerID)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
				return
			}
			if err := store.UpsertDevice(req.Context(), dev); err != nil {
				logger.Warn("device persist failed", "device_id", dev.DeviceID, "error", err)
			}
			writeJSON(w, http.StatusCreated, dev)
		})

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			ownerID := req.URL.Query().Get("owner_id")
			if ownerID == "" {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "owner_id is required"})
				return
			}
			var list []registry.Device
			switch {
			case req.URL.Query().Get("type") != "":
				list = devices.ListByType(ownerID, req.URL.Query().Get("type"))
			case req.URL.Query().Get("room") != "":
				list = devices.ListByRoom(ownerID, req.URL.Query().Get("room"))
			default:
				list = devices.ListByOwner(ownerID)
			}
			writeJSON(w, http.StatusOK, map[string]any{"devices": list})
		})

		r.Get("/summary", func(w http.ResponseWriter, req *http.Request) {
			ownerID := req.URL.Query().Get("owner_id")
			if ownerID == "" {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "owner_id is required"})
				return
			}
			writeJSON(w, http.StatusOK, devices.Summary(ownerID))
		})

		r.Get("/{deviceID}", func(w http.ResponseWriter, req *http.Request) {
			dev, ok := devices.Get(chi.URLParam(req, "deviceID"))
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]any{"error": "device not found"})
				return
			}
			writeJSON(w, http.StatusOK, dev)
		})

		r.Delete("/{deviceID}", func(w http.ResponseWriter, req *http.Request) {
			deviceID := chi.URLParam(req, "deviceID")
			if !devices.Unregister(deviceID) {
				writeJSON(w, http.StatusNotFound, map[string]any{"error": "device not found"})
				return
			}
			if err := store.DeleteDevice(req.Context(), deviceID); err != nil {
				logger.Warn("device delete persist failed", "device_id", deviceID, "error", err)
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})

		r.Post("/{deviceID}/command", func(w http.ResponseWriter, req *http.Request) {
			deviceID := chi.URLParam(req, "deviceID")
			var cmd domain.CommandRequest
			if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
				return
			}
			if cmd.CommandID == "" {
				cmd.CommandID = uuid.NewString()
			}
			if err := store.SaveCommand(req.Context(), cmd.CommandID, deviceID, cmd.Action, cmd.Properties); err != nil {
				logger.Warn("command persist failed", "command_id", cmd.CommandID, "error", err)
			}
			res, err := devices.SendCommand(req.Context(), deviceID, cmd)
			if err != nil {
				if uerr := store.UpdateCommandStatus(req.Context(), cmd.CommandID, "failed"); uerr != nil {
					logger.Warn("command status persist failed", "command_id", cmd.CommandID, "error", uerr)
				}
				writeJSON(w, commandErrorStatus(err), map[string]any{"error": err.Error()})
				return
			}
			if uerr := store.UpdateCommandStatus(req.Context(), cmd.CommandID, res.Status); uerr != nil {
				logger.Warn("command status persist failed", "command_id", cmd.CommandID, "error", uerr)
			}
			writeJSON(w, http.StatusOK, res)
		})

		r.Post("/{deviceID}/status", func(w http.ResponseWriter, req *http.Request) {
			deviceID := chi.URLParam(req, "deviceID")
			var report domain.StatusReport
			if err := json.NewDecoder(req.Body).Decode(&report); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
				return
			}
			devices.UpdateStatus(deviceID, report)
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("hearth server started", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}

func rehydrateDevices(ctx context.Context, store *db.Store, devices *registry.Registry) error {
	stored, err := store.LoadDevices(ctx)
	if err != nil {
		return err
	}
	for _, sd := range stored {
		if _, err := devices.Register(sd.Info, sd.OwnerID); err != nil {
			return err
		}
		online := strings.EqualFold(sd.Status, "online")
		devices.UpdateStatus(sd.DeviceID, domain.StatusReport{Online: &online, Status: sd.CurrentState})
	}
	return nil
}

func commandErrorStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDeviceOffline):
		return http.StatusConflict
	default:
		var invalid *registry.InvalidCommandError
		if errors.As(err, &invalid) {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
