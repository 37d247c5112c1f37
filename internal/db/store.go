package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hearth/internal/domain"
	"hearth/internal/registry"
)

var ErrTurnNotFound = errors.New("turn not found")

type Store struct {
	pool *pgxpool.Pool
}

// StoredDevice is a device row as persisted, used to re-hydrate the
// in-memory registry at startup.
type StoredDevice struct {
	DeviceID     string
	OwnerID      string
	Info         registry.DeviceInfo
	Status       string
	CurrentState map[string]any
	LastSeen     time.Time
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			device_id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			device_type TEXT NOT NULL,
			declaration JSONB NOT NULL,
			status TEXT NOT NULL DEFAULT 'unknown',
			current_state JSONB NOT NULL DEFAULT '{}'::jsonb,
			last_seen TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_devices_owner ON devices(owner_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			input_text TEXT NOT NULL,
			scene JSONB NOT NULL,
			intent JSONB NOT NULL,
			decision JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_user_created ON turns(user_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS commands (
			command_id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			action TEXT NOT NULL,
			params JSONB NOT NULL DEFAULT '{}'::jsonb,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_device_created ON commands(device_id, created_at);`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveTurn(ctx context.Context, userID string, result domain.TurnResult) error {
	sceneJSON, err := json.Marshal(result.Scene)
	if err != nil {
		return err
	}
	intentJSON, err := json.Marshal(result.Intent)
	if err != nil {
		return err
	}
	decisionJSON, err := json.Marshal(result.Decision)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO turns(turn_id, user_id, input_text, scene, intent, decision, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, result.TurnID, userID, result.InputText, sceneJSON, intentJSON, decisionJSON, result.Timestamp)
	return err
}

func (s *Store) GetTurn(ctx context.Context, turnID string) (domain.TurnResult, error) {
	var (
		result       domain.TurnResult
		userID       string
		sceneJSON    []byte
		intentJSON   []byte
		decisionJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT turn_id, user_id, input_text, scene, intent, decision, created_at
		FROM turns
		WHERE turn_id=$1
	`, turnID).Scan(&result.TurnID, &userID, &result.InputText, &sceneJSON, &intentJSON, &decisionJSON, &result.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TurnResult{}, ErrTurnNotFound
	}
	if err != nil {
		return domain.TurnResult{}, err
	}
	if err := json.Unmarshal(sceneJSON, &result.Scene); err != nil {
		return domain.TurnResult{}, err
	}
	if err := json.Unmarshal(intentJSON, &result.Intent); err != nil {
		return domain.TurnResult{}, err
	}
	if err := json.Unmarshal(decisionJSON, &result.Decision); err != nil {
		return domain.TurnResult{}, err
	}
	return result, nil
}

// RecentTurns returns the user's latest turns, newest first.
func (s *Store) RecentTurns(ctx context.Context, userID string, limit int) ([]domain.TurnResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT turn_id, input_text, scene, intent, decision, created_at
		FROM turns
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TurnResult
	for rows.Next() {
		var (
			result       domain.TurnResult
			sceneJSON    []byte
			intentJSON   []byte
			decisionJSON []byte
		)
		if err := rows.Scan(&result.TurnID, &result.InputText, &sceneJSON, &intentJSON, &decisionJSON, &result.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(sceneJSON, &result.Scene); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(intentJSON, &result.Intent); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(decisionJSON, &result.Decision); err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

func (s *Store) UpsertDevice(ctx context.Context, dev registry.Device) error {
	declaration, err := json.Marshal(registry.DeviceInfo{
		DeviceID:     dev.DeviceID,
		DeviceType:   dev.DeviceType,
		DeviceName:   dev.DeviceName,
		Manufacturer: dev.Manufacturer,
		Model:        dev.Model,
		Location:     dev.Location,
		Capabilities: capabilitySpecs(dev.Capabilities),
		Sensors:      dev.Sensors,
	})
	if err != nil {
		return err
	}
	stateJSON, err := json.Marshal(dev.CurrentState)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO devices(device_id, owner_id, device_type, declaration, status, current_state, last_seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (device_id)
		DO UPDATE SET owner_id = EXCLUDED.owner_id,
			device_type = EXCLUDED.device_type,
			declaration = EXCLUDED.declaration,
			status = EXCLUDED.status,
			current_state = EXCLUDED.current_state,
			last_seen = EXCLUDED.last_seen;
	`, dev.DeviceID, dev.OwnerID, dev.DeviceType, declaration, string(dev.Status), stateJSON, dev.LastSeen, dev.CreatedAt)
	return err
}

func (s *Store) UpdateDeviceState(ctx context.Context, deviceID, status string, state map[string]any, seenAt time.Time) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE devices
		SET status = $2, current_state = $3, last_seen = $4
		WHERE device_id = $1
	`, deviceID, status, stateJSON, seenAt)
	return err
}

func (s *Store) DeleteDevice(ctx context.Context, deviceID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM devices WHERE device_id=$1`, deviceID)
	return err
}

// LoadDevices returns every persisted device in creation order.
func (s *Store) LoadDevices(ctx context.Context) ([]StoredDevice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT device_id, owner_id, declaration, status, current_state, COALESCE(last_seen, created_at)
		FROM devices
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredDevice
	for rows.Next() {
		var (
			dev             StoredDevice
			declarationJSON []byte
			stateJSON       []byte
		)
		if err := rows.Scan(&dev.DeviceID, &dev.OwnerID, &declarationJSON, &dev.Status, &stateJSON, &dev.LastSeen); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(declarationJSON, &dev.Info); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(stateJSON, &dev.CurrentState); err != nil {
			return nil, err
		}
		out = append(out, dev)
	}
	return out, rows.Err()
}

func (s *Store) SaveCommand(ctx context.Context, commandID, deviceID, action string, params map[string]any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}
	if params == nil {
		paramsJSON = []byte("{}")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO commands(command_id, device_id, action, params)
		VALUES ($1, $2, $3, $4)
	`, commandID, deviceID, action, paramsJSON)
	return err
}

func (s *Store) UpdateCommandStatus(ctx context.Context, commandID, status string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE commands
		SET status = $2, updated_at = NOW()
		WHERE command_id = $1
	`, commandID, status)
	return err
}

func capabilitySpecs(caps []registry.Capability) []registry.CapabilitySpec {
	out := make([]registry.CapabilitySpec, 0, len(caps))
	for _, c := range caps {
		readable, writable := c.Readable, c.Writable
		spec := registry.CapabilitySpec{
			Name:     c.Name,
			Kind:     string(c.Kind),
			Readable: &readable,
			Writable: &writable,
		}
		if c.Range != nil {
			r := *c.Range
			spec.Range = &r
		}
		if len(c.Values) > 0 {
			spec.Values = append([]string{}, c.Values...)
		}
		if c.ColorMode != "" {
			spec.ColorMode = c.ColorMode
		}
		out = append(out, spec)
	}
	return out
}
