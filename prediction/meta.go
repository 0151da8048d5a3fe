package prediction

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// LogicVersion identifies the projection logic; the full model version string
// appends the training revision, e.g. "v3-clean-physiology.r4".
const LogicVersion = "v3-clean-physiology"

const defaultGlobalExponent = 1.06

// Meta is the persisted model state of the predictor: the logic version, a
// monotonically increasing training revision, and the globally fitted Riegel
// exponent used when no per-user or cohort signal is available.
type Meta struct {
	mu   sync.Mutex
	path string

	LogicVersion   string  `json:"logic_version"`
	TrainRevision  int     `json:"train_revision"`
	GlobalExponent float64 `json:"global_exponent"`
	Samples        int     `json:"samples"`
}

// LoadMeta reads model meta from path, creating it with defaults when absent
// or unreadable. The stored logic version is always overwritten with the
// compiled-in one.
func LoadMeta(path string) (*Meta, error) {
	m := &Meta{
		path:           path,
		LogicVersion:   LogicVersion,
		GlobalExponent: defaultGlobalExponent,
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, m); err != nil {
			m.TrainRevision = 0
			m.GlobalExponent = defaultGlobalExponent
		}
	}
	m.LogicVersion = LogicVersion
	if m.GlobalExponent < 1.0 || m.GlobalExponent > 1.25 {
		m.GlobalExponent = defaultGlobalExponent
	}

	if err := m.save(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Meta) save() error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to persist model meta: %w", err)
	}
	return nil
}

// Version composes the active model version string.
func (m *Meta) Version() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("%s.r%d", m.LogicVersion, m.TrainRevision)
}

// Exponent returns the current global Riegel exponent.
func (m *Meta) Exponent() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GlobalExponent
}

// RecordTraining stores a newly fitted exponent and bumps the revision.
func (m *Meta) RecordTraining(exponent float64, samples int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exponent >= 1.0 && exponent <= 1.25 {
		m.GlobalExponent = exponent
	}
	m.Samples = samples
	m.TrainRevision++
	return m.save()
}
