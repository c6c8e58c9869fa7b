package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// deviceFileName under the user config dir.
const (
	deviceDirName  = "ghostatlas"
	deviceFileName = "device.json"
)

// DefaultAudioVolume for ambient narration playback.
const DefaultAudioVolume = 0.8

// deviceState is the persisted on-disk shape.
type deviceState struct {
	DeviceID    string  `json:"deviceId"`
	AudioVolume float64 `json:"audioVolume"`

	// Advisory local records. The server is authoritative; these only
	// let the UI grey out buttons without a round trip.
	RatedEncounters    []string `json:"ratedEncounters,omitempty"`
	VerifiedEncounters []string `json:"verifiedEncounters,omitempty"`
}

// DeviceStore persists the anonymous device identity and local
// preferences as a JSON file under the user config dir.
type DeviceStore struct {
	mu    sync.Mutex
	path  string
	state deviceState
}

// NewDeviceStore creates a store at the default config path.
func NewDeviceStore() (*DeviceStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	return NewDeviceStoreAt(filepath.Join(dir, deviceDirName, deviceFileName))
}

// NewDeviceStoreAt creates a store backed by the given file path.
func NewDeviceStoreAt(path string) (*DeviceStore, error) {
	s := &DeviceStore{
		path:  path,
		state: deviceState{AudioVolume: DefaultAudioVolume},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read device file: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("decode device file: %w", err)
	}
	return s, nil
}

// InitializeDeviceID returns the device ID, generating and persisting one
// on first call. Calling it again returns the same ID.
func (s *DeviceStore) InitializeDeviceID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.DeviceID != "" {
		return s.state.DeviceID, nil
	}
	s.state.DeviceID = uuid.New().String()
	if err := s.save(); err != nil {
		s.state.DeviceID = ""
		return "", err
	}
	return s.state.DeviceID, nil
}

// AudioVolume returns the stored narration volume.
func (s *DeviceStore) AudioVolume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AudioVolume
}

// SetAudioVolume stores the narration volume, clamped to [0, 1].
func (s *DeviceStore) SetAudioVolume(v float64) error {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.AudioVolume = v
	return s.save()
}

// MarkRated records locally that this device rated an encounter.
func (s *DeviceStore) MarkRated(encounterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if contains(s.state.RatedEncounters, encounterID) {
		return nil
	}
	s.state.RatedEncounters = append(s.state.RatedEncounters, encounterID)
	return s.save()
}

// HasRated reports the advisory local record of a past rating. The server
// remains authoritative; a cleared config dir resets this.
func (s *DeviceStore) HasRated(encounterID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return contains(s.state.RatedEncounters, encounterID)
}

// MarkVerified records locally that this device verified an encounter.
func (s *DeviceStore) MarkVerified(encounterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if contains(s.state.VerifiedEncounters, encounterID) {
		return nil
	}
	s.state.VerifiedEncounters = append(s.state.VerifiedEncounters, encounterID)
	return s.save()
}

// HasVerified reports the advisory local record of a past verification.
func (s *DeviceStore) HasVerified(encounterID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return contains(s.state.VerifiedEncounters, encounterID)
}

func (s *DeviceStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode device file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write device file: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
