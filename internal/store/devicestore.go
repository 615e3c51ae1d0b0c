// Package store persists the kiosk's local identity and last assignment in a
// BoltDB file so a device survives restarts without re-registering.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

const (
	dbFileName   = "slidekiosk.db"
	deviceBucket = "Device"
	deviceKey    = "identity"
)

// ErrNoIdentity is returned when the store holds no saved device identity.
var ErrNoIdentity = errors.New("store: no device identity saved")

// Identity is the locally persisted device record.
type Identity struct {
	DeviceID       string    `json:"deviceId"`
	Name           string    `json:"name"`
	RegisteredAt   time.Time `json:"registeredAt"`
	PresentationID string    `json:"presentationId,omitempty"`
}

// DeviceStore manages the identity database file.
type DeviceStore struct {
	db  *bolt.DB
	log zerolog.Logger
}

// Open creates or opens the identity database under dbDir. An empty dbDir
// falls back to the user config directory.
func Open(dbDir string, log zerolog.Logger) (*DeviceStore, error) {
	if dbDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			dbDir = "."
		} else {
			dbDir = filepath.Join(configDir, "slidekiosk")
		}
	}
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", dbDir, err)
	}

	dbPath := filepath.Join(dbDir, dbFileName)
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening device store %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(deviceBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket %s: %w", deviceBucket, err)
	}

	log.Debug().Str("path", dbPath).Msg("device store opened")
	return &DeviceStore{db: db, log: log.With().Str("component", "store").Logger()}, nil
}

// Close closes the underlying database file.
func (s *DeviceStore) Close() error {
	return s.db.Close()
}

// Save writes the device identity, replacing any previous record.
func (s *DeviceStore) Save(id Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(deviceBucket)).Put([]byte(deviceKey), data)
	})
}

// Load reads the saved device identity. Returns ErrNoIdentity when the
// device has never registered.
func (s *DeviceStore) Load() (Identity, error) {
	var id Identity
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(deviceBucket)).Get([]byte(deviceKey))
		if data == nil {
			return ErrNoIdentity
		}
		return json.Unmarshal(data, &id)
	})
	return id, err
}

// SetAssignment updates only the remembered presentation assignment.
func (s *DeviceStore) SetAssignment(presentationID string) error {
	id, err := s.Load()
	if err != nil {
		return err
	}
	id.PresentationID = presentationID
	return s.Save(id)
}
