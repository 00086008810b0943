package settings

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ideaspark/ideaspark/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// defaultRefreshInterval is how often the snapshot is reloaded from the DB.
const defaultRefreshInterval = time.Minute

// Store caches settings rows and refreshes them in the background.
type Store struct {
	db       *gorm.DB
	interval time.Duration

	mu     sync.RWMutex
	values map[string]json.RawMessage
}

// NewStore constructs a settings store and loads the initial snapshot.
func NewStore(db *gorm.DB) (*Store, error) {
	s := &Store{
		db:       db,
		interval: defaultRefreshInterval,
		values:   map[string]json.RawMessage{},
	}
	if err := s.Reload(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Start runs the refresh loop in the background.
func (s *Store) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
}

func (s *Store) run(ctx context.Context) {
	interval := s.interval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				log.WithError(err).Warn("settings: refresh failed")
			}
		}
	}
}

// Reload replaces the snapshot with the current settings rows.
func (s *Store) Reload(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	var rows []models.Setting
	if errFind := s.db.WithContext(ctx).Find(&rows).Error; errFind != nil {
		return errFind
	}
	next := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		next[key] = json.RawMessage(row.Value)
	}
	s.mu.Lock()
	s.values = next
	s.mu.Unlock()
	return nil
}

// Value returns the raw JSON value for a key.
func (s *Store) Value(key string) (json.RawMessage, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.values[key]
	return raw, ok
}

// Int returns an integer setting, falling back to def when missing or invalid.
func (s *Store) Int(key string, def int) int {
	raw, ok := s.Value(key)
	if !ok {
		return def
	}
	if parsed, okParse := parseNonNegativeInt(raw); okParse {
		return parsed
	}
	return def
}

// Bool returns a boolean setting, falling back to def when missing or invalid.
func (s *Store) Bool(key string, def bool) bool {
	raw, ok := s.Value(key)
	if !ok {
		return def
	}
	if parsed, okParse := parseBool(raw); okParse {
		return parsed
	}
	return def
}

// String returns a string setting, falling back to def when missing or invalid.
func (s *Store) String(key string, def string) string {
	raw, ok := s.Value(key)
	if !ok {
		return def
	}
	if parsed, okParse := parseString(raw); okParse {
		return parsed
	}
	return def
}

func parseBool(raw json.RawMessage) (bool, bool) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return false, false
	}
	var parsedBool bool
	if errUnmarshalBool := json.Unmarshal(raw, &parsedBool); errUnmarshalBool == nil {
		return parsedBool, true
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		switch strings.ToLower(strings.TrimSpace(parsedString)) {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		}
	}
	return false, false
}

func parseString(raw json.RawMessage) (string, bool) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return "", false
	}
	var parsedString string
	if errUnmarshal := json.Unmarshal(raw, &parsedString); errUnmarshal == nil {
		return strings.TrimSpace(parsedString), true
	}
	return "", false
}

func parseNonNegativeInt(raw json.RawMessage) (int, bool) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return 0, false
	}
	var parsedInt int
	if errUnmarshalInt := json.Unmarshal(raw, &parsedInt); errUnmarshalInt == nil {
		return parsedInt, parsedInt >= 0
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		if errParse != nil {
			return 0, false
		}
		return parsed, parsed >= 0
	}
	return 0, false
}
