// Package kvstore is a namespaced, JSON-transparent wrapper around a persistent string map.
//
// Values that are strings, booleans or numbers are stored literally; everything else is stored
// as JSON. Reads parse JSON when they can and fall back to the raw string. No method returns an
// error: failures are logged and reported as false or the caller's default.
package kvstore

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// Store is the namespaced view over a Backend
type Store struct {
	backend   Backend
	namespace string
	logger    *slog.Logger
}

// New creates a Store whose keys are all prefixed with namespace
func New(backend Backend, namespace string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:   backend,
		namespace: namespace,
		logger:    logger.With("component", "kvstore"),
	}
}

func (s *Store) key(k string) string { return s.namespace + k }

// Get returns the parsed JSON value for key, the raw string when it is not JSON, or def when absent.
func (s *Store) Get(key string, def any) any {
	raw, ok := s.GetString(key)
	if !ok {
		return def
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// GetInto decodes the stored value for key into dst and reports whether it was found.
// A plain string value decodes into a *string destination.
func (s *Store) GetInto(key string, dst any) bool {
	raw, ok := s.GetString(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		if sp, isString := dst.(*string); isString {
			*sp = raw
			return true
		}
		s.logger.Warn("failed to decode value", "key", key, "error", err)
		return false
	}
	return true
}

// GetString returns the raw stored string for key
func (s *Store) GetString(key string) (string, bool) {
	raw, ok, err := s.backend.Get(s.key(key))
	if err != nil {
		s.logger.Error("failed to read key", "key", key, "error", err)
		return "", false
	}
	return raw, ok
}

// Set stores value under key and reports success
func (s *Store) Set(key string, value any) bool {
	raw, err := encode(value)
	if err != nil {
		s.logger.Error("failed to serialize value", "key", key, "error", err)
		return false
	}
	if err := s.backend.Set(s.key(key), raw); err != nil {
		s.logger.Error("failed to write key", "key", key, "error", err)
		return false
	}
	return true
}

// Remove deletes key and reports success
func (s *Store) Remove(key string) bool {
	if err := s.backend.Remove(s.key(key)); err != nil {
		s.logger.Error("failed to remove key", "key", key, "error", err)
		return false
	}
	return true
}

// Has reports whether key is present
func (s *Store) Has(key string) bool {
	_, ok := s.GetString(key)
	return ok
}

// Clear removes every key in the namespace and returns how many were removed.
// Without confirmation it only logs a warning.
func (s *Store) Clear(confirmed bool) int {
	if !confirmed {
		s.logger.Warn("refusing to clear store without confirmation", "namespace", s.namespace)
		return 0
	}
	keys, err := s.backend.Keys()
	if err != nil {
		s.logger.Error("failed to list keys", "error", err)
		return 0
	}
	removed := 0
	for _, k := range keys {
		if !strings.HasPrefix(k, s.namespace) {
			continue
		}
		if err := s.backend.Remove(k); err != nil {
			s.logger.Error("failed to remove key", "key", k, "error", err)
			continue
		}
		removed++
	}
	s.logger.Info("cleared store", "namespace", s.namespace, "removed", removed)
	return removed
}

// ProfileKey composes the key used for a profile-scoped entry
func ProfileKey(profileKey, key string) string {
	return profileKey + "-" + key
}

func (s *Store) GetForProfile(profileKey, key string, def any) any {
	return s.Get(ProfileKey(profileKey, key), def)
}

func (s *Store) GetForProfileInto(profileKey, key string, dst any) bool {
	return s.GetInto(ProfileKey(profileKey, key), dst)
}

func (s *Store) SetForProfile(profileKey, key string, value any) bool {
	return s.Set(ProfileKey(profileKey, key), value)
}

func (s *Store) RemoveForProfile(profileKey, key string) bool {
	return s.Remove(ProfileKey(profileKey, key))
}

// GetProfileKeys lists the key suffixes stored for profileKey, sorted
func (s *Store) GetProfileKeys(profileKey string) []string {
	keys, err := s.backend.Keys()
	if err != nil {
		s.logger.Error("failed to list keys", "error", err)
		return nil
	}
	prefix := s.key(profileKey + "-")
	var out []string
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(out)
	return out
}

func encode(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
