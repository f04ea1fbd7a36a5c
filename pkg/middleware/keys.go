package middleware

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Permission is a capability granted to an API key
type Permission string

const (
	PermRead  Permission = "read"
	PermWrite Permission = "write"
	PermAdmin Permission = "admin"
)

// DemoReadOnlyKey is always present and may only read
const DemoReadOnlyKey = "demo-readonly-key"

// APIKey describes what a key may do
type APIKey struct {
	Name        string       `yaml:"name"`
	Permissions []Permission `yaml:"permissions"`
	// RateLimit is requests per hour
	RateLimit int `yaml:"rate_limit"`
}

// Has reports whether the key grants perm
func (k *APIKey) Has(perm Permission) bool {
	return slices.Contains(k.Permissions, perm)
}

// KeyStore holds the known API keys: the built-in ones plus any loaded from
// a key file. Safe for concurrent use; a reload swaps the file keys at once.
type KeyStore struct {
	mu       sync.RWMutex
	builtin  map[string]*APIKey
	fromFile map[string]*APIKey
}

// NewKeyStore returns the built-in keys: adminKey with full access at 1000
// requests per hour, and the demo read-only key at 100.
func NewKeyStore(adminKey string) *KeyStore {
	return &KeyStore{builtin: map[string]*APIKey{
		adminKey: {
			Name:        "Admin Key",
			Permissions: []Permission{PermRead, PermWrite, PermAdmin},
			RateLimit:   1000,
		},
		DemoReadOnlyKey: {
			Name:        "Demo Read Only",
			Permissions: []Permission{PermRead},
			RateLimit:   100,
		},
	}}
}

type keyFile struct {
	Keys []struct {
		Key    string `yaml:"key"`
		APIKey `yaml:",inline"`
	} `yaml:"keys"`
}

// LoadFile replaces the file keys with those listed in a YAML file:
//
//	keys:
//	  - key: reporting-7f3a
//	    name: Reporting
//	    permissions: [read]
//	    rate_limit: 500
//
// On any error the previously loaded keys stay in effect.
func (s *KeyStore) LoadFile(path string) error {
	keys, err := parseKeyFile(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.fromFile = keys
	s.mu.Unlock()
	return nil
}

func parseKeyFile(path string) (map[string]*APIKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read api keys file: %w", err)
	}

	var file keyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse api keys file: %w", err)
	}

	keys := make(map[string]*APIKey, len(file.Keys))
	for i, entry := range file.Keys {
		if entry.Key == "" {
			return nil, fmt.Errorf("api keys file: entry %d has no key", i)
		}
		for _, p := range entry.Permissions {
			if p != PermRead && p != PermWrite && p != PermAdmin {
				return nil, fmt.Errorf("api keys file: key %q has unknown permission %q", entry.Name, p)
			}
		}
		k := entry.APIKey
		if k.RateLimit <= 0 {
			k.RateLimit = 100
		}
		if k.Name == "" {
			k.Name = fmt.Sprintf("Key %d", i+1)
		}
		keys[entry.Key] = &k
	}
	return keys, nil
}

// Lookup returns the key definition, if any. File keys shadow built-in ones.
func (s *KeyStore) Lookup(key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k, ok := s.fromFile[key]; ok {
		return k, true
	}
	k, ok := s.builtin[key]
	return k, ok
}

// Len returns the number of distinct known keys
func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.fromFile)
	for key := range s.builtin {
		if _, shadowed := s.fromFile[key]; !shadowed {
			n++
		}
	}
	return n
}

// ClientID derives the rate limit identity of a raw key without storing the key
func ClientID(key string) string {
	sum := md5.Sum([]byte(key))
	return "key_" + hex.EncodeToString(sum[:])[:8]
}
