package config

import (
	"fmt"
	"strconv"
)

// KeyInfo is one displayable setting. Source is "env" when a BP_* variable
// overrides the file.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Source string
}

// ShowAll lists every non-secret setting of cfg in declaration order.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, describe(s, cfg))
	}
	return result
}

// Get returns the current value of one non-secret key.
func Get(cfg Config, key string) (KeyInfo, error) {
	s, err := lookupSpec(key)
	if err != nil {
		return KeyInfo{}, err
	}
	return describe(s, cfg), nil
}

func describe(s keySpec, cfg Config) KeyInfo {
	source := "config"
	if envSet(s.env) {
		source = "env"
	}
	return KeyInfo{
		Key:    s.key,
		EnvVar: s.env,
		Value:  fmt.Sprintf("%v", s.extract(cfg)),
		Source: source,
	}
}

// Path is the location of the config file.
func Path() string {
	return configFilePath()
}

// SetKey writes a non-secret key to the config file.
func SetKey(key, value string) error {
	return setKey(newFileBackend(configFilePath()), key, value)
}

// UnsetKey removes a key from the config file so its default applies again.
func UnsetKey(key string) error {
	return unsetKey(newFileBackend(configFilePath()), key)
}

func lookupSpec(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return keySpec{}, fmt.Errorf("%q is a secret; use environment variable %s", key, s.env)
		}
		return s, nil
	}
	return keySpec{}, fmt.Errorf("unknown config key: %q", key)
}

func setKey(b ConfigBackend, key, value string) error {
	s, err := lookupSpec(key)
	if err != nil {
		return err
	}
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		return b.SetInt(key, i)
	default:
		return b.SetString(key, value)
	}
}

func unsetKey(b ConfigBackend, key string) error {
	if _, err := lookupSpec(key); err != nil {
		return err
	}
	return b.Delete(key)
}

// ValidKeys lists the keys accepted by SetKey.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
