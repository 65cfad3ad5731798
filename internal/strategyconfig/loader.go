package strategyconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads YAML file and returns Config with raw bytes
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return cfg, data, nil
}

// Parse decodes and validates policy YAML. Omitted sections keep the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default() when the file does not exist
func LoadOrDefault(path string) (*Config, string, error) {
	cfg, _, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), "default", nil
	}
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Hash generates SHA256 hash from Config (canonical JSON)
// 주의: json.Marshal은 map 키를 정렬하므로 해시 재현성 보장
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// NewSnapshot creates a snapshot stamped on every run
func NewSnapshot(cfg *Config, source string) (*Snapshot, error) {
	hash, err := Hash(cfg)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		PolicyHash: hash,
		PolicyID:   cfg.Meta.PolicyID,
		Version:    cfg.Meta.Version,
		Source:     source,
		CreatedAt:  time.Now(),
	}, nil
}
