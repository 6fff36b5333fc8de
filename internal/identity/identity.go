package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akash1114/flowbuddy-schedule/internal/state"
)

type record struct {
	DeviceID  string `json:"deviceId"`
	CreatedAt string `json:"createdAt"`
}

// EnsureDeviceID returns the stable per-device user identifier, generating
// and persisting one on first use. A missing or corrupt identity file is
// treated as absent and regenerated.
func EnsureDeviceID(path string) (string, error) {
	if existing := loadDeviceID(path); existing != "" {
		return existing, nil
	}

	id := uuid.NewString()
	payload, err := json.MarshalIndent(record{
		DeviceID:  id,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal identity: %w", err)
	}

	if err := state.WriteFileAtomically(path, append(payload, '\n')); err != nil {
		return "", fmt.Errorf("persist identity: %w", err)
	}
	return id, nil
}

func loadDeviceID(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	var stored record
	if err := json.Unmarshal(raw, &stored); err != nil {
		return ""
	}
	return strings.TrimSpace(stored.DeviceID)
}
