package coordinator

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// loadInstanceUUID reads the bare UUID from path, creating the file with
// a freshly generated UUID if it does not yet exist. The file never
// stores the PID — that is appended fresh on every process start.
func loadInstanceUUID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return parseStoredUUID(strings.TrimSpace(string(data)))
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("read instance id file: %w", err)
	}

	id := uuid.NewString()
	if werr := os.WriteFile(path, []byte(id), 0644); werr != nil {
		return "", fmt.Errorf("write instance id file: %w", werr)
	}
	return id, nil
}

// parseStoredUUID accepts either a bare UUID (4 hyphens) or a previously
// composed UUID-PID id (5 hyphens, PID as the trailing segment) and
// returns just the UUID part.
func parseStoredUUID(raw string) (string, error) {
	hyphens := strings.Count(raw, "-")
	switch hyphens {
	case 4:
		return raw, nil
	case 5:
		idx := strings.LastIndex(raw, "-")
		return raw[:idx], nil
	default:
		return "", fmt.Errorf("malformed instance id file contents: %q", raw)
	}
}

// newInstanceID composes the UUID-PID identity used as the coordinator's
// local id everywhere in the election protocol.
func newInstanceID(instanceIDFile string) (string, error) {
	base, err := loadInstanceUUID(instanceIDFile)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d", base, os.Getpid()), nil
}
