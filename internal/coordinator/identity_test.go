package coordinator

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadInstanceUUID_CreatesFileWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instance.id")

	id, err := loadInstanceUUID(path)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(id, "-"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, id, string(data))
}

func TestLoadInstanceUUID_ReusesExistingBareUUID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instance.id")
	require.NoError(t, os.WriteFile(path, []byte("11111111-2222-3333-4444-555555555555"), 0644))

	id, err := loadInstanceUUID(path)
	require.NoError(t, err)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", id)
}

func TestLoadInstanceUUID_StripsTrailingPIDSegment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instance.id")
	require.NoError(t, os.WriteFile(path, []byte("11111111-2222-3333-4444-555555555555-9999"), 0644))

	id, err := loadInstanceUUID(path)
	require.NoError(t, err)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", id)
}

func TestParseStoredUUID_MalformedContentsErrors(t *testing.T) {
	_, err := parseStoredUUID("not-a-uuid-at-all")
	assert.Error(t, err)
}

func TestNewInstanceID_AppendsPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instance.id")

	id, err := newInstanceID(path)
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(id, "-"))
	assert.True(t, strings.HasSuffix(id, strconv.Itoa(os.Getpid())))
}
