package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFile_JSONArray(t *testing.T) {
	path := writeFile(t, `[{"resourceId":"a"}, {"resourceId":"b"}]`)

	records, err := NewFile(path).Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"resourceId":"a"}`, records[0])
	assert.JSONEq(t, `{"resourceId":"b"}`, records[1])
}

func TestFile_JSONLines(t *testing.T) {
	path := writeFile(t, "{\"resourceId\":\"a\"}\n\n{\"resourceId\":\"b\"}\n")

	records, err := NewFile(path).Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{`{"resourceId":"a"}`, `{"resourceId":"b"}`}, records)
}

func TestFile_Missing(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "nope.json")).Records(context.Background())
	assert.Error(t, err)
}

func TestFile_BadArray(t *testing.T) {
	path := writeFile(t, `[{"resourceId":"a"`)
	_, err := NewFile(path).Records(context.Background())
	assert.Error(t, err)
}
