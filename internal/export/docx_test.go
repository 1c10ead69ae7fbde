package export

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDOCX(t *testing.T) {
	markdown := "# Meeting Notes\n\nSome **important** discussion.\n\n- first point\n- second point\n\n1. step one\n"

	path, err := BuildDOCX("Weekly Sync", markdown)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	assert.Contains(t, path, ".docx")
}

func TestBuildDOCXEmptyContent(t *testing.T) {
	path, err := BuildDOCX("Empty", "")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })

	_, err = os.Stat(path)
	require.NoError(t, err)
}
