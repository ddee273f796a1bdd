package cli

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepLink(t *testing.T) {
	assert.Equal(t, "https://t.me/quest_bot?start=q1", DeepLink("quest_bot", "q1"))
}

func TestWriteQRCodes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "codes")

	paths, err := writeQRCodes("quest_bot", []string{"q1", "q2"}, dir, 256)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "q1.png"), filepath.Join(dir, "q2.png")}, paths)

	f, err := os.Open(paths[0])
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestWriteQRCodesRejectsUnsafeIDs(t *testing.T) {
	_, err := writeQRCodes("quest_bot", []string{"q 1"}, t.TempDir(), 256)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start payload")
}
