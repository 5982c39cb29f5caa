package imageio

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func gradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x*16 + y)})
		}
	}
	return img
}

func TestSaveLoadGray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out", "img.png")
	src := gradient(8, 4)

	require.NoError(t, Save(path, src))
	got, err := Load(path)
	require.NoError(t, err)

	gray, ok := got.(*image.Gray)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, src.Pix, gray.Pix)
}

func TestSaveKeepsNameWithoutTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(filepath.Join(dir, "photo.jpg"), gradient(2, 2)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "photo.jpg", entries[0].Name())
}

func TestSaveFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.png")

	err := Save(path, image.NewGray(image.Rect(0, 0, 0, 0)))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadBMP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.bmp")
	f, err := os.Create(path)
	require.NoError(t, err)
	src := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	require.NoError(t, bmp.Encode(f, src))
	require.NoError(t, f.Close())

	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 3), img.Bounds())
}

func TestLoadErrorNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notes.txt")
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".b.jpg.tmp-123"), nil, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	names, err := ListFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.png", "b.jpg"}, names)

	_, err = ListFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
