package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage(t *testing.T) {
	tmpDir := t.TempDir()
	storage, err := NewLocalStorage(tmpDir)
	require.NoError(t, err)

	t.Run("SaveFile", func(t *testing.T) {
		content := []byte("jpeg bytes")
		filename, err := storage.SaveFile(bytes.NewReader(content), FileInfo{
			Filename:    "Frame_0005.JPG",
			ContentType: "image/jpeg",
			Size:        int64(len(content)),
		})
		require.NoError(t, err)
		assert.Equal(t, ".jpg", filepath.Ext(filename))

		saved, err := os.ReadFile(filepath.Join(tmpDir, filename))
		require.NoError(t, err)
		assert.Equal(t, content, saved)
	})

	t.Run("SaveFileDefaultExtension", func(t *testing.T) {
		filename, err := storage.SaveFile(bytes.NewReader([]byte("x")), FileInfo{Filename: "crop"})
		require.NoError(t, err)
		assert.Equal(t, ".jpg", filepath.Ext(filename))
	})

	t.Run("OpenAndReadFile", func(t *testing.T) {
		content := []byte("frame content")
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "frame-1.png"), content, 0644))

		file, err := storage.OpenFile("frame-1.png")
		require.NoError(t, err)
		defer file.Close()
		got, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, content, got)

		data, err := storage.ReadFile("frame-1.png")
		require.NoError(t, err)
		assert.Equal(t, content, data)

		_, err = storage.ReadFile("missing.png")
		assert.Error(t, err)
	})

	t.Run("DeleteFile", func(t *testing.T) {
		fullPath := filepath.Join(tmpDir, "delete-test.jpg")
		require.NoError(t, os.WriteFile(fullPath, []byte("test"), 0644))

		require.NoError(t, storage.DeleteFile("delete-test.jpg"))
		_, err := os.Stat(fullPath)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("PathTraversalPrevention", func(t *testing.T) {
		for _, p := range []string{"../../../etc/passwd", "/etc/passwd", ""} {
			_, err := storage.OpenFile(p)
			assert.ErrorIs(t, err, ErrInvalidPath, p)
			assert.ErrorIs(t, storage.DeleteFile(p), ErrInvalidPath, p)
			_, err = storage.ReadFile(p)
			assert.ErrorIs(t, err, ErrInvalidPath, p)
		}
	})
}
