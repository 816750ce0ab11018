package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600)
	require.NoError(t, err)
}

func TestNewConfigStore(t *testing.T) {
	t.Run("creates the store under the base dir", func(t *testing.T) {
		dir := t.TempDir()

		store, err := NewConfigStore(dir)

		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
	})

	t.Run("creates nested base dirs", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "deep", "nested")

		store, err := NewConfigStore(dir)

		require.NoError(t, err)
		require.NotNil(t, store)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("missing config file starts empty", func(t *testing.T) {
		store, err := NewConfigStore(t.TempDir())

		require.NoError(t, err)
		_, ok := store.Get("auth.tokens")
		assert.False(t, ok)
	})

	t.Run("corrupted config file fails", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "this is not TOML {{{[[")

		store, err := NewConfigStore(dir)

		assert.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("unwritable base dir fails", func(t *testing.T) {
		store, err := NewConfigStore("/dev/null/cannot/create")

		assert.Error(t, err)
		assert.Nil(t, store)
	})
}

func TestConfigStore_ChroniclerKeys(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[auth]
tokens = ["ghp_aaa", "ghp_bbb"]

[archive]
path = "/var/lib/chronicler/archives"

[client]
max_retries = 5
sleep_time = "45s"
sleep_for_rate = true
min_rate_to_sleep = 25
`)

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	t.Run("nested tables flatten to dot notation", func(t *testing.T) {
		assert.Equal(t, []string{"ghp_aaa", "ghp_bbb"}, store.GetStringSlice("auth.tokens"))
		assert.Equal(t, "/var/lib/chronicler/archives", store.GetString("archive.path"))
		assert.Equal(t, 5, store.GetInt("client.max_retries"))
		assert.Equal(t, 45*time.Second, store.GetDuration("client.sleep_time"))
		assert.True(t, store.GetBool("client.sleep_for_rate"))
		assert.Equal(t, 25, store.GetInt("client.min_rate_to_sleep"))
	})

	t.Run("missing keys return zero values", func(t *testing.T) {
		assert.Empty(t, store.GetString("archive.nope"))
		assert.Zero(t, store.GetInt("client.nope"))
		assert.False(t, store.GetBool("client.nope"))
		assert.Nil(t, store.GetStringSlice("auth.nope"))
		assert.Zero(t, store.GetDuration("client.nope"))
	})

	t.Run("mistyped values return zero values", func(t *testing.T) {
		assert.Empty(t, store.GetString("client.max_retries"))
		assert.Zero(t, store.GetInt("archive.path"))
		assert.False(t, store.GetBool("archive.path"))
		assert.Nil(t, store.GetStringSlice("archive.path"))
		assert.Zero(t, store.GetDuration("archive.path"), "non-duration strings do not parse")
	})
}

func TestConfigStore_SetAndPersist(t *testing.T) {
	t.Run("values survive a reload", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewConfigStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.Set("archive.path", "/tmp/archives"))
		require.NoError(t, store.Set("client.max_retries", 7))
		require.NoError(t, store.Set("client.sleep_for_rate", true))

		reloaded, err := NewConfigStore(dir)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/archives", reloaded.GetString("archive.path"))
		assert.Equal(t, 7, reloaded.GetInt("client.max_retries"))
		assert.True(t, reloaded.GetBool("client.sleep_for_rate"))
	})

	t.Run("set overwrites", func(t *testing.T) {
		store, err := NewConfigStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Set("archive.path", "/first"))
		require.NoError(t, store.Set("archive.path", "/second"))

		assert.Equal(t, "/second", store.GetString("archive.path"))
	})

	t.Run("file keeps restricted permissions", func(t *testing.T) {
		store, err := NewConfigStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Set("auth.tokens", []string{"ghp_secret"}))

		info, err := os.Stat(store.Path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("unmarshalable values fail", func(t *testing.T) {
		store, err := NewConfigStore(t.TempDir())
		require.NoError(t, err)

		assert.Error(t, store.Set("bad", make(chan int)))
	})
}

func TestConfigStore_Load(t *testing.T) {
	t.Run("comment-only file loads empty", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "# nothing configured yet\n")

		store, err := NewConfigStore(dir)

		require.NoError(t, err)
		_, ok := store.Get("auth.tokens")
		assert.False(t, ok)
	})

	t.Run("reload picks up external edits", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewConfigStore(dir)
		require.NoError(t, err)

		writeConfig(t, dir, "[client]\nmax_retries = 9\n")
		require.NoError(t, store.Load())

		assert.Equal(t, 9, store.GetInt("client.max_retries"))
	})

	t.Run("corrupted file fails the reload", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewConfigStore(dir)
		require.NoError(t, err)

		writeConfig(t, dir, "][}{ not toml")

		assert.Error(t, store.Load())
	})
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			key := "client.key" + string(rune('0'+id))
			_ = store.Set(key, id)
			_ = store.GetInt(key)
			_ = store.GetString(key)
			_, _ = store.Get(key)
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
