package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSourceInitializeParsesDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, `{"graph1":{"producer":{"type":"Producer","outputs":"frame"}}}`)

	var s Source
	require.NoError(t, s.Initialize(path))
	defer s.Reset()

	root := s.Root()
	graph := root.Get("graph1")
	require.True(t, graph.IsValid())
	assert := require.New(t)
	assert.Equal("Producer", graph.Get("producer").Get("type").String())
}

func TestModifiedFalseWithoutChange(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, `{"a":1}`)

	var s Source
	require.NoError(t, s.Initialize(path))
	defer s.Reset()

	require.False(t, s.Modified())
}

func TestModifiedTrueOnceAfterRewrite(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, `{"a":1}`)

	var s Source
	require.NoError(t, s.Initialize(path))
	defer s.Reset()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"a":2}`), 0o644))

	require.Eventually(t, func() bool {
		return s.Modified()
	}, 2*time.Second, 15*time.Millisecond)

	require.NoError(t, s.Reload())
	require.Equal(t, int64(2), s.Root().Get("a").Number())
}

func TestTokenArrayAccessors(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, `{"things":[{"x":0.2},{"x":0.9}]}`)

	var s Source
	require.NoError(t, s.Initialize(path))
	defer s.Reset()

	arr := s.Root().Get("things")
	require.True(t, arr.IsArray())
	require.Equal(t, 2, arr.Size())
	require.InDelta(t, 0.2, arr.Index(0).Get("x").Decimal(), 0.0001)
	require.InDelta(t, 0.9, arr.Index(1).Get("x").Decimal(), 0.0001)
}
