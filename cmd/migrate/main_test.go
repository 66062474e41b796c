package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCalculateChecksum はチェックサム計算のテスト
func TestCalculateChecksum(t *testing.T) {
	sum := calculateChecksum([]byte("CREATE TABLE t ();"))

	assert.Len(t, sum, 64)
	assert.Equal(t, sum, calculateChecksum([]byte("CREATE TABLE t ();")))
	assert.NotEqual(t, sum, calculateChecksum([]byte("CREATE TABLE u ();")))
}

// TestMigrationFiles はファイル名順に並ぶことのテスト
func TestMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644))
	}

	files, err := migrationFiles(dir)

	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "001_a.sql", filepath.Base(files[0]))
	assert.Equal(t, "002_b.sql", filepath.Base(files[1]))
}

// TestMigrationFiles_Repository はリポジトリのスキーマが読み込めることのテスト
func TestMigrationFiles_Repository(t *testing.T) {
	files, err := migrationFiles(filepath.Join("..", "..", "migrations"))

	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_create_stock_ledger.sql", filepath.Base(files[0]))
}
