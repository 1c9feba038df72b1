package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestObjectKey_KeepsOnlyExtension(t *testing.T) {
	key := ObjectKey("/homework/", "../../etc/passwd.PDF")
	assert.True(t, strings.HasPrefix(key, "homework/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotContains(t, key, "..")
}

func TestLocal_PutAndDelete(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "http://cdn.test/uploads/", zap.NewNop())
	require.NoError(t, err)

	url, err := l.Put(context.Background(), "a/b/file.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.test/uploads/a/b/file.txt", url)

	data, err := os.ReadFile(filepath.Join(dir, "a", "b", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, l.Delete(context.Background(), "a/b/file.txt"))
	_, err = os.Stat(filepath.Join(dir, "a", "b", "file.txt"))
	assert.True(t, os.IsNotExist(err))

	// 重复删除不报错
	assert.NoError(t, l.Delete(context.Background(), "a/b/file.txt"))
}

func TestLocal_RejectsEscapingKey(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "http://cdn.test", zap.NewNop())
	require.NoError(t, err)

	_, err = l.Put(context.Background(), "../outside.txt", strings.NewReader("x"), 1, "text/plain")
	assert.Error(t, err)
}

// failingReader 先返回部分数据再报错
type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("connection reset")
}

func TestLocal_PutRemovesPartialFileOnReadError(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "http://cdn.test", zap.NewNop())
	require.NoError(t, err)

	_, err = l.Put(context.Background(), "a/broken.txt", &failingReader{}, 100, "text/plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	_, statErr := os.Stat(filepath.Join(dir, "a", "broken.txt"))
	assert.True(t, os.IsNotExist(statErr), "写入失败后不应留下文件")
}
