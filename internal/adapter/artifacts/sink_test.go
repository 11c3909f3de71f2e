package artifacts

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_Put(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "out")
	d := NewDir(root)

	loc, err := d.Put(context.Background(), "site1.sum", strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "site1.sum"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestDir_PutFlattensPaths(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root)

	loc, err := d.Put(context.Background(), "../../escape.par", strings.NewReader("x"), 1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "escape.par"), loc)

	_, err = d.Put(context.Background(), "", strings.NewReader("x"), 1)
	assert.Error(t, err)
}

type recordingSink struct {
	loc  string
	got  map[string]string
	fail error
}

func (r *recordingSink) Put(_ context.Context, name string, body io.Reader, _ int64) (string, error) {
	if r.fail != nil {
		return "", r.fail
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if r.got == nil {
		r.got = map[string]string{}
	}
	r.got[name] = string(data)
	return r.loc + name, nil
}

func TestTee_FansOut(t *testing.T) {
	a := &recordingSink{loc: "a/"}
	b := &recordingSink{loc: "b/"}

	loc, err := Tee{a, b}.Put(context.Background(), "x.sum", strings.NewReader("body"), 4)
	require.NoError(t, err)
	assert.Equal(t, "a/x.sum", loc)
	assert.Equal(t, "body", a.got["x.sum"])
	assert.Equal(t, "body", b.got["x.sum"])
}

func TestTee_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingSink{loc: "a/"}
	b := &recordingSink{fail: boom}

	_, err := Tee{a, b}.Put(context.Background(), "x.sum", strings.NewReader("body"), 4)
	assert.ErrorIs(t, err, boom)
}

func TestTee_Empty(t *testing.T) {
	loc, err := Tee{}.Put(context.Background(), "x", strings.NewReader(""), 0)
	require.NoError(t, err)
	assert.Empty(t, loc)
}

func TestMinioConfig_Validate(t *testing.T) {
	ok := MinioConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "rhem"}
	assert.NoError(t, ok.Validate())

	withScheme := ok
	withScheme.Endpoint = "http://localhost:9000"
	assert.Error(t, withScheme.Validate())

	noBucket := ok
	noBucket.Bucket = ""
	assert.Error(t, noBucket.Validate())
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "runs/abc", ObjectPrefix("/runs/", "abc"))
	assert.Equal(t, "abc", ObjectPrefix("", "abc"))
	assert.Equal(t, "runs/abc/x.sum", ObjectKey("runs/abc", "x.sum"))
	assert.Equal(t, "x.sum", ObjectKey("", "x.sum"))
	assert.Equal(t, "text/plain; charset=utf-8", ContentType("site.sum"))
}
