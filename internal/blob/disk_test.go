package blob_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/PhotoFlow/internal/blob"
)

func TestDiskSaveOpenRemove(t *testing.T) {
	t.Parallel()
	d, err := blob.NewDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	content := "not really a png"
	require.NoError(t, d.Save(ctx, "cat-1.png", strings.NewReader(content), int64(len(content)), "image/png"))

	obj, err := d.Open(ctx, "cat-1.png")
	require.NoError(t, err)
	got, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.NoError(t, obj.Close())
	assert.Equal(t, content, string(got))

	require.NoError(t, d.Remove(ctx, "cat-1.png"))
	_, err = d.Open(ctx, "cat-1.png")
	assert.ErrorIs(t, err, blob.ErrNotFound)

	// Removing twice is fine.
	assert.NoError(t, d.Remove(ctx, "cat-1.png"))
}

func TestDiskIgnoresPathComponents(t *testing.T) {
	t.Parallel()
	d, err := blob.NewDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.Save(ctx, "../../escape.png", strings.NewReader("x"), 1, "image/png"))
	// The object is reachable by its base name; the traversal went nowhere.
	obj, err := d.Open(ctx, "escape.png")
	require.NoError(t, err)
	require.NoError(t, obj.Close())
}
