package gcs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "contest-artifacts"})
	require.Error(t, err)

	_, err = Open(context.Background(), Config{})
	require.Error(t, err)

	var store *BlobStore
	require.NoError(t, store.Close())
}
