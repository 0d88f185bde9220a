package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/miere/malka/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescriptorFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "descriptors.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDescriptorsAppliesDefaults(t *testing.T) {
	path := writeDescriptorFile(t, `[
		{"topic_name":"user.delete","target_functions":["user_deleted"]},
		{"topic_name":"user.update","topic_number_of_consumers":2,"target_functions":["user_updated"]}
	]`)

	descriptors, err := LoadDescriptors([]string{path})
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	assert.Equal(t, 1, descriptors[0].TopicNumberOfConsumers)
	assert.Equal(t, defaultTopicMaxBufferSize, descriptors[0].TopicMaxBufferSize)
	assert.Equal(t, defaultTopicMaxBufferAwaitTimeMs, descriptors[0].TopicMaxBufferAwaitTimeMs)

	assert.Equal(t, 2, descriptors[1].TopicNumberOfConsumers)
}

func TestLoadDescriptorsRejectsMissingTargetFunctions(t *testing.T) {
	path := writeDescriptorFile(t, `[{"topic_name":"user.delete"}]`)

	_, err := LoadDescriptors([]string{path})
	assert.Error(t, err)
}

func TestLoadDescriptorsRejectsNoFiles(t *testing.T) {
	_, err := LoadDescriptors(nil)
	assert.ErrorIs(t, err, errs.ErrInvalidParameters)
}
