package persist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"codenerd/internal/persist"
)

func TestShardName_JoinsWithColon(t *testing.T) {
	assert.Equal(t, "mykg:edge", persist.ShardName("mykg", "edge"))
}

func TestFileNameFor_ReplacesColon(t *testing.T) {
	assert.Equal(t, "mykg_edge", persist.FileNameFor(persist.ShardName("mykg", "edge")))
}

func TestFileNameFor_HexEscapesUnsafeBytes(t *testing.T) {
	name := persist.FileNameFor(persist.ShardName("my kg", "edge/thing"))
	assert.NotContains(t, name, " ")
	assert.NotContains(t, name, "/")
}
