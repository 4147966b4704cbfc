package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCachedSystemBlocks(t *testing.T) {
	text := "You draft outbound sales emails in the company voice.\n\n# Voice guide\n..."

	blocks := BuildCachedSystemBlocks(text)

	require.Len(t, blocks, 1, "a single block spends a single cache breakpoint")
	assert.Equal(t, text, blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestSystemBlocksReachSDKWithCacheControl(t *testing.T) {
	params := toSDKSystemBlocks(BuildCachedSystemBlocks("voice guide"))

	require.Len(t, params, 1)
	assert.Equal(t, "voice guide", params[0].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("1h"), params[0].CacheControl.TTL)
}

func TestSystemBlocksWithoutCacheControlStayPlain(t *testing.T) {
	params := toSDKSystemBlocks([]SystemBlock{{Text: "one-off instruction"}})

	require.Len(t, params, 1)
	assert.Equal(t, "one-off instruction", params[0].Text)
	assert.Empty(t, params[0].CacheControl.TTL)
}
