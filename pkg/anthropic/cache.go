package anthropic

// BuildCachedSystemBlocks wraps a system prompt in a single block with a
// one-hour cache breakpoint. The renderer sends the same voice guide and
// examples with every variant and every batch item; the long TTL keeps the
// cache warm across a batch whose turnaround outlives the default window.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{Text: text, CacheControl: &CacheControl{TTL: "1h"}},
	}
}
