package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

const defaultMaxTokens = 1024

// ClaudeGenerator drafts outreach text with the Anthropic messages API.
// Each variant is its own completion; the shared system prompt carries the
// voice references under a cache control block so repeated renders reuse it.
type ClaudeGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeGenerator creates a generator drafting with the given model.
func NewClaudeGenerator(client anthropic.Client, modelID string) *ClaudeGenerator {
	return &ClaudeGenerator{client: client, model: modelID, maxTokens: defaultMaxTokens}
}

// Generate implements TextGenerator.
func (g *ClaudeGenerator) Generate(ctx context.Context, brief *model.ProspectBrief, refs VoiceRefs, variants int) (*Generation, error) {
	system := anthropic.BuildCachedSystemBlocks(systemText(refs))
	prompt := BuildPrompt(brief)

	out := &Generation{Model: g.model}
	for i := 0; i < variants; i++ {
		resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     g.model,
			MaxTokens: g.maxTokens,
			System:    system,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return nil, eris.Wrapf(err, "render: generate variant %d", i+1)
		}
		text := firstText(resp)
		if text == "" {
			return nil, eris.Errorf("render: variant %d came back empty", i+1)
		}
		out.Variants = append(out.Variants, text)
		out.Usage.Add(usageFrom(resp.Usage))
	}
	return out, nil
}

// GenerateBatch implements BatchGenerator with the message batches API.
// Results come back keyed by item id; ids missing from the map errored or
// expired server-side and are the caller's to handle.
func (g *ClaudeGenerator) GenerateBatch(ctx context.Context, items []BatchItem, refs VoiceRefs) (map[string]*Generation, error) {
	system := anthropic.BuildCachedSystemBlocks(systemText(refs))

	req := anthropic.BatchRequest{Requests: make([]anthropic.BatchRequestItem, 0, len(items))}
	for _, item := range items {
		req.Requests = append(req.Requests, anthropic.BatchRequestItem{
			CustomID: item.ID,
			Params: anthropic.MessageRequest{
				Model:     g.model,
				MaxTokens: g.maxTokens,
				System:    system,
				Messages:  []anthropic.Message{{Role: "user", Content: BuildPrompt(item.Brief)}},
			},
		})
	}

	batch, err := g.client.CreateBatch(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "render: create batch")
	}
	done, err := anthropic.PollBatch(ctx, g.client, batch.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "render: poll batch %s", batch.ID)
	}
	iter, err := g.client.GetBatchResults(ctx, done.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "render: fetch batch results %s", done.ID)
	}
	collected, err := anthropic.CollectBatchResults(iter)
	if err != nil {
		return nil, eris.Wrapf(err, "render: collect batch results %s", done.ID)
	}

	out := make(map[string]*Generation, len(collected))
	for id, resp := range collected {
		text := firstText(resp)
		if text == "" {
			continue
		}
		out[id] = &Generation{
			Variants: []string{text},
			Model:    g.model,
			Usage:    usageFrom(resp.Usage),
		}
	}
	return out, nil
}

func firstText(resp *anthropic.MessageResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return strings.TrimSpace(block.Text)
		}
	}
	return ""
}

func usageFrom(u anthropic.TokenUsage) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:         int(u.InputTokens),
		OutputTokens:        int(u.OutputTokens),
		CacheCreationTokens: int(u.CacheCreationInputTokens),
		CacheReadTokens:     int(u.CacheReadInputTokens),
	}
}

func systemText(refs VoiceRefs) string {
	var b strings.Builder
	b.WriteString("You draft short outbound sales emails. Ground every claim in the ")
	b.WriteString("evidence list the user supplies and cite nothing else. One clear ")
	b.WriteString("ask per email. No flattery, no filler, plain text only.")
	if refs.Voice != "" {
		b.WriteString("\n\nVoice and style guide:\n")
		b.WriteString(strings.TrimSpace(refs.Voice))
	}
	for i, ex := range refs.Examples {
		fmt.Fprintf(&b, "\n\nExample draft %d:\n%s", i+1, strings.TrimSpace(ex))
	}
	return b.String()
}

// BuildPrompt renders the user prompt for one brief. The same brief always
// produces the same prompt, so retries and batch replays are reproducible.
func BuildPrompt(brief *model.ProspectBrief) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Draft an outbound email to %s", brief.Contact.Name)
	if brief.Contact.Title != "" {
		fmt.Fprintf(&b, ", %s", brief.Contact.Title)
	}
	fmt.Fprintf(&b, " at %s.\n", brief.Company.Name)

	if brief.Persona != "" {
		fmt.Fprintf(&b, "Reader persona: %s.\n", humanize(brief.Persona))
	}
	if brief.AngleID != "" {
		fmt.Fprintf(&b, "Lead with the %s angle", humanize(brief.AngleID))
		if brief.OfferID != "" {
			fmt.Fprintf(&b, " and close by offering a %s", humanize(brief.OfferID))
		}
		b.WriteString(".\n")
	}

	b.WriteString("\nVerified facts (use only these, cite the URL when given):\n")
	for _, s := range brief.VerifiedSignals() {
		fmt.Fprintf(&b, "- %s", s.Claim)
		if s.SourceURL != "" {
			fmt.Fprintf(&b, " (%s)", s.SourceURL)
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nKeep it under 150 words with one ask.\n")
	return b.String()
}

func humanize(id string) string {
	return strings.ReplaceAll(id, "_", " ")
}
