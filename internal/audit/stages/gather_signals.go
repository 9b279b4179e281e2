package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/actualfyi/audit-service/internal/fetch"
	"github.com/actualfyi/audit-service/internal/llm"
)

// maxEvidenceURLs caps how many source pages one run will fetch.
const maxEvidenceURLs = 6

// maxPageChars caps the page text handed to the summarizer.
const maxPageChars = 12000

// gatherSignalsExecutor fetches the product's evidence URLs and has the lite
// model distill each page into structured signals. Individual page failures
// are logged and skipped; the stage fails only when every source fails.
type gatherSignalsExecutor struct {
	llm       llm.Client
	fetchOpts *fetch.Options
}

func (e *gatherSignalsExecutor) Name() string { return GatherSignals }

// SourceSignals is the per-URL result inside the gather_signals output.
type SourceSignals struct {
	URL           string            `json:"url"`
	Signals       []json.RawMessage `json:"signals"`
	SourceQuality string            `json:"source_quality,omitempty"`
}

// GatherSignalsOutput is the gather_signals stage output document.
type GatherSignalsOutput struct {
	Sources []SourceSignals `json:"sources"`
	Skipped []string        `json:"skipped,omitempty"`
}

func (e *gatherSignalsExecutor) Execute(ctx context.Context, in *Input) (json.RawMessage, error) {
	if in.Product == nil {
		return nil, fmt.Errorf("no product loaded")
	}
	urls := in.Product.SourceURLs
	if len(urls) == 0 {
		return nil, fmt.Errorf("product %s has no source URLs", in.Product.ID)
	}
	if len(urls) > maxEvidenceURLs {
		urls = urls[:maxEvidenceURLs]
	}

	out := GatherSignalsOutput{Sources: make([]SourceSignals, 0, len(urls))}

	for _, u := range urls {
		src, err := e.gatherOne(ctx, in, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[stages] gather_signals: skipping %s: %v", u, err)
			out.Skipped = append(out.Skipped, u)
			continue
		}
		out.Sources = append(out.Sources, *src)
	}

	if len(out.Sources) == 0 {
		return nil, fmt.Errorf("all %d evidence sources failed", len(urls))
	}

	return json.Marshal(out)
}

func (e *gatherSignalsExecutor) gatherOne(ctx context.Context, in *Input, u string) (*SourceSignals, error) {
	page, err := fetch.URL(ctx, u, e.fetchOpts)
	if err != nil {
		return nil, err
	}

	text, err := fetch.ExtractMainText(page.HTML, fetch.ReviewPageSelectors())
	if err != nil {
		return nil, err
	}
	if len(text) > maxPageChars {
		text = text[:maxPageChars]
	}
	if text == "" {
		return nil, fmt.Errorf("no extractable text")
	}

	prompt := llm.SignalSummaryPrompt(in.Product.Brand, in.Product.Model, in.Product.Category, text)
	raw, err := e.llm.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, err
	}

	var summary struct {
		Signals       []json.RawMessage `json:"signals"`
		SourceQuality string            `json:"source_quality"`
	}
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, fmt.Errorf("summarizer returned invalid JSON: %w", err)
	}

	return &SourceSignals{
		URL:           u,
		Signals:       summary.Signals,
		SourceQuality: summary.SourceQuality,
	}, nil
}
