package tools

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
)

// Rendered is the HTML a tool call produced for the user.
type Rendered struct {
	HTML string
	// GenerationTokens is set by document generation, which is billed at its own rate.
	GenerationTokens int
	// Document marks a full page that replaces the session's current document.
	Document bool
}

// Toolbox holds the external collaborators behind tool calls.
type Toolbox struct {
	images ImageSearcher
	docs   DocumentGenerator
	speech Synthesizer
}

func NewToolbox(images ImageSearcher, docs DocumentGenerator, speech Synthesizer) *Toolbox {
	return &Toolbox{images: images, docs: docs, speech: speech}
}

// Run executes a call through the action then render pipeline.
func (t *Toolbox) Run(ctx context.Context, call Call) (Rendered, error) {
	switch c := call.(type) {
	case CreateNewDocument:
		return pipeline(ctx, c, documentRequest, t.renderDocument)
	case SearchImages:
		return pipeline(ctx, c, t.searchImages, renderGallery)
	default:
		return Rendered{}, fmt.Errorf("%T has no generic action", call)
	}
}

func pipeline[C Call, R any](
	ctx context.Context,
	call C,
	action func(context.Context, C) (R, error),
	render func(context.Context, R) (Rendered, error),
) (Rendered, error) {
	result, err := action(ctx, call)
	if err != nil {
		return Rendered{}, err
	}
	return render(ctx, result)
}

func documentRequest(_ context.Context, c CreateNewDocument) (CreateNewDocument, error) {
	return c, nil
}

func (t *Toolbox) renderDocument(ctx context.Context, req CreateNewDocument) (Rendered, error) {
	if t.docs == nil {
		return Rendered{}, errors.New("document generation is not configured")
	}
	doc, err := t.docs.Generate(ctx, req)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{
		HTML:             strings.NewReplacer("```html", "", "```", "").Replace(doc.HTML),
		GenerationTokens: doc.Tokens,
		Document:         true,
	}, nil
}

func (t *Toolbox) searchImages(ctx context.Context, c SearchImages) (ImageResults, error) {
	if t.images == nil {
		return ImageResults{}, ErrImageSearchDisabled
	}
	return t.images.Search(ctx, c)
}

func renderGallery(_ context.Context, res ImageResults) (Rendered, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<div style="font-weight: lighter;">AI Answer:</div>assistant: I found %d images for: %s`,
		len(res.URLs), html.EscapeString(res.Query))
	sb.WriteString(`<div style="display:flex;flex-wrap:wrap;align-items:flex-start">`)
	for _, u := range res.URLs {
		esc := html.EscapeString(u)
		fmt.Fprintf(&sb, `<a href="%s" target="_blank" rel="noopener"><img src="%s" style="max-width:180px;max-height:180px;margin:6px;border-radius:8px;object-fit:cover"/></a>`, esc, esc)
	}
	sb.WriteString(`</div>`)
	return Rendered{HTML: sb.String()}, nil
}

// Music synthesizes the prompt and renders an audio player for it.
func (t *Toolbox) Music(ctx context.Context, c GenerateMusic) (Rendered, error) {
	if c.Prompt == "" {
		return Rendered{}, errors.New("prompt cannot be empty")
	}
	if t.speech == nil {
		return Rendered{}, errors.New("audio generation is not configured")
	}
	url, err := t.speech.Synthesize(ctx, c.Prompt)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{HTML: fmt.Sprintf(
		`<div style="font-weight: lighter;">AI Answer:</div>assistant: I have generated a song with the following description: %s<center><audio controls src="%s">Your browser does not support the audio element.</audio></center>`,
		html.EscapeString(c.Prompt), html.EscapeString(url),
	)}, nil
}
