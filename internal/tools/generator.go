package tools

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const (
	generatorMaxCompletionTokens = 40096
	generatorAzureAPIVersion     = "2025-01-01-preview"
)

// GeneratedDocument is a full HTML page plus the tokens the generation consumed.
type GeneratedDocument struct {
	HTML   string
	Tokens int
}

// DocumentGenerator writes a complete page from a CreateNewDocument request.
type DocumentGenerator interface {
	Generate(ctx context.Context, req CreateNewDocument) (GeneratedDocument, error)
}

const generatorBrief = "Create a professional, responsive anchor page that starts with <html> and ends with </html>. " +
	"All code, including <script> or <style>, must be placed inside <html>. " +
	"Always output the result as a single HTML code block. The page must include:\n\n" +
	"A header menu whose items are linked via anchors to their corresponding sections.\n\n" +
	"Smooth scrolling behavior when clicking on menu items.\n\n" +
	"Multiple sections, each with a unique ID, descriptive text, and images (URLs will be provided by the user).\n\n" +
	"A layout that adapts to mobile, tablet, and desktop devices.\n"

// OpenAIDocumentGenerator uses chat completions, against OpenAI or an Azure deployment.
type OpenAIDocumentGenerator struct {
	client *openai.Client
	model  string
}

type GeneratorOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	Azure   bool
}

func NewOpenAIDocumentGenerator(opts GeneratorOptions) *OpenAIDocumentGenerator {
	var cfg openai.ClientConfig
	if opts.Azure {
		cfg = openai.DefaultAzureConfig(opts.APIKey, opts.BaseURL)
		cfg.APIVersion = generatorAzureAPIVersion
	} else {
		cfg = openai.DefaultConfig(opts.APIKey)
		if opts.BaseURL != "" {
			cfg.BaseURL = opts.BaseURL
		}
	}
	return &OpenAIDocumentGenerator{client: openai.NewClientWithConfig(cfg), model: opts.Model}
}

func (g *OpenAIDocumentGenerator) Generate(ctx context.Context, req CreateNewDocument) (GeneratedDocument, error) {
	user := fmt.Sprintf("Title: %s\nInstruction: %s\n\nContent:\n%s\n\nUse these sources (image URLs or context):\n%s\n",
		req.Title, req.ContextInstruction, req.Content, req.ImagesInsertHTML)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleDeveloper, Content: generatorBrief},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxCompletionTokens: generatorMaxCompletionTokens,
	})
	if err != nil {
		return GeneratedDocument{}, fmt.Errorf("generate document: %w", err)
	}
	if len(resp.Choices) == 0 {
		return GeneratedDocument{HTML: noHTMLFound, Tokens: resp.Usage.TotalTokens}, nil
	}
	return GeneratedDocument{
		HTML:   extractHTML(resp.Choices[0].Message.Content),
		Tokens: resp.Usage.TotalTokens,
	}, nil
}
