package tools

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/strawberry/sitebuilder-go/internal/assistant"
)

// Tool names the assistant is configured with.
const (
	NameCreateNewDocument   = "CreateNewDocument"
	NameSearchImages        = "search_images"
	NameGenerateMusic       = "generate_music"
	NameRecallHTML          = "recall_html"
	NameEditCurrentDocument = "edit_current_document"
)

// Call is one decoded tool invocation. The concrete types below are the only implementations.
type Call interface {
	CallID() string
	call()
}

type callID string

func (c callID) CallID() string { return string(c) }
func (callID) call()            {}

type CreateNewDocument struct {
	callID
	Title              string
	ContextInstruction string
	Content            string
	ImagesInsertHTML   string
}

type SearchImages struct {
	callID
	Query      string
	PerPage    int
	Page       int
	SafeSearch bool
}

type GenerateMusic struct {
	callID
	Prompt string
}

type RecallHTML struct {
	callID
}

type EditCurrentDocument struct {
	callID
	HTML string
}

// Decode binds the call's JSON arguments to its variant. Arguments sent as an
// array are bound by position in parameter order, objects by name.
func Decode(tc assistant.ToolCall) (Call, error) {
	args, err := newArgs(tc.Arguments)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tc.Name, err)
	}
	id := callID(tc.ID)

	switch tc.Name {
	case NameCreateNewDocument:
		return CreateNewDocument{
			callID:             id,
			Title:              args.text(0, "title"),
			ContextInstruction: args.text(1, "context_instruction"),
			Content:            args.text(2, "content"),
			ImagesInsertHTML:   args.text(3, "images_insert_html"),
		}, nil
	case NameSearchImages:
		return SearchImages{
			callID:     id,
			Query:      args.text(0, "query"),
			PerPage:    args.number(1, "per_page", 10),
			Page:       args.number(2, "page", 1),
			SafeSearch: args.flag(3, "safesearch", true),
		}, nil
	case NameGenerateMusic:
		return GenerateMusic{callID: id, Prompt: args.text(0, "prompt")}, nil
	case NameRecallHTML:
		return RecallHTML{callID: id}, nil
	case NameEditCurrentDocument:
		html, ok := args.get(0, "new_code_html_modified")
		if !ok {
			return nil, fmt.Errorf("%s: missing new_code_html_modified", tc.Name)
		}
		return EditCurrentDocument{callID: id, HTML: html.String()}, nil
	default:
		return nil, fmt.Errorf("function %q not available", tc.Name)
	}
}

type args struct {
	positional []gjson.Result
	named      gjson.Result
}

func newArgs(raw string) (args, error) {
	if raw == "" {
		return args{}, nil
	}
	if !gjson.Valid(raw) {
		return args{}, fmt.Errorf("arguments are not valid JSON")
	}
	res := gjson.Parse(raw)
	switch {
	case res.IsArray():
		return args{positional: res.Array()}, nil
	case res.IsObject():
		return args{named: res}, nil
	default:
		return args{}, fmt.Errorf("arguments must be an object or an array")
	}
}

func (a args) get(pos int, name string) (gjson.Result, bool) {
	if a.positional != nil {
		if pos < len(a.positional) {
			return a.positional[pos], true
		}
		return gjson.Result{}, false
	}
	v := a.named.Get(name)
	return v, v.Exists()
}

func (a args) text(pos int, name string) string {
	v, _ := a.get(pos, name)
	return v.String()
}

func (a args) number(pos int, name string, def int) int {
	v, ok := a.get(pos, name)
	if !ok || v.Type == gjson.Null {
		return def
	}
	return int(v.Int())
}

func (a args) flag(pos int, name string, def bool) bool {
	v, ok := a.get(pos, name)
	if !ok || v.Type == gjson.Null {
		return def
	}
	return v.Bool()
}
