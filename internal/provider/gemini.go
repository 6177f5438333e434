package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"codeassist/internal/domain"
)

const (
	geminiDefaultModel = "gemini-2.0-flash-001"
	// localIDPrefix marks call ids minted here because the API sent none.
	// They are stripped again before the history goes back to the API.
	localIDPrefix = "local_"
)

// Gemini implements domain.Model over the Gemini API using the genai SDK.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

type GeminiConfig struct {
	APIKey  string
	APIBase string // optional endpoint override
	Model   string
	Timeout time.Duration
	Client  *http.Client // overrides Timeout when set
	Logger  *slog.Logger
}

// NewGemini creates a Gemini transport. The API key is required.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: no API key configured (set GEMINI_API_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.Client,
	}
	if cfg.APIBase != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.APIBase}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, logger: cfg.Logger}, nil
}

func (g *Gemini) Name() string { return g.model }

func (g *Gemini) Generate(ctx context.Context, req domain.ModelRequest) (*domain.ModelResponse, error) {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if decls := toGeminiDeclarations(req.Tools); len(decls) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, toGeminiContents(req.Turns), config)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return fromGeminiResponse(resp)
}

// toGeminiContents maps the turn log onto Gemini's alternating user/model
// contents. Tool results travel as function responses in a user content.
func toGeminiContents(turns []domain.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		switch t.Kind {
		case domain.TurnUserText:
			contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleUser))
		case domain.TurnModelText:
			contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleModel))
		case domain.TurnModelToolRequests:
			var parts []*genai.Part
			if t.Text != "" {
				parts = append(parts, genai.NewPartFromText(t.Text))
			}
			for _, c := range t.Calls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   remoteID(c.ID),
					Name: c.Name,
					Args: c.Arguments,
				}})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case domain.TurnToolResults:
			parts := make([]*genai.Part, 0, len(t.Results))
			for _, r := range t.Results {
				key := "result"
				if !r.Success {
					key = "error"
				}
				part := genai.NewPartFromFunctionResponse(r.Name, map[string]any{key: r.Output})
				part.FunctionResponse.ID = remoteID(r.CallID)
				parts = append(parts, part)
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
		}
	}
	return contents
}

func remoteID(id string) string {
	if strings.HasPrefix(id, localIDPrefix) {
		return ""
	}
	return id
}

var geminiTypes = map[domain.ParamType]genai.Type{
	domain.TypeString:  genai.TypeString,
	domain.TypeNumber:  genai.TypeNumber,
	domain.TypeBoolean: genai.TypeBoolean,
}

func toGeminiDeclarations(caps []domain.ToolCapability) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(caps))
	for _, c := range caps {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(c.Parameters)),
		}
		for _, p := range c.Parameters {
			schema.Properties[p.Name] = &genai.Schema{Type: geminiTypes[p.Type], Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        c.Name,
			Description: c.Description,
			Parameters:  schema,
		})
	}
	return decls
}

// fromGeminiResponse reads the first candidate. Function calls win over text.
func fromGeminiResponse(resp *genai.GenerateContentResponse) (*domain.ModelResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrNoCandidates
	}

	var (
		text  strings.Builder
		calls []domain.ToolCall
	)
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			fc := part.FunctionCall
			id := fc.ID
			if id == "" {
				id = localIDPrefix + uuid.NewString()
			}
			args := fc.Args
			if args == nil {
				args = make(map[string]any)
			}
			calls = append(calls, domain.ToolCall{ID: id, Name: fc.Name, Arguments: args})
			continue
		}
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
	}

	// Empty or thought-only content carries no answer to report.
	if text.Len() == 0 && len(calls) == 0 {
		return nil, ErrNoCandidates
	}

	out := &domain.ModelResponse{Reply: reply(text.String(), calls)}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = domain.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

var _ domain.Model = (*Gemini)(nil)
