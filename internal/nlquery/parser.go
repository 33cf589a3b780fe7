package nlquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/localchat/chatindex/internal/errkind"
	"github.com/localchat/chatindex/internal/logging"
)

const (
	defaultModel     = anthropic.ModelClaudeSonnet4_5
	defaultMaxTokens = 1024
	toolName         = "emit_parsed_query"
)

const systemPrompt = `You turn a person's natural-language request to search their own message
history into a structured query. Always respond by calling the emit_parsed_query tool exactly
once; never reply in plain text. Leave a field at its zero value when the request does not
mention it. query_type must be one of semantic, keyword, hybrid, image, metadata_only: pick
keyword for requests that name exact words or phrases, semantic for requests about a topic or
meaning, hybrid when both apply, image when the request is specifically about photos/pictures,
and metadata_only when the request names only filters (sender, time, chat) with no text to
match. relative_time, if set, must be one of: today, yesterday, this_week, last_week,
this_month, last_month, this_year, last_year. Boost fields are small positive numbers (try
1.0-3.0) or zero to mean "don't boost".`

// ParserConfig configures the Anthropic-backed parser.
type ParserConfig struct {
	APIKey    string
	Model     anthropic.Model
	MaxTokens int64

	// RequestsPerSecond caps outbound LLM calls; defaults to 2.
	RequestsPerSecond float64

	// Location is the timezone relative tokens resolve against; defaults
	// to time.Local.
	Location *time.Location
}

// Parser produces a ParsedQuery from a raw natural-language string by
// asking Claude to call a single structured-output tool (§4.13). It holds
// no per-call state: repeated calls with the same input and the same
// model/temperature are expected to be deterministic, though the parser
// itself cannot guarantee the model's determinism — that contract lives
// with the chosen model and its fixed temperature (0, set below).
type Parser struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	limiter   *rate.Limiter
	loc       *time.Location
	logger    *logging.Logger
}

// NewParser builds a Parser. cfg.APIKey is optional: when it is empty the
// client picks up ANTHROPIC_API_KEY itself, matching the SDK's own
// default-from-env behavior.
func NewParser(cfg ParserConfig, logger *logging.Logger) *Parser {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Parser{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		loc:       loc,
		logger:    logger,
	}
}

// toolOutput mirrors the JSON schema given to the model; it is
// deliberately flat (no nested temporal struct) since Anthropic's tool
// input schema is easiest to get right as a single flat object.
type toolOutput struct {
	QueryType     string   `json:"query_type"`
	SemanticQuery string   `json:"semantic_query"`
	KeywordQuery  string   `json:"keyword_query"`

	FromPerson  string `json:"from_person"`
	WithPerson  string `json:"with_person"`
	AboutPerson string `json:"about_person"`

	Sender       string   `json:"sender"`
	Participants []string `json:"participants"`
	IsDM         *bool    `json:"is_dm"`
	IsGroupChat  *bool    `json:"is_group_chat"`

	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Months    []int  `json:"months"`
	DayOfWeek string `json:"day_of_week"`
	HourGTE   *int   `json:"hour_gte"`
	HourLTE   *int   `json:"hour_lte"`
	HasImage  *bool  `json:"has_image"`

	RelativeTime string `json:"relative_time"`
	DateGTE      string `json:"date_gte"`
	DateLTE      string `json:"date_lte"`

	SenderNot   string `json:"sender_not"`
	ChatNot     string `json:"chat_not"`
	IsDMWithNot string `json:"is_dm_with_not"`

	BoostSenderIsMe  float64 `json:"boost_sender_is_me"`
	BoostIsGroupChat float64 `json:"boost_is_group_chat"`
	BoostIsDM        float64 `json:"boost_is_dm"`

	Reasoning string `json:"reasoning"`
}

func toolSchema() anthropic.ToolInputSchemaParam {
	return anthropic.ToolInputSchemaParam{
		Properties: map[string]interface{}{
			"query_type":          map[string]interface{}{"type": "string", "enum": []string{"semantic", "keyword", "hybrid", "image", "metadata_only"}},
			"semantic_query":      map[string]interface{}{"type": "string"},
			"keyword_query":       map[string]interface{}{"type": "string"},
			"from_person":         map[string]interface{}{"type": "string"},
			"with_person":         map[string]interface{}{"type": "string"},
			"about_person":        map[string]interface{}{"type": "string"},
			"sender":              map[string]interface{}{"type": "string"},
			"participants":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"is_dm":               map[string]interface{}{"type": "boolean"},
			"is_group_chat":       map[string]interface{}{"type": "boolean"},
			"year":                map[string]interface{}{"type": "integer"},
			"month":               map[string]interface{}{"type": "integer"},
			"months":              map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
			"day_of_week":         map[string]interface{}{"type": "string"},
			"hour_gte":            map[string]interface{}{"type": "integer"},
			"hour_lte":            map[string]interface{}{"type": "integer"},
			"has_image":           map[string]interface{}{"type": "boolean"},
			"relative_time":       map[string]interface{}{"type": "string", "enum": []string{"", RelativeToday, RelativeYesterday, RelativeThisWeek, RelativeLastWeek, RelativeThisMonth, RelativeLastMonth, RelativeThisYear, RelativeLastYear}},
			"date_gte":            map[string]interface{}{"type": "string"},
			"date_lte":            map[string]interface{}{"type": "string"},
			"sender_not":          map[string]interface{}{"type": "string"},
			"chat_not":            map[string]interface{}{"type": "string"},
			"is_dm_with_not":      map[string]interface{}{"type": "string"},
			"boost_sender_is_me":  map[string]interface{}{"type": "number"},
			"boost_is_group_chat": map[string]interface{}{"type": "number"},
			"boost_is_dm":         map[string]interface{}{"type": "number"},
			"reasoning":           map[string]interface{}{"type": "string"},
		},
		Required: []string{"query_type", "reasoning"},
	}
}

// Parse asks the model to classify rawQuery and returns the resulting
// ParsedQuery. Any failure (network, rate limit, malformed tool input, an
// unresolvable relative token) is wrapped in errkind.ErrQueryParseFailed
// so the caller can apply §7's disposition: fall through to a keyword-only
// search against the raw string.
func (p *Parser) Parse(ctx context.Context, rawQuery string) (*ParsedQuery, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", errkind.ErrQueryParseFailed, err)
	}

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(rawQuery)),
		},
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        toolName,
					Description: anthropic.String("Record the structured interpretation of the user's search request."),
					InputSchema: toolSchema(),
				},
			},
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: toolName},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: calling language model: %v", errkind.ErrQueryParseFailed, err)
	}

	out, err := extractToolOutput(message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrQueryParseFailed, err)
	}

	parsed, err := buildParsedQuery(*out, time.Now(), p.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrQueryParseFailed, err)
	}
	return parsed, nil
}

func extractToolOutput(message *anthropic.Message) (*toolOutput, error) {
	for _, block := range message.Content {
		use, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok || use.Name != toolName {
			continue
		}
		var out toolOutput
		if err := json.Unmarshal(use.Input, &out); err != nil {
			return nil, fmt.Errorf("decoding tool input: %w", err)
		}
		return &out, nil
	}
	return nil, fmt.Errorf("model response contained no %s tool call", toolName)
}

// buildParsedQuery converts the model's flat tool output into a
// ParsedQuery, resolving any relative temporal token against now/loc.
func buildParsedQuery(out toolOutput, now time.Time, loc *time.Location) (*ParsedQuery, error) {
	pq := &ParsedQuery{
		QueryType:     QueryType(out.QueryType),
		SemanticQuery: out.SemanticQuery,
		KeywordQuery:  out.KeywordQuery,
		FromPerson:    out.FromPerson,
		WithPerson:    out.WithPerson,
		AboutPerson:   out.AboutPerson,
		Reasoning:     out.Reasoning,
		Filters: Filters{
			Sender:       out.Sender,
			Participants: out.Participants,
			IsDM:         out.IsDM,
			IsGroupChat:  out.IsGroupChat,
			Year:         out.Year,
			Month:        out.Month,
			Months:       out.Months,
			DayOfWeek:    lowercaseOrEmpty(out.DayOfWeek),
			HourGTE:      out.HourGTE,
			HourLTE:      out.HourLTE,
			HasImage:     out.HasImage,
		},
		Exclusions: Exclusions{
			IsDMWith:  out.IsDMWithNot,
			SenderNot: out.SenderNot,
			ChatNot:   out.ChatNot,
		},
	}

	if out.BoostSenderIsMe != 0 {
		pq.Boosts = append(pq.Boosts, Boost{Field: "sender_is_me", Value: true, Score: out.BoostSenderIsMe})
	}
	if out.BoostIsGroupChat != 0 {
		pq.Boosts = append(pq.Boosts, Boost{Field: "is_group_chat", Value: true, Score: out.BoostIsGroupChat})
	}
	if out.BoostIsDM != 0 {
		pq.Boosts = append(pq.Boosts, Boost{Field: "is_dm", Value: true, Score: out.BoostIsDM})
	}

	switch {
	case out.RelativeTime != "":
		gte, lte, err := resolveTemporalFilter(out.RelativeTime, now, loc)
		if err != nil {
			return nil, err
		}
		pq.Filters.Temporal = &TemporalFilter{Relative: out.RelativeTime}
		pq.Filters.TimestampGTE = gte
		pq.Filters.TimestampLTE = lte

	case out.DateGTE != "" || out.DateLTE != "":
		pq.Filters.Temporal = &TemporalFilter{DateGTE: out.DateGTE, DateLTE: out.DateLTE}
		if out.DateGTE != "" {
			t, err := time.ParseInLocation("2006-01-02", out.DateGTE, loc)
			if err != nil {
				return nil, fmt.Errorf("parsing date_gte %q: %w", out.DateGTE, err)
			}
			pq.Filters.TimestampGTE = unixPtr(t)
		}
		if out.DateLTE != "" {
			t, err := time.ParseInLocation("2006-01-02", out.DateLTE, loc)
			if err != nil {
				return nil, fmt.Errorf("parsing date_lte %q: %w", out.DateLTE, err)
			}
			pq.Filters.TimestampLTE = unixPtr(t)
		}
	}

	return pq, nil
}

func lowercaseOrEmpty(s string) string {
	if s == "" {
		return ""
	}
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// FallbackKeywordOnly builds the degenerate ParsedQuery §7 requires when
// parsing fails: a keyword search against the raw string with no filters.
func FallbackKeywordOnly(rawQuery string) *ParsedQuery {
	return &ParsedQuery{
		QueryType:    QueryKeyword,
		KeywordQuery: rawQuery,
		Reasoning:    "query parser unavailable; falling back to keyword search",
	}
}
