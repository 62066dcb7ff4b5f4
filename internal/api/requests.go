package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type createTaskRequest struct {
	Prompt               string `json:"prompt" validate:"required"`
	TargetCount          *int   `json:"target_count" validate:"omitempty,gt=0"`
	AccountID            string `json:"specific_account_fakeid"`
	AccountName          string `json:"specific_account_name"`
	KeywordProvider      string `json:"keyword_provider"`
	ReasoningProvider    string `json:"reasoning_provider"`
	EmbeddingProvider    string `json:"embedding_provider"`
	SearchSpeed          string `json:"search_speed"`
	GeminiAPIKey         string `json:"gemini_api_key"`
	DeepSeekAPIKey       string `json:"deepseek_api_key"`
	OllamaBaseURL        string `json:"ollama_base_url"`
	OllamaEmbeddingModel string `json:"ollama_embedding_model"`
}

type exportRequest struct {
	TargetDir     string   `json:"target_dir" validate:"required"`
	Format        string   `json:"format" validate:"required,oneof=markdown pdf"`
	Proxies       []string `json:"proxies"`
	Authorization string   `json:"authorization"`
}

type prefetchRequest struct {
	Proxies       []string `json:"proxies"`
	Authorization string   `json:"authorization"`
}

// decodeAndValidate reads a JSON body into v and checks its validate tags.
// Both failures are reported as ErrInvalidArgument.
func decodeAndValidate(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", discovery.ErrInvalidArgument)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%s: %w", validationMessage(err), discovery.ErrInvalidArgument)
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func (c createTaskRequest) toCreateRequest() (discovery.CreateRequest, error) {
	req := discovery.CreateRequest{Prompt: c.Prompt}
	if c.TargetCount != nil {
		req.TargetCount = *c.TargetCount
	}
	if c.AccountID != "" && c.AccountName != "" {
		req.Pinned = &discovery.AccountCandidate{ExternalID: c.AccountID, DisplayName: c.AccountName}
	}
	var err error
	sel := &req.Selection
	if sel.Keyword, err = providerField("keyword_provider", c.KeywordProvider); err != nil {
		return req, err
	}
	if sel.Reasoning, err = providerField("reasoning_provider", c.ReasoningProvider); err != nil {
		return req, err
	}
	if sel.Embedding, err = providerField("embedding_provider", c.EmbeddingProvider); err != nil {
		return req, err
	}
	sel.Speed = discovery.Speed(strings.ToLower(strings.TrimSpace(c.SearchSpeed)))
	sel.Overrides = discovery.ProviderOverrides{
		GeminiAPIKey:         c.GeminiAPIKey,
		DeepSeekAPIKey:       c.DeepSeekAPIKey,
		OllamaBaseURL:        c.OllamaBaseURL,
		OllamaEmbeddingModel: c.OllamaEmbeddingModel,
	}
	return req, nil
}

// providerField leaves an empty value empty so the configured default applies.
func providerField(name, raw string) (discovery.ProviderKind, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	kind, ok := discovery.ParseProviderKind(raw)
	if !ok {
		return "", fmt.Errorf("unknown %s %q: %w", name, raw, discovery.ErrInvalidArgument)
	}
	return kind, nil
}
