package discovery

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of a discovery task.
type Status string

// Task status values persisted in the task store.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no job will move the task out of this status again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// CancelRequested reports whether a user asked for the task to stop.
func (s Status) CancelRequested() bool {
	return s == StatusCancelling || s == StatusCancelled
}

// Completion reasons written alongside terminal statuses.
const (
	ReasonUserCancelled    = "User Cancelled"
	ReasonSearchExhausted  = "All Keywords Searched"
	ReasonInterrupted      = "Interrupted by service restart"
	reasonTargetReachedFmt = "Target Reached (%d/%d)"
	reasonScanLimitFmt     = "Max Scan Limit Reached (%d)"
)

// Speed selects the delay profile used between upstream account searches.
type Speed string

// Supported search speeds.
const (
	SpeedHigh   Speed = "high"
	SpeedMedium Speed = "medium"
	SpeedLow    Speed = "low"
)

// ProviderKind names one backend of the closed provider set.
type ProviderKind string

// Supported provider backends.
const (
	ProviderGemini           ProviderKind = "gemini"
	ProviderDeepSeek         ProviderKind = "deepseek"
	ProviderOllama           ProviderKind = "ollama"
	ProviderOpenAICompatible ProviderKind = "openai"
)

// ParseProviderKind normalizes a user supplied provider name.
func ParseProviderKind(raw string) (ProviderKind, bool) {
	switch kind := ProviderKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case ProviderGemini, ProviderDeepSeek, ProviderOllama, ProviderOpenAICompatible:
		return kind, true
	default:
		return "", false
	}
}

// ProviderOverrides carries per-request credentials that take precedence over config.
type ProviderOverrides struct {
	GeminiAPIKey         string `json:"gemini_api_key,omitempty"`
	DeepSeekAPIKey       string `json:"deepseek_api_key,omitempty"`
	OllamaBaseURL        string `json:"ollama_base_url,omitempty"`
	OllamaEmbeddingModel string `json:"ollama_embedding_model,omitempty"`
}

// ProviderSelection picks a backend for each provider role plus the search speed.
type ProviderSelection struct {
	Keyword   ProviderKind      `json:"keyword_provider"`
	Reasoning ProviderKind      `json:"reasoning_provider"`
	Embedding ProviderKind      `json:"embedding_provider"`
	Speed     Speed             `json:"search_speed"`
	Overrides ProviderOverrides `json:"-"`
}

// Task is one user-initiated discovery run.
type Task struct {
	ID               string    `json:"id"`
	Prompt           string    `json:"prompt"`
	Status           Status    `json:"status"`
	Keywords         []string  `json:"keywords"`
	TargetCount      int       `json:"target_count"`
	ProcessedCount   int       `json:"processed_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	CompletionReason *string   `json:"completion_reason,omitempty"`
}

// Article is a discovered article that passed both the similarity and relevance gates.
type Article struct {
	ID             string     `json:"id"`
	TaskID         string     `json:"task_id"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	AccountName    string     `json:"account_name"`
	AccountID      string     `json:"account_fakeid"`
	PublishedAt    *time.Time `json:"publish_time,omitempty"`
	Similarity     *float64   `json:"similarity,omitempty"`
	Insight        *string    `json:"insight,omitempty"`
	RelevanceScore *float64   `json:"relevance_score,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// AccountCandidate is an upstream account found during search-space resolution.
type AccountCandidate struct {
	ExternalID  string `json:"account_id"`
	DisplayName string `json:"display_name"`
}

// SourceArticle is one entry of an upstream account's article listing.
type SourceArticle struct {
	Title       string
	Digest      string
	URL         string
	PublishedAt time.Time
}

// Verdict is the reasoning provider's relevance decision.
type Verdict struct {
	Relevant bool   `json:"is_relevant"`
	Insight  string `json:"insight"`
}

// CreateRequest holds everything needed to start a task.
type CreateRequest struct {
	Prompt      string
	TargetCount int
	Selection   ProviderSelection
	Pinned      *AccountCandidate
}

// Detail bundles a task with its persisted articles.
type Detail struct {
	Task     Task      `json:"task"`
	Articles []Article `json:"articles"`
}

// CachedPage is an opportunistic HTML cache entry keyed by a URL hash.
type CachedPage struct {
	Key       string
	URL       string
	HTML      string
	FetchedAt time.Time
}

// CachedAsset is a binary asset keyed by its normalized source URL.
type CachedAsset struct {
	URL      string
	Data     []byte
	MimeType string
}

// Credential authenticates calls against the upstream source API.
type Credential struct {
	Token     string
	Cookie    string
	ExpiresAt time.Time
}

// TaskEvent is published whenever a task reaches a terminal status.
type TaskEvent struct {
	TaskID         string    `json:"task_id"`
	Status         Status    `json:"status"`
	Reason         string    `json:"reason"`
	ProcessedCount int       `json:"processed_count"`
	TargetCount    int       `json:"target_count"`
	At             time.Time `json:"at"`
}

// QueueItem wraps a task ready to run on the worker pool.
type QueueItem struct {
	TaskID    string
	Request   CreateRequest
	Submitted int64
}
