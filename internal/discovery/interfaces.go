package discovery

import (
	"context"
	"io"
	"time"
)

// TaskStore persists task rows. Every method is a single independently committed statement.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context) ([]Task, error)
	GetStatus(ctx context.Context, id string) (Status, error)
	// UpdateStatus sets the status; an empty reason leaves completion_reason untouched.
	UpdateStatus(ctx context.Context, id string, status Status, reason string) error
	// MarkProcessing moves a pending task to processing and reports whether it did.
	MarkProcessing(ctx context.Context, id string) (bool, error)
	SetKeywords(ctx context.Context, id string, keywords []string) error
	SetProcessedCount(ctx context.Context, id string, count int) error
	// DeleteTask removes the task together with its articles.
	DeleteTask(ctx context.Context, id string) error
	// SweepInterrupted moves every processing/cancelling task to failed.
	SweepInterrupted(ctx context.Context, reason string) (int64, error)
}

// ArticleStore persists accepted articles.
type ArticleStore interface {
	InsertArticle(ctx context.Context, article Article) error
	// ListArticles returns a task's articles ordered by similarity, highest first.
	ListArticles(ctx context.Context, taskID string) ([]Article, error)
}

// Store is the relational store used by the lifecycle manager and the scan engine.
type Store interface {
	TaskStore
	ArticleStore
}

// PageCache stores fetched article HTML keyed by URL hash.
type PageCache interface {
	GetPage(ctx context.Context, key string) (CachedPage, bool, error)
	PutPage(ctx context.Context, page CachedPage) error
}

// AssetCache stores downloaded images keyed by normalized URL.
type AssetCache interface {
	GetAsset(ctx context.Context, url string) (CachedAsset, bool, error)
	HasAsset(ctx context.Context, url string) (bool, error)
	PutAsset(ctx context.Context, asset CachedAsset) error
}

// CredentialSource yields the currently valid upstream credential.
type CredentialSource interface {
	Current(ctx context.Context) (Credential, error)
}

// Source is the upstream platform API.
type Source interface {
	SearchAccounts(ctx context.Context, cred Credential, query string, limit int) ([]AccountCandidate, error)
	ListArticles(ctx context.Context, cred Credential, accountID string, limit int) ([]SourceArticle, error)
	Probe(ctx context.Context, cred Credential) error
}

// KeywordSuggester turns a research topic into search terms.
type KeywordSuggester interface {
	SuggestKeywords(ctx context.Context, topic string, count int) ([]string, error)
}

// Classifier judges whether an article is relevant to an intent.
type Classifier interface {
	Classify(ctx context.Context, intent, title, digest string) (Verdict, error)
}

// Embedder produces a vector embedding for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HTMLFetcher downloads an article page, optionally through a forwarding gateway.
type HTMLFetcher interface {
	FetchHTML(ctx context.Context, url string, gateway *Gateway) (string, error)
}

// Renderer turns self-contained HTML into a PDF document.
type Renderer interface {
	Render(ctx context.Context, html, title string) ([]byte, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes task events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for task jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests used as cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task and article IDs.
type IDGenerator interface {
	NewID() (string, error)
}
