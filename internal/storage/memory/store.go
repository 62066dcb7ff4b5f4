package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

// Store is an in-memory relational store for development and tests. It
// implements discovery.Store, discovery.PageCache and discovery.AssetCache.
type Store struct {
	mu       sync.RWMutex
	tasks    map[string]discovery.Task
	articles map[string][]discovery.Article
	pages    map[string]discovery.CachedPage
	assets   map[string]discovery.CachedAsset
	now      func() time.Time
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		tasks:    make(map[string]discovery.Task),
		articles: make(map[string][]discovery.Article),
		pages:    make(map[string]discovery.CachedPage),
		assets:   make(map[string]discovery.CachedAsset),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateTask stores a new task.
func (s *Store) CreateTask(_ context.Context, task discovery.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	task.Keywords = slices.Clone(task.Keywords)
	s.tasks[task.ID] = task
	return nil
}

// GetTask fetches a task by ID.
func (s *Store) GetTask(_ context.Context, id string) (discovery.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return discovery.Task{}, discovery.ErrNotFound
	}
	return cloneTask(task), nil
}

// ListTasks returns all tasks, newest first.
func (s *Store) ListTasks(_ context.Context) ([]discovery.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]discovery.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, cloneTask(task))
	}
	slices.SortFunc(out, func(a, b discovery.Task) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// GetStatus returns a task's status.
func (s *Store) GetStatus(_ context.Context, id string) (discovery.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return "", discovery.ErrNotFound
	}
	return task.Status, nil
}

// UpdateStatus sets the status and, when reason is non-empty, the completion reason.
func (s *Store) UpdateStatus(_ context.Context, id string, status discovery.Status, reason string) error {
	return s.mutate(id, func(task *discovery.Task) {
		task.Status = status
		if reason != "" {
			r := reason
			task.CompletionReason = &r
		}
	})
}

// MarkProcessing moves the task to processing only while it is still pending.
func (s *Store) MarkProcessing(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return false, discovery.ErrNotFound
	}
	if task.Status != discovery.StatusPending {
		return false, nil
	}
	task.Status = discovery.StatusProcessing
	task.UpdatedAt = s.now()
	s.tasks[id] = task
	return true, nil
}

// SetKeywords stores the generated keywords.
func (s *Store) SetKeywords(_ context.Context, id string, keywords []string) error {
	return s.mutate(id, func(task *discovery.Task) {
		task.Keywords = slices.Clone(keywords)
	})
}

// SetProcessedCount stores the accepted article count.
func (s *Store) SetProcessedCount(_ context.Context, id string, count int) error {
	return s.mutate(id, func(task *discovery.Task) {
		task.ProcessedCount = count
	})
}

// DeleteTask removes a task and its articles.
func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.articles, id)
	if _, ok := s.tasks[id]; !ok {
		return discovery.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// SweepInterrupted fails every processing or cancelling task.
func (s *Store) SweepInterrupted(_ context.Context, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, task := range s.tasks {
		if task.Status != discovery.StatusProcessing && task.Status != discovery.StatusCancelling {
			continue
		}
		r := reason
		task.Status = discovery.StatusFailed
		task.CompletionReason = &r
		task.UpdatedAt = s.now()
		s.tasks[id] = task
		n++
	}
	return n, nil
}

// InsertArticle appends an article to its task.
func (s *Store) InsertArticle(_ context.Context, article discovery.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[article.TaskID]; !ok {
		return fmt.Errorf("insert article: %w", discovery.ErrNotFound)
	}
	s.articles[article.TaskID] = append(s.articles[article.TaskID], article)
	return nil
}

// ListArticles returns a copy of the task's articles, most similar first.
func (s *Store) ListArticles(_ context.Context, taskID string) ([]discovery.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.articles[taskID])
	if out == nil {
		out = []discovery.Article{}
	}
	slices.SortStableFunc(out, compareSimilarity)
	return out, nil
}

// GetPage returns a cached page.
func (s *Store) GetPage(_ context.Context, key string) (discovery.CachedPage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[key]
	return page, ok, nil
}

// PutPage upserts a cached page.
func (s *Store) PutPage(_ context.Context, page discovery.CachedPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page.Key] = page
	return nil
}

// GetAsset returns a cached asset.
func (s *Store) GetAsset(_ context.Context, url string) (discovery.CachedAsset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[url]
	if ok {
		asset.Data = slices.Clone(asset.Data)
	}
	return asset, ok, nil
}

// HasAsset reports whether an asset is cached.
func (s *Store) HasAsset(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.assets[url]
	return ok, nil
}

// PutAsset upserts a cached asset.
func (s *Store) PutAsset(_ context.Context, asset discovery.CachedAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset.Data = slices.Clone(asset.Data)
	s.assets[asset.URL] = asset
	return nil
}

func (s *Store) mutate(id string, fn func(*discovery.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return discovery.ErrNotFound
	}
	fn(&task)
	task.UpdatedAt = s.now()
	s.tasks[id] = task
	return nil
}

func cloneTask(task discovery.Task) discovery.Task {
	task.Keywords = slices.Clone(task.Keywords)
	if task.Keywords == nil {
		task.Keywords = []string{}
	}
	if task.CompletionReason != nil {
		r := *task.CompletionReason
		task.CompletionReason = &r
	}
	return task
}

func compareSimilarity(a, b discovery.Article) int {
	switch {
	case a.Similarity == nil && b.Similarity == nil:
		return 0
	case a.Similarity == nil:
		return 1
	case b.Similarity == nil:
		return -1
	case *a.Similarity > *b.Similarity:
		return -1
	case *a.Similarity < *b.Similarity:
		return 1
	default:
		return 0
	}
}
