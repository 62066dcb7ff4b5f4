package chromedprender

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{MaxParallel: -1}, nil); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	r, err := New(Config{MaxParallel: 2}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()
	if cap(r.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(r.limiter))
	}
}

func TestTimeoutDefault(t *testing.T) {
	t.Parallel()

	r := &Renderer{}
	if got := r.timeout(); got != defaultTimeout {
		t.Fatalf("expected default timeout, got %v", got)
	}
	r.cfg.Timeout = time.Second
	if got := r.timeout(); got != time.Second {
		t.Fatalf("expected override to be used, got %v", got)
	}
}

func TestAcquireWaitsForSlot(t *testing.T) {
	t.Parallel()

	r := &Renderer{limiter: make(chan struct{}, 1)}
	if err := r.acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	r.release()
	if err := r.acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestReleaseWithoutLimiter(t *testing.T) {
	t.Parallel()

	r := &Renderer{}
	if err := r.acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	r.release()
}

func TestDocumentEscapesTitle(t *testing.T) {
	t.Parallel()

	doc := Document(`Q3 <report> & "notes"`, `<p>body</p>`)
	if !strings.Contains(doc, "<title>Q3 &lt;report&gt; &amp; &#34;notes&#34;</title>") {
		t.Fatalf("title not escaped: %s", doc)
	}
	if !strings.Contains(doc, "<body>\n<p>body</p>\n</body>") {
		t.Fatalf("body not embedded verbatim: %s", doc)
	}
}
