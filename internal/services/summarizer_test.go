package services

import (
	"context"
	"errors"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"strings"
	"sync"
	"testing"
)

type recordingObserver struct {
	mu     sync.Mutex
	starts []int
	dones  []int
	failed int
}

func (r *recordingObserver) OnWaveStart(index, total int, urls []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, index)
}

func (r *recordingObserver) OnWaveDone(index, total, succeeded, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dones = append(r.dones, index)
	r.failed += failed
}

func TestSummarizerSummarize(t *testing.T) {
	const (
		goodURL   = "https://laodong.vn/kinh-te/good.html"
		shortURL  = "https://tuoitre.vn/the-gioi/short.html"
		brokenURL = "https://dantri.com.vn/phap-luat/broken.html"
		failURL   = "https://laodong.vn/xa-hoi/fail.html"
	)

	fetcher := &stubFetcher{fn: func(url string) (string, error) {
		switch url {
		case goodURL, failURL:
			return articlePage(longText("tin")), nil
		case shortURL:
			return "<html><body><p>Ảnh</p></body></html>", nil
		default:
			return "", errors.New("connection reset")
		}
	}}
	completer := &stubCompleter{fn: func(prompt string, cfg ModelConfig) (string, error) {
		if strings.Contains(prompt, failURL) {
			return "", errors.New("safety block")
		}
		return "\n### [Giá vàng](" + goodURL + ")\n**Nguồn:** LAO ĐỘNG\n\n- Tóm tắt\n", nil
	}}

	summarizer := NewSummarizer(fetcher, completer, testPipelineConfig(), testNewspapers(), logger.NewDiscard())
	observer := &recordingObserver{}

	var (
		progressMu   sync.Mutex
		lastComplete int
	)
	opts := SummarizeOptions{
		Observer: observer,
		Progress: func(completed, total int, url string, status models.ProgressStatus) {
			progressMu.Lock()
			defer progressMu.Unlock()
			if status == models.ProgressCompleted {
				lastComplete = completed
			}
		},
	}

	metadata := map[string]models.ArticleMeta{
		goodURL: {Source: "LAO ĐỘNG", Category: "kinh tế", Title: "Giá vàng"},
	}
	urls := []string{goodURL, shortURL, brokenURL, failURL}

	report := summarizer.Summarize(context.Background(), urls, metadata, "key", opts)

	if report.Succeeded != 3 || report.Failed != 1 {
		t.Fatalf("succeeded/failed = %d/%d, want 3/1", report.Succeeded, report.Failed)
	}

	good := report.Results[0]
	if !good.OK() || good.Category != models.CategoryEconomy || strings.HasPrefix(good.Text, "\n") {
		t.Errorf("good result = %+v", good)
	}

	short := report.Results[1]
	if !short.OK() || !strings.Contains(short.Text, "Tiêu đề bài viết") || !strings.Contains(short.Text, "TUỔI TRẺ") {
		t.Errorf("short page should render a fallback block: %+v", short)
	}
	if short.Category != models.CategoryWorld {
		t.Errorf("short category = %q, inferred from url", short.Category)
	}

	broken := report.Results[2]
	if !broken.OK() || !strings.Contains(broken.Text, brokenURL) {
		t.Errorf("unreachable page should render a fallback block: %+v", broken)
	}

	failed := report.Results[3]
	if failed.OK() || !strings.HasPrefix(failed.Error, summaryErrorPrefix) {
		t.Errorf("failed result = %+v", failed)
	}

	if fetcher.calls.Load() != 6 {
		t.Errorf("fetch calls = %d, want 6 (short and broken pages retried once)", fetcher.calls.Load())
	}
	if len(observer.starts) != 2 || len(observer.dones) != 2 || observer.failed != 1 {
		t.Errorf("observer = %+v", observer)
	}
	if lastComplete != len(urls) {
		t.Errorf("last completed = %d, want %d", lastComplete, len(urls))
	}
	if !strings.Contains(report.Text, "Không thể tóm tắt (1 bài)") {
		t.Errorf("report text missing failure section:\n%s", report.Text)
	}
}

func TestSummarizerRetriesRateLimits(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		wantOK    bool
		wantCalls int32
	}{
		{"recovers after rate limit", 2, &CompletionError{Kind: CompletionRateLimited, Provider: "gemini", Err: errors.New("429")}, true, 3},
		{"gives up after retries", 5, &CompletionError{Kind: CompletionRateLimited, Provider: "gemini", Err: errors.New("429")}, false, 3},
		{"other errors are not retried", 5, errors.New("bad request"), false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempt int
			var mu sync.Mutex
			completer := &stubCompleter{fn: func(string, ModelConfig) (string, error) {
				mu.Lock()
				defer mu.Unlock()
				attempt++
				if attempt <= tt.failures {
					return "", tt.err
				}
				return "### ok", nil
			}}
			fetcher := &stubFetcher{fn: func(string) (string, error) { return articlePage(longText("nội dung")), nil }}
			summarizer := NewSummarizer(fetcher, completer, testPipelineConfig(), nil, logger.NewDiscard())

			report := summarizer.Summarize(context.Background(), []string{"https://x.vn/a"}, nil, "key", SummarizeOptions{})

			if report.Results[0].OK() != tt.wantOK {
				t.Errorf("result = %+v", report.Results[0])
			}
			if completer.calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", completer.calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestSummarizerCancelled(t *testing.T) {
	fetcher := &stubFetcher{fn: func(string) (string, error) { return articlePage(longText("tin")), nil }}
	completer := &stubCompleter{fn: func(string, ModelConfig) (string, error) { return "### ok", nil }}
	summarizer := NewSummarizer(fetcher, completer, testPipelineConfig(), nil, logger.NewDiscard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	urls := []string{"https://x.vn/1", "https://x.vn/2", "https://x.vn/3"}
	report := summarizer.Summarize(ctx, urls, nil, "key", SummarizeOptions{})

	if report.Failed != len(urls) {
		t.Errorf("failed = %d, want %d", report.Failed, len(urls))
	}
	if completer.calls.Load() != 0 {
		t.Errorf("no completions expected after cancellation, got %d", completer.calls.Load())
	}
	for _, result := range report.Results {
		if result.URL == "" || !strings.HasPrefix(result.Error, summaryErrorPrefix) {
			t.Errorf("result = %+v", result)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	results := []models.SummarizationResult{
		models.NewSummarySuccess("https://a", models.CategoryWorld, "W1"),
		models.NewSummarySuccess("https://b", models.CategoryEconomy, "E1"),
		models.NewSummaryFailure("https://c", "Lỗi xử lý: timeout"),
		models.NewSummarySuccess("https://d", models.CategoryEconomy, "E2"),
	}

	want := strings.Join([]string{
		"## 1. Chuyên mục KINH TẾ (2 bài)",
		"E1",
		"E2",
		"",
		"## 2. Chuyên mục THẾ GIỚI (1 bài)",
		"W1",
		"",
		"---",
		"### ⚠️ Không thể tóm tắt (1 bài)",
		"- [https://c](https://c): Lỗi xử lý: timeout",
	}, "\n\n")

	if got := RenderSummary(results); got != want {
		t.Errorf("RenderSummary() =\n%s\nwant\n%s", got, want)
	}

	if got := RenderSummary(nil); got != "" {
		t.Errorf("empty render = %q", got)
	}
}

func TestResolveMeta(t *testing.T) {
	summarizer := NewSummarizer(nil, nil, testPipelineConfig(), testNewspapers(), logger.NewDiscard())

	tests := []struct {
		name     string
		url      string
		metadata map[string]models.ArticleMeta
		want     models.ArticleMeta
	}{
		{
			name:     "normalized key lookup",
			url:      "https://tuoitre.vn/phap-luat/x.html/",
			metadata: map[string]models.ArticleMeta{"https://tuoitre.vn/phap-luat/x.html": {Title: "T"}},
			want:     models.ArticleMeta{Title: "T", Category: models.CategoryLaw, Source: "TUỔI TRẺ"},
		},
		{
			name: "defaults for unknown host",
			url:  "https://other.vn/kinh-te/x.html",
			want: models.ArticleMeta{Title: defaultSummaryTitle, Category: models.CategoryEconomy, Source: defaultSummarySource},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summarizer.resolveMeta(tt.url, tt.metadata); got != tt.want {
				t.Errorf("resolveMeta() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
