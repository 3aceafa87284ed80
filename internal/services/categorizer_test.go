package services

import (
	"context"
	"errors"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"strings"
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantOK   bool
	}{
		{"exact", "KINH TẾ", models.CategoryEconomy, true},
		{"lower case with newline", "pháp luật\n", models.CategoryLaw, true},
		{"bold markdown", "**THẾ GIỚI**", models.CategoryWorld, true},
		{"embedded in sentence", "Chuyên mục: XÃ HỘI.", models.CategorySociety, true},
		{"unknown label", "TÀI CHÍNH", "", false},
		{"empty", "   ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseCategory(tt.response)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parseCategory(%q) = %q, %v, want %q, %v", tt.response, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPlainDescription(t *testing.T) {
	got := plainDescription(`<p>Giá <b>vàng</b>   tăng</p><img src="x.jpg">`, 100)
	if got != "Giá vàng tăng" {
		t.Errorf("plainDescription() = %q", got)
	}
	if got := plainDescription(strings.Repeat("á", 20), 5); got != "ááááá" {
		t.Errorf("truncated = %q", got)
	}
	if got := plainDescription("", 5); got != "" {
		t.Errorf("empty = %q", got)
	}
}

func TestCategorizerCategorize(t *testing.T) {
	completer := &stubCompleter{fn: func(prompt string, cfg ModelConfig) (string, error) {
		if cfg.Temperature != 0 {
			t.Errorf("temperature = %v, want 0", cfg.Temperature)
		}
		switch {
		case strings.Contains(prompt, "Tiêu đề: Xét xử"):
			return "PHÁP LUẬT", nil
		case strings.Contains(prompt, "Tiêu đề: Hội nghị"):
			return "thế giới", nil
		case strings.Contains(prompt, "Tiêu đề: Lãi suất"):
			return "TÀI CHÍNH", nil
		default:
			return "", errors.New("service unavailable")
		}
	}}
	categorizer := NewCategorizer(completer, testPipelineConfig(), logger.NewDiscard())

	input := []models.Article{
		{URL: "https://a.vn/1", Title: "Xét xử vụ án", Description: "<p>Tòa án</p>"},
		{URL: "https://a.vn/2", Title: "Hội nghị thượng đỉnh"},
		{URL: "https://a.vn/3", Title: "Lãi suất giảm"},
		{URL: "https://a.vn/4", Title: "Tin khác", Category: "KINH TẾ"},
	}

	out, stats := categorizer.Categorize(context.Background(), input, "key")

	want := []string{models.CategoryLaw, models.CategoryWorld, models.CategorySociety, models.CategorySociety}
	for i, article := range out {
		if article.Category != want[i] {
			t.Errorf("article %d category = %q, want %q", i, article.Category, want[i])
		}
	}
	if input[0].Category != "" || input[3].Category != "KINH TẾ" {
		t.Error("caller's slice must not be modified")
	}
	if stats.CompletionCalls != 4 || stats.Defaulted != 2 {
		t.Errorf("stats = %+v, want 4 calls and 2 defaulted", stats)
	}
	for _, prompt := range completer.Prompts() {
		if strings.Contains(prompt, "<p>") {
			t.Error("description markup should be stripped from the prompt")
		}
	}
}

func TestCategorizerWithoutCredential(t *testing.T) {
	completer := &stubCompleter{}
	categorizer := NewCategorizer(completer, testPipelineConfig(), logger.NewDiscard())

	out, stats := categorizer.Categorize(context.Background(), []models.Article{
		{URL: "https://laodong.vn/kinh-te/1.html", Title: "A"},
		{URL: "https://laodong.vn/2.html", Title: "B"},
	}, "")

	if completer.calls.Load() != 0 {
		t.Errorf("completion calls = %d, want 0", completer.calls.Load())
	}
	if stats.Skipped != "no_credential" {
		t.Errorf("skipped = %q", stats.Skipped)
	}
	if out[0].Category != models.CategoryEconomy || out[1].Category != models.CategorySociety {
		t.Errorf("categories = %q, %q", out[0].Category, out[1].Category)
	}
}

func TestCategorizerPausesBetweenBatches(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.CategorizeBatchSize = 2
	cfg.CategorizePause = 50 * time.Millisecond

	completer := &stubCompleter{fn: func(string, ModelConfig) (string, error) { return "XÃ HỘI", nil }}
	categorizer := NewCategorizer(completer, cfg, logger.NewDiscard())

	articles := make([]models.Article, 5)
	for i := range articles {
		articles[i] = models.Article{URL: "https://a.vn/" + string(rune('a'+i)), Title: "T"}
	}

	start := time.Now()
	_, stats := categorizer.Categorize(context.Background(), articles, "key")
	elapsed := time.Since(start)

	// three batches, two pauses
	if elapsed < 100*time.Millisecond {
		t.Errorf("elapsed = %v, want at least two pauses", elapsed)
	}
	if stats.CompletionCalls != 5 || stats.Defaulted != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCategorizerCancelledDefaultsRemaining(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.CategorizeBatchSize = 1
	cfg.CategorizePause = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	completer := &stubCompleter{fn: func(string, ModelConfig) (string, error) {
		cancel()
		return "KINH TẾ", nil
	}}
	categorizer := NewCategorizer(completer, cfg, logger.NewDiscard())

	out, stats := categorizer.Categorize(ctx, []models.Article{
		{URL: "https://a.vn/1", Title: "A"},
		{URL: "https://a.vn/2", Title: "B"},
		{URL: "https://a.vn/3", Title: "C"},
	}, "key")

	if out[0].Category != models.CategoryEconomy {
		t.Errorf("first article = %q", out[0].Category)
	}
	for _, article := range out[1:] {
		if article.Category != models.CategorySociety {
			t.Errorf("unscheduled article category = %q, want default", article.Category)
		}
	}
	if completer.calls.Load() != 1 || stats.Defaulted != 2 {
		t.Errorf("calls = %d, stats = %+v", completer.calls.Load(), stats)
	}
}
