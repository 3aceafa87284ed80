package services

import (
	"context"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"strings"
	"testing"
)

func TestMarkExactDuplicates(t *testing.T) {
	articles := []models.Article{
		{URL: "https://a.vn/1", Title: "Giá vàng tăng"},
		{URL: "https://b.vn/1", Title: "  giá vàng tăng "},
		{URL: "https://c.vn/1", Title: "Tin khác"},
		{URL: "https://d.vn/1", Title: ""},
		{URL: "https://e.vn/1", Title: ""},
	}

	MarkExactDuplicates(articles)

	if !articles[0].IsExactMaster || articles[0].ExactDuplicateKey == "" {
		t.Errorf("first occurrence should be exact master: %+v", articles[0])
	}
	if articles[1].IsExactMaster || articles[1].ExactDuplicateKey != articles[0].ExactDuplicateKey {
		t.Errorf("second occurrence should follow the master: %+v", articles[1])
	}
	for _, i := range []int{2, 3, 4} {
		if articles[i].ExactDuplicateKey != "" || articles[i].IsExactMaster {
			t.Errorf("articles[%d] should not be marked: %+v", i, articles[i])
		}
	}
	if got := CountExactDuplicates(articles); got != 1 {
		t.Errorf("CountExactDuplicates() = %d, want 1", got)
	}

	// idempotent
	MarkExactDuplicates(articles)
	if got := CountExactDuplicates(articles); got != 1 {
		t.Errorf("second pass CountExactDuplicates() = %d, want 1", got)
	}
}

func economyArticles(titles ...string) []models.Article {
	articles := make([]models.Article, len(titles))
	for i, title := range titles {
		articles[i] = models.Article{
			URL:      "https://laodong.vn/kinh-te/" + string(rune('a'+i)) + ".html",
			Title:    title,
			Source:   "LAO ĐỘNG",
			Category: models.CategoryEconomy,
		}
	}
	return articles
}

func TestClusterEngineGroupsArticles(t *testing.T) {
	completer := &stubCompleter{fn: func(string, ModelConfig) (string, error) {
		return "```json\n{\"groups\":[{\"group_id\":\"Gia Vang\",\"article_ids\":[0,2],\"event_summary\":\"Giá vàng tăng mạnh\"}]}\n```", nil
	}}
	engine := NewClusterEngine(completer, testPipelineConfig(), logger.NewDiscard())

	articles := economyArticles("Giá vàng tăng", "Lãi suất giảm", "Vàng lập đỉnh")
	out, stats := engine.Cluster(context.Background(), articles, "key")

	if stats.CompletionCalls != 1 || stats.Fallbacks != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Groups != 2 {
		t.Errorf("groups = %d, want 2", stats.Groups)
	}

	master, member, single := out[0], out[2], out[1]
	if master.GroupID != "gia_vang" || member.GroupID != master.GroupID {
		t.Errorf("group ids = %q, %q", master.GroupID, member.GroupID)
	}
	if !master.IsMaster || member.IsMaster {
		t.Error("first listed article should be the only master")
	}
	if master.DuplicateCount != 1 || member.DuplicateCount != 0 {
		t.Errorf("duplicate counts = %d, %d", master.DuplicateCount, member.DuplicateCount)
	}
	if member.EventSummary != "Giá vàng tăng mạnh" {
		t.Errorf("event summary = %q", member.EventSummary)
	}
	if !single.IsMaster || single.GroupID == master.GroupID || single.EventSummary != single.Title {
		t.Errorf("omitted article should be a singleton: %+v", single)
	}
}

func TestClusterEngineFallsBackToSingletons(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		credential string
		wantCalls  int32
	}{
		{"invalid json", "not json at all", "key", 1},
		{"missing groups", `{"clusters": []}`, "key", 1},
		{"no credential", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &stubCompleter{fn: func(string, ModelConfig) (string, error) { return tt.response, nil }}
			engine := NewClusterEngine(completer, testPipelineConfig(), logger.NewDiscard())

			out, stats := engine.Cluster(context.Background(), economyArticles("A", "B", "C"), tt.credential)

			if completer.calls.Load() != tt.wantCalls {
				t.Errorf("completion calls = %d, want %d", completer.calls.Load(), tt.wantCalls)
			}
			if stats.Groups != 3 {
				t.Errorf("groups = %d, want 3", stats.Groups)
			}
			seen := map[string]bool{}
			for _, article := range out {
				if !article.IsMaster || article.DuplicateCount != 0 || seen[article.GroupID] {
					t.Errorf("not a unique singleton: %+v", article)
				}
				seen[article.GroupID] = true
			}
		})
	}
}

func TestClusterEngineSendsOnlyExactRepresentatives(t *testing.T) {
	completer := &stubCompleter{fn: func(string, ModelConfig) (string, error) {
		return `{"groups":[{"group_id":"same","article_ids":[0,1],"event_summary":"Sự kiện"}]}`, nil
	}}
	engine := NewClusterEngine(completer, testPipelineConfig(), logger.NewDiscard())

	articles := MarkExactDuplicates(economyArticles("Tin trùng lặp", "Tin trùng lặp", "Tin riêng"))
	out, _ := engine.Cluster(context.Background(), articles, "key")

	prompts := completer.Prompts()
	if len(prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(prompts))
	}
	if n := strings.Count(prompts[0], "Tin trùng lặp"); n != 1 {
		t.Errorf("duplicate title appears %d times in prompt, want 1", n)
	}

	for _, article := range out {
		if article.GroupID != "same" {
			t.Errorf("article %s in group %q, want same", article.URL, article.GroupID)
		}
	}
	if out[0].DuplicateCount != 2 || !out[0].IsMaster {
		t.Errorf("master = %+v", out[0])
	}
}

func TestClusterEngineOverflowAndCategories(t *testing.T) {
	completer := &stubCompleter{fn: func(string, ModelConfig) (string, error) {
		return `{"groups":[{"group_id":"g","article_ids":[0,1,7,-1],"event_summary":""}]}`, nil
	}}
	cfg := testPipelineConfig()
	cfg.MaxPerCategory = 2
	engine := NewClusterEngine(completer, cfg, logger.NewDiscard())

	articles := economyArticles("A", "B", "C")
	articles = append(articles,
		models.Article{URL: "https://x.vn/world", Title: "World", Category: "thế giới"},
		models.Article{URL: "https://x.vn/none", Title: "None"},
	)

	out, stats := engine.Cluster(context.Background(), articles, "key")

	if stats.Overflow != 1 {
		t.Errorf("overflow = %d, want 1", stats.Overflow)
	}
	if stats.Categories != 3 {
		t.Errorf("categories = %d, want 3", stats.Categories)
	}
	if stats.CompletionCalls != 1 {
		t.Errorf("only the multi-article bucket should call the model, got %d", stats.CompletionCalls)
	}
	if out[0].GroupID != out[1].GroupID || out[0].EventSummary != "A" {
		t.Errorf("bounded articles should share a group titled by the master: %+v %+v", out[0], out[1])
	}
	if !out[2].IsMaster || out[2].GroupID == out[0].GroupID {
		t.Errorf("overflow article should be a singleton: %+v", out[2])
	}
}

func TestGroupIDAllocator(t *testing.T) {
	ids := newGroupIDAllocator()
	got := []string{ids.allocate("x"), ids.allocate("x"), ids.allocate("x"), ids.allocate("")}
	want := []string{"x", "x_2", "x_3", "group"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("allocate #%d = %q, want %q", i, got[i], want[i])
		}
	}
}
