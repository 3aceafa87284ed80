package routes

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/handlers"
	"newsdigest-pipeline/internal/middleware"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"newsdigest-pipeline/internal/services"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mmcdole/gofeed"
)

type offlineCompleter struct{}

func (offlineCompleter) Complete(ctx context.Context, prompt string, cfg services.ModelConfig, credential string) (string, error) {
	return "", errors.New("offline")
}

type offlineFetcher struct{}

func (offlineFetcher) Fetch(ctx context.Context, url string) (string, error) {
	return "", errors.New("offline")
}

type staticFeedReader map[string]*gofeed.Feed

func (r staticFeedReader) ReadFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	if feed, ok := r[url]; ok {
		return feed, nil
	}
	return nil, errors.New("unknown feed")
}

const laodongEconomy = "https://laodong.vn/rss/kinh-doanh.rss"

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return setupRouterWithFetcher(t, offlineFetcher{})
}

// blockingFetcher holds every fetch until the request is cancelled.
type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context, url string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func setupRouterWithFetcher(t *testing.T, fetcher services.PageFetcher) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	published := time.Date(2025, 6, 10, 7, 0, 0, 0, time.UTC)
	reader := staticFeedReader{
		laodongEconomy: {Items: []*gofeed.Item{{Title: "Giá vàng", Link: "https://laodong.vn/a.html", PublishedParsed: &published}}},
	}

	cfg := &config.Config{
		Completion: config.CompletionConfig{Provider: "gemini"},
		Pipeline: config.PipelineConfig{
			MaxPerCategory:       70,
			MatchHeadlineLimit:   20,
			SummaryConcurrency:   2,
			WaveSize:             5,
			FetchAttempts:        1,
			MinContentLength:     40,
			MaxContentLength:     1000,
			SummaryRetries:       1,
			RunTimeout:           time.Minute,
			MaxArticlesPerRun:    100,
			MaxSummaryURLsPerRun: 10,
		},
		Reference: config.ReferenceConfig{TTL: time.Hour, PerCategory: 20},
		Feeds: config.FeedCatalog{
			Reference:  []config.ReferenceFeed{{Category: models.CategoryEconomy, URL: "https://ref.test/kt.rss"}},
			Newspapers: []config.Newspaper{{Domain: "laodong.vn", Name: "LAO ĐỘNG", Aliases: []string{"lao động"}}},
			Feeds:      []string{laodongEconomy, "https://tuoitre.vn/rss/the-gioi.rss"},
		},
	}
	log := logger.NewDiscard()

	completer := offlineCompleter{}
	cache := services.NewReferenceCache(cfg.Feeds.Reference, reader, cfg.Reference, log)
	orchestrator := services.NewOrchestrator(
		services.NewClusterEngine(completer, cfg.Pipeline, log),
		services.NewCoverageMatcher(cache, completer, cfg.Pipeline, log),
		services.NewSummarizer(fetcher, completer, cfg.Pipeline, cfg.Feeds.Newspapers, log),
		services.NewCategorizer(completer, cfg.Pipeline, log),
		services.NewFeedService(reader, &cfg.Feeds, log),
		cache,
		completer,
		nil,
		cfg,
		log,
	)

	router := gin.New()
	router.Use(middleware.CORSMiddleware([]string{"http://app.test"}))
	router.Use(middleware.LoggingMiddleware(log))
	SetupRoutes(router, Handlers{
		Pipeline:  handlers.NewPipelineHandler(orchestrator, "", log),
		Stream:    handlers.NewStreamHandler(orchestrator, []string{"http://app.test"}, "", log),
		Feed:      handlers.NewFeedHandler(orchestrator, log),
		Run:       handlers.NewRunHandler(orchestrator, log),
		Reference: handlers.NewReferenceHandler(orchestrator, log),
		Health:    handlers.NewHealthHandler(orchestrator, log),
		Metrics:   handlers.NewMetricsHandler(orchestrator, log),
	})
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestRoutesStatusCodes(t *testing.T) {
	router := setupRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"root", http.MethodGet, "/", "", http.StatusOK},
		{"enrich malformed body", http.MethodPost, "/api/v1/articles/enrich", "{", http.StatusBadRequest},
		{"enrich empty list", http.MethodPost, "/api/v1/articles/enrich", `{"articles":[]}`, http.StatusBadRequest},
		{"enrich article without url", http.MethodPost, "/api/v1/articles/enrich", `{"articles":[{"title":"x"}]}`, http.StatusBadRequest},
		{"categorize empty list", http.MethodPost, "/api/v1/articles/categorize", `{"articles":[]}`, http.StatusBadRequest},
		{"summarize invalid url", http.MethodPost, "/api/v1/articles/summarize", `{"urls":["not a url"]}`, http.StatusBadRequest},
		{"summarize too many urls", http.MethodPost, "/api/v1/articles/summarize",
			`{"urls":["https://a.vn/1","https://a.vn/2","https://a.vn/3","https://a.vn/4","https://a.vn/5","https://a.vn/6","https://a.vn/7","https://a.vn/8","https://a.vn/9","https://a.vn/10","https://a.vn/11"]}`,
			http.StatusBadRequest},
		{"fetch feeds bad date", http.MethodPost, "/api/v1/rss/fetch", `{"feed_urls":["https://laodong.vn/rss/kinh-doanh.rss"],"date":"2025-06-10","time_range":"6h00 đến 8h00"}`, http.StatusBadRequest},
		{"match feeds missing names", http.MethodPost, "/api/v1/rss/match", `{}`, http.StatusBadRequest},
		{"unknown run", http.MethodGet, "/api/v1/runs/nope/status", "", http.StatusNotFound},
		{"cancel unknown run", http.MethodDelete, "/api/v1/runs/nope", "", http.StatusNotFound},
		{"active runs", http.MethodGet, "/api/v1/runs/active", "", http.StatusOK},
		{"reference status", http.MethodGet, "/api/v1/reference/status", "", http.StatusOK},
		{"reference refresh with every feed down", http.MethodPost, "/api/v1/reference/refresh", "", http.StatusBadGateway},
		{"health", http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{"liveness", http.MethodGet, "/api/v1/health/live", "", http.StatusOK},
		{"readiness", http.MethodGet, "/api/v1/health/ready", "", http.StatusOK},
		{"metrics", http.MethodGet, "/api/v1/metrics", "", http.StatusOK},
		{"pipeline metrics", http.MethodGet, "/api/v1/metrics/pipeline", "", http.StatusOK},
		{"system metrics", http.MethodGet, "/api/v1/metrics/system", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, tt.method, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID header")
			}
		})
	}
}

func TestCategorizeWithoutCredential(t *testing.T) {
	router := setupRouter(t)

	body := `{"articles":[
		{"url":"https://laodong.vn/phap-luat/a.html","title":"Xét xử vụ án"},
		{"url":"https://tuoitre.vn/the-gioi/b.html","title":"Hội nghị thượng đỉnh"},
		{"url":"https://tuoitre.vn/c.html","title":"Thời tiết"}
	]}`
	w := doJSON(router, http.MethodPost, "/api/v1/articles/categorize", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data models.CategorizeResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	want := []string{models.CategoryLaw, models.CategoryWorld, models.CategorySociety}
	if len(resp.Data.Articles) != len(want) {
		t.Fatalf("articles = %d, want %d", len(resp.Data.Articles), len(want))
	}
	for i, article := range resp.Data.Articles {
		if article.Category != want[i] {
			t.Errorf("article %d category = %q, want %q", i, article.Category, want[i])
		}
	}
	if resp.Data.RunID == "" {
		t.Error("missing run id")
	}
}

func TestEnrichWithoutCredential(t *testing.T) {
	router := setupRouter(t)

	body := `{"articles":[
		{"url":"https://laodong.vn/a.html","title":"Giá vàng tăng","category":"KINH TẾ"},
		{"url":"https://tuoitre.vn/b.html","title":"giá vàng tăng","category":"KINH TẾ"}
	]}`
	w := doJSON(router, http.MethodPost, "/api/v1/articles/enrich", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Run-ID") == "" {
		t.Error("missing X-Run-ID header")
	}

	var resp struct {
		Success bool                  `json:"success"`
		Data    models.EnrichResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || len(resp.Data.Articles) != 2 || resp.Data.Groups != 2 {
		t.Errorf("response = %+v", resp)
	}
	for _, article := range resp.Data.Articles {
		if article.OfficialSourceLink != nil || !article.IsMaster {
			t.Errorf("article = %+v", article)
		}
	}

	status := doJSON(router, http.MethodGet, "/api/v1/runs/"+resp.Data.RunID+"/status", "")
	if status.Code != http.StatusOK {
		t.Errorf("run status code = %d", status.Code)
	}
}

func TestFeedEndpoints(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/rss/match", `{"newspapers":"Lao Động, báo lạ"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("match status = %d", w.Code)
	}
	var match struct {
		Data models.MatchFeedsResponse `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &match)
	if match.Data.Count != 1 || match.Data.Feeds[0] != laodongEconomy {
		t.Errorf("matched = %+v", match.Data)
	}

	w = doJSON(router, http.MethodPost, "/api/v1/rss/fetch",
		`{"feed_urls":["`+laodongEconomy+`"],"date":"10/06/2025","time_range":"6h00 đến 8h00"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("fetch status = %d, body = %s", w.Code, w.Body.String())
	}
	var fetched struct {
		Data models.FetchFeedsResponse `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &fetched)
	if fetched.Data.Count != 1 || fetched.Data.Articles[0].Source != "LAO ĐỘNG" {
		t.Errorf("fetched = %+v", fetched.Data)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := setupRouter(t)

	tests := []struct {
		origin    string
		wantAllow string
	}{
		{"http://app.test", "http://app.test"},
		{"http://evil.test", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/articles/enrich", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("status = %d", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("allow origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func readSSE(t *testing.T, resp *http.Response) []models.StreamEvent {
	t.Helper()
	var events []models.StreamEvent
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event models.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func TestStreamEndpoints(t *testing.T) {
	server := httptest.NewServer(setupRouter(t))
	defer server.Close()

	tests := []struct {
		name         string
		path         string
		body         string
		wantTerminal string
	}{
		{
			name:         "enrich",
			path:         "/api/v1/articles/enrich/stream",
			body:         `{"articles":[{"url":"https://laodong.vn/a.html","title":"A","category":"KINH TẾ"}]}`,
			wantTerminal: models.StageComplete,
		},
		{
			name:         "summarize",
			path:         "/api/v1/articles/summarize/stream",
			body:         `{"urls":["https://laodong.vn/kinh-te/a.html"]}`,
			wantTerminal: models.StageComplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+tt.path, "application/json", bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
				t.Errorf("content type = %q", ct)
			}

			events := readSSE(t, resp)
			if len(events) < 2 {
				t.Fatalf("events = %+v", events)
			}
			last := events[len(events)-1]
			if last.Step != tt.wantTerminal {
				t.Errorf("terminal step = %s, want %s", last.Step, tt.wantTerminal)
			}
			for _, event := range events[:len(events)-1] {
				if event.IsTerminal() {
					t.Errorf("terminal event before the end: %+v", event)
				}
			}
		})
	}
}

func TestWebsocketPipeline(t *testing.T) {
	server := httptest.NewServer(setupRouter(t))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws/pipeline"

	t.Run("enrich", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://app.test"}})
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		request := models.PipelineSocketRequest{
			Action:   "enrich",
			Articles: []models.Article{{URL: "https://laodong.vn/a.html", Title: "A", Category: models.CategoryEconomy}},
		}
		if err := conn.WriteJSON(request); err != nil {
			t.Fatal(err)
		}

		var last models.StreamEvent
		for {
			var event models.StreamEvent
			if err := conn.ReadJSON(&event); err != nil {
				break
			}
			last = event
			if event.IsTerminal() {
				break
			}
		}
		if last.Step != models.StageComplete || len(last.Articles) != 1 {
			t.Errorf("last event = %+v", last)
		}
	})

	t.Run("client frame cancels run", func(t *testing.T) {
		slow := httptest.NewServer(setupRouterWithFetcher(t, blockingFetcher{}))
		defer slow.Close()

		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(slow.URL, "http")+"/api/v1/ws/pipeline", nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		request := models.PipelineSocketRequest{Action: "summarize", URLs: []string{"https://laodong.vn/kinh-te/1.html"}}
		if err := conn.WriteJSON(request); err != nil {
			t.Fatal(err)
		}

		var first models.StreamEvent
		if err := conn.ReadJSON(&first); err != nil {
			t.Fatal(err)
		}
		if first.IsTerminal() {
			t.Fatalf("run finished before the cancel frame: %+v", first)
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte("stop")); err != nil {
			t.Fatal(err)
		}

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var last models.StreamEvent
		for {
			var event models.StreamEvent
			if err := conn.ReadJSON(&event); err != nil {
				t.Fatalf("stream ended without a terminal event: %v", err)
			}
			if event.IsTerminal() {
				last = event
				break
			}
		}
		if last.Step != models.StageError {
			t.Errorf("last event = %+v, want error after cancel", last)
		}
	})

	t.Run("invalid action", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		if err := conn.WriteJSON(map[string]string{"action": "delete"}); err != nil {
			t.Fatal(err)
		}
		var event models.StreamEvent
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatal(err)
		}
		if event.Step != models.StageError {
			t.Errorf("event = %+v", event)
		}
	})
}
