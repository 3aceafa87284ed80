package services

import (
	"context"
	"fmt"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"regexp"
	"strings"
	"time"
)

const serviceClusterEngine = "cluster_engine"

type ClusterEngine struct {
	completer Completer
	config    config.PipelineConfig
	logger    *logger.Logger
}

// ClusterStats summarizes one clustering pass.
type ClusterStats struct {
	Categories      int
	Groups          int
	CompletionCalls int
	Fallbacks       int
	Overflow        int
}

func NewClusterEngine(completer Completer, cfg config.PipelineConfig, log *logger.Logger) *ClusterEngine {
	return &ClusterEngine{
		completer: completer,
		config:    cfg,
		logger:    log,
	}
}

// Cluster stamps group_id, is_master, duplicate_count and event_summary on
// every article. Articles are processed per category in first-appearance
// order. Any completion or parse failure degrades that category to
// singleton groups.
func (engine *ClusterEngine) Cluster(ctx context.Context, articles []models.Article, credential string) ([]models.Article, ClusterStats) {
	startTime := time.Now()
	stats := ClusterStats{}
	ids := newGroupIDAllocator()

	order, buckets := partitionByCategory(articles)
	stats.Categories = len(order)

	for _, category := range order {
		indices := buckets[category]

		if len(indices) <= 1 || credential == "" {
			stats.Groups += engine.assignSingletons(articles, indices, ids)
			continue
		}

		bounded := indices
		if len(indices) > engine.config.MaxPerCategory {
			bounded = indices[:engine.config.MaxPerCategory]
			overflow := indices[engine.config.MaxPerCategory:]
			stats.Overflow += len(overflow)
			stats.Groups += engine.assignSingletons(articles, overflow, ids)

			engine.logger.WithFields(logger.Fields{
				"category": category,
				"total":    len(indices),
				"limit":    engine.config.MaxPerCategory,
			}).Warn("Category exceeds clustering limit, tail kept as singletons")
		}

		groups, called, err := engine.clusterCategory(ctx, articles, bounded, category, credential)
		if called {
			stats.CompletionCalls++
		}
		if err != nil {
			stats.Fallbacks++
			engine.logger.WithFields(logger.Fields{
				"category": category,
				"articles": len(bounded),
			}).WithError(err).Warn("Clustering failed, falling back to singletons")
			stats.Groups += engine.assignSingletons(articles, bounded, ids)
			continue
		}

		for _, cluster := range groups {
			engine.applyCluster(articles, cluster, ids)
		}
		stats.Groups += len(groups)
	}

	engine.logger.LogService(serviceClusterEngine, "cluster", time.Since(startTime), map[string]interface{}{
		"articles":         len(articles),
		"categories":       stats.Categories,
		"groups":           stats.Groups,
		"completion_calls": stats.CompletionCalls,
		"fallbacks":        stats.Fallbacks,
		"overflow":         stats.Overflow,
	}, nil)

	return articles, stats
}

// clusterCategory returns the clusters for one bounded bucket. Only the
// first article of each exact-duplicate key is shown to the model; the
// others follow it into whatever group it lands in.
func (engine *ClusterEngine) clusterCategory(ctx context.Context, articles []models.Article, bounded []int, category, credential string) ([]models.Cluster, bool, error) {
	representatives, followers := collapseExactDuplicates(articles, bounded)

	if len(representatives) <= 1 {
		clusters := make([]models.Cluster, 0, len(representatives))
		for _, rep := range representatives {
			clusters = append(clusters, models.Cluster{
				Members:      append([]int{rep}, followers[rep]...),
				EventSummary: articles[rep].Title,
			})
		}
		return clusters, false, nil
	}

	prompt := buildClusterPrompt(articles, representatives)
	response, err := engine.completer.Complete(ctx, prompt, ModelConfig{
		Temperature: engine.config.ClusterTemperature,
		MaxTokens:   engine.config.ClusterMaxTokens,
		JSON:        true,
	}, credential)
	if err != nil {
		return nil, true, err
	}

	switch parsed := parseClusterResponse(response).(type) {
	case ParsedClusterResponse:
		clusters := assignClusters(articles, representatives, followers, parsed.Groups)
		engine.logger.WithFields(logger.Fields{
			"category":        category,
			"submitted":       len(representatives),
			"returned_groups": len(parsed.Groups),
			"clusters":        len(clusters),
		}).Debug("Category clustered")
		return clusters, true, nil
	case ParseFailure:
		return nil, true, parsed
	default:
		return nil, true, fmt.Errorf("unexpected parse result %T", parsed)
	}
}

// assignClusters turns the model's groups into clusters over article
// indices. Out-of-range and already-claimed positions are ignored. The first
// valid position of a group is its master. Representatives the model left
// out become their own clusters.
func assignClusters(articles []models.Article, representatives []int, followers map[int][]int, groups []ClusterGroup) []models.Cluster {
	claimed := make([]bool, len(representatives))
	clusters := make([]models.Cluster, 0, len(groups))

	for _, group := range groups {
		var members []int
		for _, position := range group.ArticleIDs {
			if position < 0 || position >= len(representatives) || claimed[position] {
				continue
			}
			claimed[position] = true
			rep := representatives[position]
			members = append(members, rep)
			members = append(members, followers[rep]...)
		}
		if len(members) == 0 {
			continue
		}

		summary := strings.TrimSpace(group.EventSummary)
		if summary == "" {
			summary = articles[members[0]].Title
		}

		clusters = append(clusters, models.Cluster{
			GroupID:      group.GroupID,
			Members:      members,
			EventSummary: summary,
		})
	}

	for position, rep := range representatives {
		if claimed[position] {
			continue
		}
		clusters = append(clusters, models.Cluster{
			Members:      append([]int{rep}, followers[rep]...),
			EventSummary: articles[rep].Title,
		})
	}

	return clusters
}

func (engine *ClusterEngine) applyCluster(articles []models.Article, cluster models.Cluster, ids *groupIDAllocator) {
	master := cluster.Members[0]

	base := slugify(cluster.GroupID)
	if base == "" {
		base = models.NormalizeURL(articles[master].URL)
	}
	groupID := ids.allocate(base)

	for i, idx := range cluster.Members {
		articles[idx].GroupID = groupID
		articles[idx].IsMaster = i == 0
		articles[idx].DuplicateCount = 0
		articles[idx].EventSummary = cluster.EventSummary
	}
	articles[master].DuplicateCount = len(cluster.Members) - 1
}

func (engine *ClusterEngine) assignSingletons(articles []models.Article, indices []int, ids *groupIDAllocator) int {
	for _, idx := range indices {
		groupID := ids.allocate(models.NormalizeURL(articles[idx].URL))
		articles[idx].MarkSingleton(groupID, articles[idx].Title)
	}
	return len(indices)
}

// partitionByCategory buckets article indices by category, keeping the order
// in which categories first appear.
func partitionByCategory(articles []models.Article) ([]string, map[string][]int) {
	var order []string
	buckets := make(map[string][]int)
	for i := range articles {
		category := articles[i].GroupCategory()
		if _, ok := buckets[category]; !ok {
			order = append(order, category)
		}
		buckets[category] = append(buckets[category], i)
	}
	return order, buckets
}

// collapseExactDuplicates keeps the first index of every exact-duplicate key
// and maps it to the indices that share its key.
func collapseExactDuplicates(articles []models.Article, indices []int) ([]int, map[int][]int) {
	representatives := make([]int, 0, len(indices))
	followers := make(map[int][]int)
	byKey := make(map[string]int)

	for _, idx := range indices {
		key := articles[idx].ExactDuplicateKey
		if key == "" {
			representatives = append(representatives, idx)
			continue
		}
		if rep, ok := byKey[key]; ok {
			followers[rep] = append(followers[rep], idx)
			continue
		}
		byKey[key] = idx
		representatives = append(representatives, idx)
	}

	return representatives, followers
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9_\-]+`)

func slugify(raw string) string {
	slug := strings.ToLower(strings.TrimSpace(raw))
	slug = strings.ReplaceAll(slug, " ", "_")
	slug = slugInvalid.ReplaceAllString(slug, "")
	return strings.Trim(slug, "_-")
}

// groupIDAllocator hands out group ids that are unique within one run.
type groupIDAllocator struct {
	taken map[string]bool
	next  map[string]int
}

func newGroupIDAllocator() *groupIDAllocator {
	return &groupIDAllocator{
		taken: make(map[string]bool),
		next:  make(map[string]int),
	}
}

func (a *groupIDAllocator) allocate(base string) string {
	if base == "" {
		base = "group"
	}
	if !a.taken[base] {
		a.taken[base] = true
		return base
	}

	n := a.next[base]
	if n < 2 {
		n = 2
	}
	for {
		candidate := fmt.Sprintf("%s_%d", base, n)
		n++
		if !a.taken[candidate] {
			a.taken[candidate] = true
			a.next[base] = n
			return candidate
		}
	}
}
