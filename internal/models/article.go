package models

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Fixed topic set used for grouping, matching and rendering.
const (
	CategoryEconomy = "KINH TẾ"
	CategoryLaw     = "PHÁP LUẬT"
	CategorySociety = "XÃ HỘI"
	CategoryWorld   = "THẾ GIỚI"

	// CategoryOther buckets articles that arrive without a category.
	CategoryOther = "KHÁC"
)

var Categories = []string{CategoryEconomy, CategoryLaw, CategorySociety, CategoryWorld}

var upperVietnamese = cases.Upper(language.Vietnamese)

// Article is the unit of work. Enrichment fields are filled in stage by stage.
type Article struct {
	URL         string `json:"url" validate:"required"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Source      string `json:"source,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`

	GroupID            string  `json:"group_id,omitempty"`
	IsMaster           bool    `json:"is_master"`
	DuplicateCount     int     `json:"duplicate_count"`
	EventSummary       string  `json:"event_summary,omitempty"`
	OfficialSourceLink *string `json:"official_source_link"`

	ExactDuplicateKey string `json:"-"`
	IsExactMaster     bool   `json:"-"`
}

// MarkSingleton makes the article the sole member of its own group.
func (a *Article) MarkSingleton(groupID, summary string) {
	a.GroupID = groupID
	a.IsMaster = true
	a.DuplicateCount = 0
	a.EventSummary = summary
}

// GroupCategory is the bucket key used when partitioning by category.
func (a *Article) GroupCategory() string {
	if c := NormalizeCategory(a.Category); c != "" {
		return c
	}
	return CategoryOther
}

// Cluster is a same-event grouping. It only lives inside one clustering pass.
type Cluster struct {
	GroupID      string
	Members      []int
	EventSummary string
}

type ReferenceHeadline struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Category  string `json:"category"`
	Published string `json:"published"`
}

// ArticleMeta is the optional per-URL metadata handed to summarization.
type ArticleMeta struct {
	Source   string `json:"source,omitempty"`
	Category string `json:"category,omitempty"`
	Title    string `json:"title,omitempty"`
}

// NormalizeURL trims whitespace and trailing slashes so URLs can be used as keys.
func NormalizeURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// NormalizeCategory returns the NFC, upper-cased form of a category label.
func NormalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return ""
	}
	return upperVietnamese.String(norm.NFC.String(category))
}

// NormalizeTitleKey is the exact-duplicate key of a title.
func NormalizeTitleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(title)))
}

func StringPtr(s string) *string {
	return &s
}

// MergeArticleMeta builds a metadata map keyed by normalized url from
// articles, then overlays explicit entries.
func MergeArticleMeta(explicit map[string]ArticleMeta, articles []Article) map[string]ArticleMeta {
	merged := make(map[string]ArticleMeta, len(explicit)+len(articles))
	for _, article := range articles {
		if article.URL == "" {
			continue
		}
		merged[NormalizeURL(article.URL)] = ArticleMeta{
			Source:   article.Source,
			Category: article.Category,
			Title:    article.Title,
		}
	}
	for url, meta := range explicit {
		merged[NormalizeURL(url)] = meta
	}
	return merged
}
