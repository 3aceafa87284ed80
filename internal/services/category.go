package services

import (
	"net/url"
	"newsdigest-pipeline/internal/config"
	"newsdigest-pipeline/internal/models"
	"strings"
)

type categoryKeywords struct {
	category string
	keywords []string
}

// Checked in order; the first list with a hit wins.
var urlCategoryKeywords = []categoryKeywords{
	{models.CategoryLaw, []string{"phap-luat", "phapluat", "phap_luat"}},
	{models.CategoryEconomy, []string{"kinh-te", "kinhte", "kinh-doanh", "kinhdoanh", "kinh_te"}},
	{models.CategorySociety, []string{"xa-hoi", "xahoi", "doi-song", "doisong", "xa_hoi", "thoi-su", "thoisu"}},
	{models.CategoryWorld, []string{"the-gioi", "thegioi", "the_gioi", "quoc-te", "quocte"}},
}

// CategoryFromURL infers the category from keywords in a feed or article
// URL, defaulting to XÃ HỘI.
func CategoryFromURL(rawURL string) string {
	lower := strings.ToLower(rawURL)
	for _, entry := range urlCategoryKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(lower, keyword) {
				return entry.category
			}
		}
	}
	return models.CategorySociety
}

// SourceName returns the catalog display name of the newspaper a URL belongs
// to, or the upper-cased host when no catalog domain matches.
func SourceName(rawURL string, newspapers []config.Newspaper) string {
	if name := catalogSourceName(rawURL, newspapers); name != "" {
		return name
	}

	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Hostname() == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(strings.TrimPrefix(parsed.Hostname(), "www."))
}

// catalogSourceName returns "" when no catalog domain occurs in the URL.
func catalogSourceName(rawURL string, newspapers []config.Newspaper) string {
	lower := strings.ToLower(rawURL)
	for _, paper := range newspapers {
		if paper.Domain != "" && strings.Contains(lower, strings.ToLower(paper.Domain)) {
			return paper.Name
		}
	}
	return ""
}

// resolveNewspaperDomains maps comma-separated newspaper names to catalog
// domains. Names are compared case-insensitively against the display name,
// the aliases and the domain itself.
func resolveNewspaperDomains(names string, newspapers []config.Newspaper) []string {
	var domains []string
	seen := make(map[string]bool)

	for _, raw := range strings.Split(names, ",") {
		name := models.NormalizeTitleKey(raw)
		if name == "" {
			continue
		}
		for _, paper := range newspapers {
			if seen[paper.Domain] || !newspaperMatches(name, paper) {
				continue
			}
			seen[paper.Domain] = true
			domains = append(domains, paper.Domain)
		}
	}
	return domains
}

func newspaperMatches(name string, paper config.Newspaper) bool {
	if name == models.NormalizeTitleKey(paper.Name) || name == strings.ToLower(paper.Domain) {
		return true
	}
	for _, alias := range paper.Aliases {
		if name == models.NormalizeTitleKey(alias) {
			return true
		}
	}
	return false
}
