package services

import "newsdigest-pipeline/internal/models"

// MarkExactDuplicates annotates articles whose normalized titles are
// identical. The first article of each such key is the exact master. It
// returns the same slice and is safe to call repeatedly.
func MarkExactDuplicates(articles []models.Article) []models.Article {
	counts := make(map[string]int, len(articles))
	for i := range articles {
		key := models.NormalizeTitleKey(articles[i].Title)
		counts[key]++
	}

	seen := make(map[string]bool, len(counts))
	for i := range articles {
		key := models.NormalizeTitleKey(articles[i].Title)
		if key == "" || counts[key] < 2 {
			articles[i].ExactDuplicateKey = ""
			articles[i].IsExactMaster = false
			continue
		}

		articles[i].ExactDuplicateKey = key
		articles[i].IsExactMaster = !seen[key]
		seen[key] = true
	}

	return articles
}

// CountExactDuplicates returns how many articles are exact followers.
func CountExactDuplicates(articles []models.Article) int {
	n := 0
	for i := range articles {
		if articles[i].ExactDuplicateKey != "" && !articles[i].IsExactMaster {
			n++
		}
	}
	return n
}
