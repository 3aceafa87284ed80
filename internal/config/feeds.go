package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FeedCatalog is the YAML feed configuration:
//
//	reference:
//	  - category: KINH TẾ
//	    url: https://nhandan.vn/rss/kinhte-1185.rss
//	newspapers:
//	  - domain: laodong.vn
//	    name: LAO ĐỘNG
//	    aliases: [lao động, laodong]
//	feeds:
//	  - https://laodong.vn/rss/thoi-su.rss
type FeedCatalog struct {
	Reference  []ReferenceFeed `yaml:"reference" json:"reference"`
	Newspapers []Newspaper     `yaml:"newspapers" json:"newspapers"`
	Feeds      []string        `yaml:"feeds" json:"feeds"`
}

// ReferenceFeed is one category feed of the authoritative outlet.
type ReferenceFeed struct {
	Category string `yaml:"category" json:"category"`
	URL      string `yaml:"url" json:"url"`
}

type Newspaper struct {
	Domain  string   `yaml:"domain" json:"domain"`
	Name    string   `yaml:"name" json:"name"`
	Aliases []string `yaml:"aliases" json:"aliases"`
}

// LoadFeedCatalog reads the feed catalog from a YAML file. A missing file
// yields the built-in catalog.
func LoadFeedCatalog(path string) (*FeedCatalog, error) {
	if path == "" {
		return DefaultFeedCatalog(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultFeedCatalog(), nil
		}
		return nil, err
	}
	defer f.Close()

	var catalog FeedCatalog
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	defaults := DefaultFeedCatalog()
	if len(catalog.Reference) == 0 {
		catalog.Reference = defaults.Reference
	}
	if len(catalog.Newspapers) == 0 {
		catalog.Newspapers = defaults.Newspapers
	}
	if len(catalog.Feeds) == 0 {
		catalog.Feeds = defaults.Feeds
	}

	for i := range catalog.Reference {
		catalog.Reference[i].Category = strings.TrimSpace(catalog.Reference[i].Category)
		catalog.Reference[i].URL = strings.TrimSpace(catalog.Reference[i].URL)
	}

	return &catalog, nil
}

func DefaultFeedCatalog() *FeedCatalog {
	return &FeedCatalog{
		Reference: []ReferenceFeed{
			{Category: "KINH TẾ", URL: "https://nhandan.vn/rss/kinhte-1185.rss"},
			{Category: "PHÁP LUẬT", URL: "https://nhandan.vn/rss/phapluat-1287.rss"},
			{Category: "XÃ HỘI", URL: "https://nhandan.vn/rss/xahoi-1211.rss"},
			{Category: "THẾ GIỚI", URL: "https://nhandan.vn/rss/thegioi-1231.rss"},
		},
		Newspapers: []Newspaper{
			{Domain: "laodong.vn", Name: "LAO ĐỘNG", Aliases: []string{"lao động", "laodong"}},
			{Domain: "dantri.com.vn", Name: "DÂN TRÍ", Aliases: []string{"dân trí", "dantri"}},
			{Domain: "vtv.vn", Name: "VTV NEWS", Aliases: []string{"vtv"}},
			{Domain: "hanoimoi.vn", Name: "HÀ NỘI MỚI", Aliases: []string{"hà nội mới", "hanoimoi"}},
			{Domain: "sggp.org.vn", Name: "SGGP", Aliases: []string{"sài gòn giải phóng", "sggp"}},
			{Domain: "vietnamplus.vn", Name: "VIETNAMPLUS", Aliases: []string{"vietnamplus", "vietnam plus"}},
			{Domain: "tienphong.vn", Name: "TIỀN PHONG", Aliases: []string{"tiền phong", "tienphong"}},
			{Domain: "vov.vn", Name: "VOV", Aliases: []string{"vov"}},
			{Domain: "baotintuc.vn", Name: "BÁO TIN TỨC", Aliases: []string{"báo tin tức", "baotintuc"}},
			{Domain: "tuoitre.vn", Name: "TUỔI TRẺ", Aliases: []string{"tuổi trẻ", "tuoitre"}},
			{Domain: "vnexpress.net", Name: "VNS EXPRESS", Aliases: []string{"vnexpress"}},
			{Domain: "cafef.vn", Name: "CAFEF", Aliases: []string{"cafef"}},
			{Domain: "nhandan.vn", Name: "NHÂN DÂN", Aliases: []string{"nhân dân", "nhandan"}},
		},
		Feeds: []string{
			"https://laodong.vn/rss/thoi-su.rss",
			"https://laodong.vn/rss/the-gioi.rss",
			"https://laodong.vn/rss/xa-hoi.rss",
			"https://laodong.vn/rss/kinh-doanh.rss",
			"https://laodong.vn/rss/phap-luat.rss",
			"https://dantri.com.vn/rss/phap-luat.rss",
			"https://dantri.com.vn/rss/kinh-doanh.rss",
			"https://dantri.com.vn/rss/doi-song.rss",
			"https://dantri.com.vn/rss/the-gioi.rss",
			"https://vtv.vn/rss/xa-hoi.rss",
			"https://vtv.vn/rss/phap-luat.rss",
			"https://vtv.vn/rss/the-gioi.rss",
			"https://vtv.vn/rss/kinh-te.rss",
			"https://hanoimoi.vn/rss/xa-hoi",
			"https://hanoimoi.vn/rss/the-gioi",
			"https://hanoimoi.vn/rss/phap-luat",
			"https://hanoimoi.vn/rss/kinh-te",
			"https://www.sggp.org.vn/rss/xahoi-199.rss",
			"https://www.sggp.org.vn/rss/phapluat-112.rss",
			"https://www.sggp.org.vn/rss/kinhte-89.rss",
			"https://www.sggp.org.vn/rss/thegioi-143.rss",
			"https://www.vietnamplus.vn/rss/kinhte-311.rss",
			"https://www.vietnamplus.vn/rss/thegioi-209.rss",
			"https://www.vietnamplus.vn/rss/xahoi/phapluat-327.rss",
			"https://www.vietnamplus.vn/rss/xahoi-314.rss",
			"https://tienphong.vn/rss/xa-hoi-2.rss",
			"https://tienphong.vn/rss/kinh-te-3.rss",
			"https://tienphong.vn/rss/the-gioi-5.rss",
			"https://tienphong.vn/rss/phap-luat-12.rss",
			"https://vov.vn/rss/the-gioi.rss",
			"https://vov.vn/rss/kinh-te.rss",
			"https://vov.vn/rss/xa-hoi.rss",
			"https://vov.vn/rss/phap-luat.rss",
			"https://baotintuc.vn/the-gioi.rss",
			"https://baotintuc.vn/kinh-te.rss",
			"https://baotintuc.vn/xa-hoi.rss",
			"https://baotintuc.vn/phap-luat.rss",
			"https://tuoitre.vn/rss/phap-luat.rss",
			"https://tuoitre.vn/rss/the-gioi.rss",
			"https://tuoitre.vn/rss/kinh-doanh.rss",
			"https://tuoitre.vn/rss/thoi-su.rss",
			"https://nhandan.vn/rss/kinhte-1185.rss",
			"https://nhandan.vn/rss/phapluat-1287.rss",
			"https://nhandan.vn/rss/xahoi-1211.rss",
			"https://nhandan.vn/rss/thegioi-1231.rss",
		},
	}
}

// ReferenceURL returns the reference feed for a category.
func (c *FeedCatalog) ReferenceURL(category string) (string, bool) {
	for _, feed := range c.Reference {
		if feed.Category == category {
			return feed.URL, true
		}
	}
	return "", false
}
