package pipeline

import (
	"fmt"

	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/models"
)

// All selects every configured site or category.
const All = "all"

// Unit is one (site, category) search.
type Unit struct {
	Site     string
	Config   config.SiteConfig
	Category string

	// Search overrides Category as the search term when set.
	Search string
}

// Term is the text searched for on the site.
func (u Unit) Term() string {
	if u.Search != "" {
		return u.Search
	}
	return u.Category
}

// URL is the first results page.
func (u Unit) URL() string {
	return u.Config.SearchURL(u.Term())
}

func (u Unit) String() string {
	return fmt.Sprintf("%s/%s", u.Site, u.Term())
}

// Plan expands a site and category selection into units, sites outermost.
// An empty selection or "all" selects everything configured. Unknown names
// are the only errors; they are reported before any work starts.
func Plan(cfg *config.Config, site, category, search string) ([]Unit, error) {
	var sites []string
	switch site {
	case "", All:
		sites = cfg.SiteNames()
	default:
		if _, ok := cfg.Site(site); !ok {
			return nil, models.NewScrapeError(models.ErrCodeUnknownSite,
				fmt.Sprintf("unknown site %q (known: %v)", site, cfg.SiteNames()), nil)
		}
		sites = []string{site}
	}

	var categories []string
	switch category {
	case "", All:
		categories = cfg.Categories
	default:
		if !cfg.HasCategory(category) {
			return nil, models.NewScrapeError(models.ErrCodeUnknownCategory,
				fmt.Sprintf("unknown category %q (known: %v)", category, cfg.Categories), nil)
		}
		categories = []string{category}
	}

	units := make([]Unit, 0, len(sites)*len(categories))
	for _, name := range sites {
		sc, _ := cfg.Site(name)
		for _, c := range categories {
			units = append(units, Unit{Site: name, Config: sc, Category: c, Search: search})
		}
	}
	return units, nil
}
