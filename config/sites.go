package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// sitesFile is the on-disk shape of a site registry:
//
//	sites:
//	  jumia:
//	    base_url: "https://www.jumia.co.ke/catalog/?q="
//	    product_selector: "article.prd"
//	    pagination_selector: "a.pg-next"
type sitesFile struct {
	Sites map[string]SiteConfig `yaml:"sites"`
}

// LoadSites reads a YAML site registry from path.
func LoadSites(path string) (map[string]SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}
	return ParseSites(data)
}

// ParseSites decodes a YAML site registry.
func ParseSites(data []byte) (map[string]SiteConfig, error) {
	var f sitesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sites file: %w", err)
	}
	if len(f.Sites) == 0 {
		return nil, fmt.Errorf("sites file defines no sites")
	}
	return f.Sites, nil
}
