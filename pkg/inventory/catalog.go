package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/stepgraph"
)

// CatalogItem is a candidate with the attributes a catalog filters on.
type CatalogItem struct {
	journey.Candidate
	City      string `json:"city"`
	Country   string `json:"country,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// Catalog is a static inventory grouped by collection.
type Catalog struct {
	Hotels     []CatalogItem `json:"hotels"`
	Flights    []CatalogItem `json:"flights"`
	Transports []CatalogItem `json:"transports"`
	Activities []CatalogItem `json:"activities"`
}

func (c *Catalog) collection(name string) []CatalogItem {
	switch name {
	case "hotels":
		return c.Hotels
	case "flights":
		return c.Flights
	case "transports":
		return c.Transports
	case "activities":
		return c.Activities
	}
	return nil
}

// CatalogProvider serves searches from an in-memory catalog. It backs demo
// deployments and tests.
type CatalogProvider struct {
	catalog Catalog
}

// NewCatalogProvider wraps a catalog.
func NewCatalogProvider(c Catalog) *CatalogProvider {
	return &CatalogProvider{catalog: c}
}

// LoadCatalog reads a catalog from a yaml or json file.
func LoadCatalog(path string) (*CatalogProvider, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = kjson.Parser()
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", path)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}

	// Round-trip through JSON so candidates get the tolerant price decoding.
	raw, err := json.Marshal(k.Raw())
	if err != nil {
		return nil, fmt.Errorf("encode catalog %s: %w", path, err)
	}
	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return NewCatalogProvider(c), nil
}

// Search implements Provider. Items match on city, and country when both
// sides state one, case-insensitively.
func (p *CatalogProvider) Search(ctx context.Context, step stepgraph.StepID, criteria Criteria) ([]journey.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := ResourceFor(step)
	if err != nil {
		return nil, err
	}
	city := strings.TrimSpace(criteria.Destination.City)
	if city == "" {
		return nil, ErrNoDestination
	}

	out := []journey.Candidate{}
	for _, item := range p.catalog.collection(res.Collection) {
		if !strings.EqualFold(strings.TrimSpace(item.City), city) {
			continue
		}
		if item.Country != "" && criteria.Destination.Country != "" &&
			!strings.EqualFold(item.Country, criteria.Destination.Country) {
			continue
		}
		if res.Direction != "" && item.Direction != "" && !strings.EqualFold(item.Direction, res.Direction) {
			continue
		}
		c := item.Candidate
		c.Rooms = slices.Clone(c.Rooms)
		out = append(out, c)
	}
	return out, nil
}
