package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Item struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type Plan struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Period        string   `yaml:"period"`
	Price         string   `yaml:"price"`
	OriginalPrice string   `yaml:"original_price"`
	Label         string   `yaml:"label"`
	Aliases       []string `yaml:"aliases"`
	Features      []string `yaml:"features"`

	// AmountCents is derived from Price when the catalog is loaded.
	AmountCents int64  `yaml:"-"`
	Currency    string `yaml:"-"`
}

type Catalog struct {
	DefaultPlanID string `yaml:"default_plan"`
	Currency      string `yaml:"currency"`
	Items         []Item `yaml:"items"`
	Plans         []Plan `yaml:"plans"`

	plansByKey map[string]int
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, falling back to the embedded catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c.Currency = strings.ToLower(strings.TrimSpace(c.Currency))
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if len(c.Plans) == 0 {
		return nil, fmt.Errorf("catalog has no plans: %w", ErrPlanNotFound)
	}

	c.plansByKey = make(map[string]int, len(c.Plans))
	for i := range c.Plans {
		p := &c.Plans[i]
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("plan at index %d has no id", i)
		}
		cents, err := ParsePriceCents(p.Price)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", p.ID, err)
		}
		p.AmountCents = cents
		p.Currency = c.Currency

		for _, key := range append([]string{p.ID}, p.Aliases...) {
			if _, dup := c.plansByKey[key]; dup {
				return nil, fmt.Errorf("duplicate plan key %q", key)
			}
			c.plansByKey[key] = i
		}
	}

	if c.DefaultPlanID == "" {
		c.DefaultPlanID = c.Plans[0].ID
	}
	if _, err := c.Plan(c.DefaultPlanID); err != nil {
		return nil, fmt.Errorf("default plan %q: %w", c.DefaultPlanID, err)
	}

	return &c, nil
}

func (c *Catalog) Item(id string) (Item, error) {
	for _, item := range c.Items {
		if item.ID == id {
			return item, nil
		}
	}
	return Item{}, ErrItemNotFound
}

// Plan looks up a plan by its id only.
func (c *Catalog) Plan(id string) (Plan, error) {
	idx, ok := c.plansByKey[id]
	if !ok || c.Plans[idx].ID != id {
		return Plan{}, ErrPlanNotFound
	}
	return c.Plans[idx], nil
}

// Resolve looks up a plan by id or alias.
func (c *Catalog) Resolve(key string) (Plan, error) {
	idx, ok := c.plansByKey[strings.TrimSpace(key)]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return c.Plans[idx], nil
}

func (c *Catalog) DefaultPlan() Plan {
	p, _ := c.Plan(c.DefaultPlanID)
	return p
}

// ParsePriceCents converts a display price such as "$49" or "1,299.50" to minor units.
func ParsePriceCents(price string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, price)
	if cleaned == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}
	cents := amount.Shift(2).Round(0)
	if !cents.IsPositive() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}
	return cents.IntPart(), nil
}

// FormatCents renders minor units as a fixed two-decimal major amount.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
