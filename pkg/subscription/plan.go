package subscription

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yamooSoluto/payment-sub001/pkg/pricing"
)

// Interval is a plan's billing cadence.
type Interval string

const (
	IntervalNone    Interval = "none"
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

// Plan is a catalog entry. Price is in the currency's minor unit.
type Plan struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Price     int64    `yaml:"price"`
	Currency  string   `yaml:"currency"`
	Interval  Interval `yaml:"interval"`
	TrialDays int      `yaml:"trialDays"`
}

// Billable reports whether the plan has a billing cadence. A plan without one
// can only be held as a trial.
func (p Plan) Billable() bool {
	return p.Interval == IntervalMonthly || p.Interval == IntervalYearly
}

// PeriodEnd returns the end of one billing period starting at start.
func (p Plan) PeriodEnd(start time.Time) time.Time {
	switch p.Interval {
	case IntervalMonthly:
		return start.AddDate(0, 1, 0)
	case IntervalYearly:
		return start.AddDate(1, 0, 0)
	}
	return start
}

// TrialEnd returns when a trial started at start ends.
func (p Plan) TrialEnd(start time.Time) time.Time {
	return start.AddDate(0, 0, p.TrialDays)
}

// ListPrice is the plan price in its currency.
func (p Plan) ListPrice() pricing.Money {
	return pricing.Money{Amount: p.Price, Currency: p.Currency}
}

func (p Plan) validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: plan without id", ErrInvalidCatalog)
	case p.Price < 0:
		return fmt.Errorf("%w: plan %s has a negative price", ErrInvalidCatalog, p.ID)
	case p.TrialDays < 0:
		return fmt.Errorf("%w: plan %s has negative trial days", ErrInvalidCatalog, p.ID)
	case p.Currency == "":
		return fmt.Errorf("%w: plan %s has no currency", ErrInvalidCatalog, p.ID)
	}
	switch p.Interval {
	case IntervalMonthly, IntervalYearly:
	case IntervalNone:
		if p.TrialDays == 0 {
			return fmt.Errorf("%w: plan %s has neither a billing interval nor a trial", ErrInvalidCatalog, p.ID)
		}
	default:
		return fmt.Errorf("%w: plan %s has interval %q", ErrInvalidCatalog, p.ID, p.Interval)
	}
	return nil
}

// Catalog is the immutable set of plans. It implements pricing.PriceList.
type Catalog struct {
	plans map[string]Plan
}

type catalogFile struct {
	Currency string `yaml:"currency"`
	Plans    []Plan `yaml:"plans"`
}

//go:embed catalog.yaml
var defaultCatalog []byte

// DefaultCatalog returns the built-in plan catalog.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog reads a YAML catalog. A top-level currency applies to plans
// that do not name one.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	for i := range f.Plans {
		if f.Plans[i].Currency == "" {
			f.Plans[i].Currency = f.Currency
		}
		f.Plans[i].Currency = strings.ToUpper(f.Plans[i].Currency)
	}
	return NewCatalog(f.Plans...)
}

// LoadCatalogFile reads a YAML catalog from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// NewCatalog validates plans and rejects duplicate ids.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: no plans", ErrInvalidCatalog)
	}
	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate plan %s", ErrInvalidCatalog, p.ID)
		}
		c.plans[p.ID] = p
	}
	return c, nil
}

func (c *Catalog) Plan(id string) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// Plans lists the catalog sorted by id.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Plan) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// ListPrice implements pricing.PriceList.
func (c *Catalog) ListPrice(plan string) (pricing.Money, bool) {
	p, ok := c.plans[plan]
	if !ok {
		return pricing.Money{}, false
	}
	return p.ListPrice(), true
}
