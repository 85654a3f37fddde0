package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Plan is one purchasable subscription plan. Amounts are kopecks.
type Plan struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	Amount       int64  `mapstructure:"amount"`
	Currency     string `mapstructure:"currency"`
	PeriodMonths int    `mapstructure:"periodMonths"`
}

func DefaultPlanCatalog() []Plan {
	return []Plan{
		{ID: "monthly", Name: "Planely Monthly", Amount: 99900, Currency: "RUB", PeriodMonths: 1},
		{ID: "yearly", Name: "Planely Yearly", Amount: 999000, Currency: "RUB", PeriodMonths: 12},
	}
}

// PlanCatalog serves the current plan set and hot-reloads it from plans.yml.
type PlanCatalog struct {
	current atomic.Value // holds []Plan
}

func NewPlanCatalog(cfg Config) (*PlanCatalog, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	if path := strings.TrimSpace(cfg.PlanCatalogPath); path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("/etc/kassa")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KASSA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("plans", DefaultPlanCatalog())
	}

	var plans []Plan
	if err := v.UnmarshalKey("plans", &plans); err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		plans = DefaultPlanCatalog()
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	catalog := &PlanCatalog{}
	catalog.current.Store(plans)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated []Plan
		if err := v.UnmarshalKey("plans", &updated); err != nil {
			log.Printf("[plan-catalog] reload failed: %v", err)
			return
		}
		if err := validatePlans(updated); err != nil {
			log.Printf("[plan-catalog] invalid catalog ignored: %v", err)
			return
		}
		catalog.current.Store(updated)
	})

	return catalog, nil
}

// NewStaticPlanCatalog builds a catalog from a fixed plan set, with no file
// watching. Used by tests and embedded setups.
func NewStaticPlanCatalog(plans ...Plan) (*PlanCatalog, error) {
	if len(plans) == 0 {
		plans = DefaultPlanCatalog()
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}
	catalog := &PlanCatalog{}
	catalog.current.Store(plans)
	return catalog, nil
}

func (c *PlanCatalog) Plans() []Plan {
	plans, _ := c.current.Load().([]Plan)
	return plans
}

// Find returns the plan with the given id.
func (c *PlanCatalog) Find(planID string) (Plan, bool) {
	for _, plan := range c.Plans() {
		if plan.ID == planID {
			return plan, true
		}
	}
	return Plan{}, false
}

func validatePlans(plans []Plan) error {
	seen := map[string]bool{}
	for _, plan := range plans {
		if strings.TrimSpace(plan.ID) == "" {
			return errors.New("plan id is required")
		}
		if seen[plan.ID] {
			return errors.New("duplicate plan id: " + plan.ID)
		}
		seen[plan.ID] = true
		if plan.Amount <= 0 {
			return errors.New("plan amount must be positive: " + plan.ID)
		}
		if strings.TrimSpace(plan.Currency) == "" {
			return errors.New("plan currency is required: " + plan.ID)
		}
		if plan.PeriodMonths <= 0 {
			return errors.New("plan period must be positive: " + plan.ID)
		}
	}
	return nil
}
