package auth

import (
	"context"
	"errors"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"

	"github.com/bher20/tarifmanager/internal/storage"
)

// Adapter implements the Casbin persist.Adapter interface using storage.Storage.
type Adapter struct {
	storage storage.Storage
}

// NewAdapter returns a new Casbin adapter.
func NewAdapter(s storage.Storage) *Adapter {
	return &Adapter{storage: s}
}

func ruleValues(r storage.CasbinRule) []string {
	vals := []string{r.PType}
	for _, v := range []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5} {
		if v == "" {
			break
		}
		vals = append(vals, v)
	}
	return vals
}

func newRule(ptype string, rule []string) storage.CasbinRule {
	r := storage.CasbinRule{PType: ptype}
	fields := []*string{&r.V0, &r.V1, &r.V2, &r.V3, &r.V4, &r.V5}
	for i, v := range rule {
		if i >= len(fields) {
			break
		}
		*fields[i] = v
	}
	return r
}

// LoadPolicy loads all policy rules from the storage.
func (a *Adapter) LoadPolicy(m model.Model) error {
	rules, err := a.storage.LoadCasbinRules(context.Background())
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if err := persist.LoadPolicyArray(ruleValues(rule), m); err != nil {
			return err
		}
	}
	return nil
}

// SavePolicy is unsupported; policies are persisted one by one through
// AddPolicy and RemovePolicy.
func (a *Adapter) SavePolicy(model.Model) error {
	return errors.New("auth: SavePolicy not supported")
}

// AddPolicy adds a policy rule to the storage.
func (a *Adapter) AddPolicy(sec, ptype string, rule []string) error {
	return a.storage.AddCasbinRule(context.Background(), newRule(ptype, rule))
}

// RemovePolicy removes a policy rule from the storage.
func (a *Adapter) RemovePolicy(sec, ptype string, rule []string) error {
	return a.storage.RemoveCasbinRule(context.Background(), newRule(ptype, rule))
}

// RemoveFilteredPolicy removes the stored rules of ptype whose fields from
// fieldIndex on match fieldValues. Empty values match anything.
func (a *Adapter) RemoveFilteredPolicy(sec, ptype string, fieldIndex int, fieldValues ...string) error {
	ctx := context.Background()
	rules, err := a.storage.LoadCasbinRules(ctx)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if r.PType != ptype || !matchesFilter(r, fieldIndex, fieldValues) {
			continue
		}
		if err := a.storage.RemoveCasbinRule(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func matchesFilter(r storage.CasbinRule, fieldIndex int, values []string) bool {
	fields := []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
	for i, v := range values {
		idx := fieldIndex + i
		if v == "" {
			continue
		}
		if idx >= len(fields) || fields[idx] != v {
			return false
		}
	}
	return true
}
