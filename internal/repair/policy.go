package repair

import (
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/procure/internal/schema"
	"github.com/shopmonkeyus/procure/internal/util"
)

// AllowList is the set of triggers exempt from removal, keyed by (table, name)
// so a same-named trigger on another table is not protected.
type AllowList map[schema.TriggerKey]bool

// Allowed returns true if the trigger is exempt from removal.
func (a AllowList) Allowed(key schema.TriggerKey) bool {
	return a[key]
}

// Keys returns the allow-listed triggers in a stable order.
func (a AllowList) Keys() []schema.TriggerKey {
	res := make([]schema.TriggerKey, 0, len(a))
	for k := range a {
		res = append(res, k)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].String() < res[j].String()
	})
	return res
}

// DefaultObsoleteFunctions are validation functions known to have rejected unrelated inserts.
var DefaultObsoleteFunctions = []string{
	schema.InvoiceDateFunction,
	"validate_date",
	"validate_dates",
	"check_future_date",
}

// Policy controls what emergency repair removes and recreates.
type Policy struct {
	// Allow lists additional triggers to keep. The updated_at bindings are always kept.
	Allow []schema.TriggerKey `toml:"allow"`

	// ObsoleteFunctions are dropped with CASCADE, taking any trigger bound to them along.
	ObsoleteFunctions []string `toml:"obsolete_functions"`

	// SafeTables receive the BEFORE UPDATE updated_at trigger.
	SafeTables []string `toml:"safe_tables"`

	// BindInvoiceDateValidation re-adds the date validation trigger to invoices only.
	BindInvoiceDateValidation bool `toml:"bind_invoice_date_validation"`
}

// DefaultPolicy returns the policy used when no policy file is given.
func DefaultPolicy() Policy {
	return Policy{
		ObsoleteFunctions: append([]string{}, DefaultObsoleteFunctions...),
		SafeTables:        append([]string{}, schema.UpdatedAtTables...),
	}
}

// LoadPolicy decodes a TOML policy file on top of the default policy.
func LoadPolicy(fn string) (Policy, error) {
	policy := DefaultPolicy()
	if !util.Exists(fn) {
		return policy, errors.Newf("policy file not found: %s", fn)
	}
	md, err := toml.DecodeFile(fn, &policy)
	if err != nil {
		return policy, errors.Wrapf(err, "unable to parse policy file: %s", fn)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return policy, errors.Newf("unknown key in policy file %s: %s", fn, undecoded[0])
	}
	return policy, policy.Validate()
}

// knownFunctions maps triggers the catalog creates to the function they call.
var knownFunctions = map[string]string{
	schema.InvoiceDateTrigger: schema.InvoiceDateFunction,
}

// Validate checks the policy only refers to known tables, binds the updated_at
// trigger to every table that has the column and never keeps a trigger whose
// function it drops.
func (p Policy) Validate() error {
	seen := make(map[string]bool)
	for _, table := range p.SafeTables {
		if !util.SliceContains(schema.UpdatedAtTables, table) {
			return errors.Newf("table %s has no updated_at column and cannot carry the updated_at trigger", table)
		}
		if seen[table] {
			return errors.Newf("table %s is listed more than once in safe_tables", table)
		}
		seen[table] = true
	}
	for _, table := range schema.UpdatedAtTables {
		if !seen[table] {
			return errors.Newf("safe_tables must include %s", table)
		}
	}
	for _, fn := range p.ObsoleteFunctions {
		if fn == schema.UpdatedAtFunction {
			return errors.Newf("%s is recreated by repair and cannot be obsolete", fn)
		}
	}
	for _, key := range p.Allow {
		if key.Table == "" || key.Name == "" {
			return errors.New("allow entries require both table and name")
		}
		if fn, ok := knownFunctions[key.Name]; ok && util.SliceContains(p.ObsoleteFunctions, fn) && !p.recreates(key) {
			return errors.Newf("allow entry %s calls %s which is dropped as obsolete, set bind_invoice_date_validation instead", key, fn)
		}
	}
	return nil
}

// recreates returns true if repair binds the trigger again after the drops.
func (p Policy) recreates(key schema.TriggerKey) bool {
	for _, tr := range p.safeTriggers() {
		if tr.Key() == key {
			return true
		}
	}
	return false
}

// AllowList returns the triggers repair keeps: the safe bindings, the invoice
// date binding when requested and any explicit entries.
func (p Policy) AllowList() AllowList {
	res := make(AllowList)
	for _, tr := range p.safeTriggers() {
		res[tr.Key()] = true
	}
	for _, key := range p.Allow {
		res[key] = true
	}
	return res
}

func (p Policy) safeTriggers() []schema.Trigger {
	res := make([]schema.Trigger, 0, len(p.SafeTables)+1)
	for _, table := range p.SafeTables {
		res = append(res, schema.UpdatedAtTrigger(table))
	}
	if p.BindInvoiceDateValidation {
		res = append(res, schema.InvoiceDateTriggerSpec())
	}
	return res
}

func (p Policy) safeFunctions() []schema.Function {
	res := []schema.Function{schema.UpdatedAtFunctionSpec()}
	if p.BindInvoiceDateValidation {
		res = append(res, schema.InvoiceDateFunctionSpec())
	}
	return res
}
