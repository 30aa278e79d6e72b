package query

import "fmt"

type (
	// Predicate is a composable row restriction. A nil Predicate means no
	// restriction at all.
	Predicate interface{ isPredicate() }
)

// Supported predicates.
type (
	// Condition compares a single field against its arguments: one argument for
	// EQ/NEQ/GT/GTE/LT/LTE, two for RANGE (inclusive), any number for IN.
	Condition struct {
		Field     string
		Operand   CondOperand
		Arguments []any
	}

	And []Predicate
	Or  []Predicate

	Not struct{ Inner Predicate }

	// Raw is passed through verbatim. Engines that cannot parse SQL reject it.
	Raw struct{ SQL string }
)

func (Condition) isPredicate() {}
func (And) isPredicate()       {}
func (Or) isPredicate()        {}
func (Not) isPredicate()       {}
func (Raw) isPredicate()       {}

func Eq(field string, value any) Condition {
	return Condition{Field: field, Operand: EQ, Arguments: []any{value}}
}

func Neq(field string, value any) Condition {
	return Condition{Field: field, Operand: NEQ, Arguments: []any{value}}
}

func Gt(field string, value any) Condition {
	return Condition{Field: field, Operand: GT, Arguments: []any{value}}
}

func Gte(field string, value any) Condition {
	return Condition{Field: field, Operand: GTE, Arguments: []any{value}}
}

func Lt(field string, value any) Condition {
	return Condition{Field: field, Operand: LT, Arguments: []any{value}}
}

func Lte(field string, value any) Condition {
	return Condition{Field: field, Operand: LTE, Arguments: []any{value}}
}

// Between is inclusive on both ends. Reversed numeric or text bounds are
// swapped, so every engine reads the same range.
func Between(field string, from, to any) Condition {
	c := Condition{Field: field, Operand: RANGE, Arguments: []any{from, to}}

	lo, loErr := c.ArgumentFloatValue(0)
	hi, hiErr := c.ArgumentFloatValue(1)
	if loErr == nil && hiErr == nil {
		if lo > hi {
			c.Arguments[0], c.Arguments[1] = to, from
		}
		return c
	}

	if a, ok := from.(string); ok {
		if b, ok := to.(string); ok && a > b {
			c.Arguments[0], c.Arguments[1] = to, from
		}
	}
	return c
}

func In(field string, values ...any) Condition {
	return Condition{Field: field, Operand: IN, Arguments: values}
}

func RawSQL(sql string) Raw {
	return Raw{SQL: sql}
}

// AndOf combines predicates, flattening nested conjunctions and dropping nils.
// It returns nil for an empty input and the single predicate for one input.
func AndOf(preds ...Predicate) Predicate {
	flat := And{}
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
		case And:
			flat = append(flat, v...)
		default:
			flat = append(flat, v)
		}
	}
	return collapse(flat, len(flat))
}

// OrOf is the disjunctive counterpart of AndOf.
func OrOf(preds ...Predicate) Predicate {
	flat := Or{}
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
		case Or:
			flat = append(flat, v...)
		default:
			flat = append(flat, v)
		}
	}
	return collapse(flat, len(flat))
}

func NotOf(p Predicate) Predicate {
	if p == nil {
		return nil
	}
	return Not{Inner: p}
}

func collapse(p Predicate, size int) Predicate {
	switch size {
	case 0:
		return nil
	case 1:
		switch v := p.(type) {
		case And:
			return v[0]
		case Or:
			return v[0]
		}
	}
	return p
}

func (fc Condition) Validate() error {
	if fc.Field == "" {
		return fmt.Errorf("condition without field")
	}
	switch fc.Operand {
	case EQ, NEQ, GT, GTE, LT, LTE:
		if len(fc.Arguments) != 1 {
			return fmt.Errorf("operand %s on `%s` expects 1 argument, got %d", fc.Operand, fc.Field, len(fc.Arguments))
		}
	case RANGE:
		if len(fc.Arguments) != 2 {
			return fmt.Errorf("operand %s on `%s` expects 2 arguments, got %d", fc.Operand, fc.Field, len(fc.Arguments))
		}
	case IN:
		if len(fc.Arguments) == 0 {
			return fmt.Errorf("operand %s on `%s` expects at least one argument", fc.Operand, fc.Field)
		}
	default:
		return fmt.Errorf("unsupported operand %v", fc.Operand)
	}
	return nil
}

func (fc Condition) ArgumentFloatValue(idx int) (float64, error) {

	arg := fc.Arguments[idx]

	switch v := arg.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("filter cond argument is not numeric: %T", arg)
	}
}

// Validate walks the tree and checks every condition.
func Validate(p Predicate) error {
	switch v := p.(type) {
	case nil:
		return nil
	case Condition:
		return v.Validate()
	case And:
		for _, it := range v {
			if err := Validate(it); err != nil {
				return err
			}
		}
	case Or:
		for _, it := range v {
			if err := Validate(it); err != nil {
				return err
			}
		}
	case Not:
		if v.Inner == nil {
			return fmt.Errorf("negation without operand")
		}
		return Validate(v.Inner)
	case Raw:
		if v.SQL == "" {
			return fmt.Errorf("empty raw predicate")
		}
	default:
		return fmt.Errorf("unknown predicate %T", p)
	}
	return nil
}
