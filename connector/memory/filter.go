package memory

import (
	"fmt"
	"math"

	"github.com/dot5enko/tessera/lists"
	"github.com/dot5enko/tessera/ops"
	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
)

// filter returns the sorted indices of rows matching p.
func (t *table) filter(p query.Predicate) ([]uint32, error) {

	rows := t.data.NumRows()

	switch v := p.(type) {
	case nil:
		return lists.Full(rows), nil
	case query.Condition:
		return t.condition(v)
	case query.And:
		merger := lists.NewIntersectMerger()
		for _, it := range v {
			indices, err := t.filter(it)
			if err != nil {
				return nil, err
			}
			merger.With(indices)
		}
		result, ok := merger.Result()
		if !ok {
			return lists.Full(rows), nil
		}
		return result, nil
	case query.Or:
		merger := lists.NewUnionMerger()
		for _, it := range v {
			indices, err := t.filter(it)
			if err != nil {
				return nil, err
			}
			merger.With(indices)
		}
		result, _ := merger.Result()
		return result, nil
	case query.Not:
		inner, err := t.filter(v.Inner)
		if err != nil {
			return nil, err
		}
		out := make([]uint32, rows-len(inner))
		filled := lists.Complement(inner, rows, out)
		return out[:filled], nil
	case query.Raw:
		return nil, fmt.Errorf("%w: raw predicate `%s`", ErrUnsupported, v.SQL)
	default:
		return nil, fmt.Errorf("%w: predicate %T", ErrUnsupported, p)
	}
}

func (t *table) condition(c query.Condition) ([]uint32, error) {

	if validateErr := c.Validate(); validateErr != nil {
		return nil, validateErr
	}

	col, colErr := t.data.Column(c.Field)
	if colErr != nil {
		return nil, colErr
	}

	out := make([]uint32, col.Len())

	var (
		filled int
		err    error
	)

	switch typed := col.(type) {
	case *result.StringColumn:
		filled, err = stringCondition(typed.Values, c, out)
	case *result.Int64Column:
		if args, integral := integralArguments(c); integral && c.Operand != query.RANGE {
			filled, err = intCondition(typed.Values, c.Operand, args, out)
			break
		}
		filled, err = t.numericCondition(col, c, out)
	default:
		filled, err = t.numericCondition(col, c, out)
	}

	if err != nil {
		return nil, err
	}

	return dropNulls(col, out[:filled]), nil
}

func dropNulls(col result.Column, indices []uint32) []uint32 {
	kept := indices[:0]
	for _, idx := range indices {
		if !col.IsNull(int(idx)) {
			kept = append(kept, idx)
		}
	}
	return kept
}

func integralArguments(c query.Condition) ([]int64, bool) {
	args := make([]int64, len(c.Arguments))
	for idx, it := range c.Arguments {
		switch v := it.(type) {
		case int:
			args[idx] = int64(v)
		case int64:
			args[idx] = v
		case int32:
			args[idx] = int64(v)
		default:
			return nil, false
		}
	}
	return args, true
}

func intCondition(values []int64, op query.CondOperand, args []int64, out []uint32) (int, error) {
	switch op {
	case query.EQ:
		return ops.CompareValuesAreEqual(values, args[0], out), nil
	case query.NEQ:
		return ops.CompareValuesAreNotEqual(values, args[0], out), nil
	case query.GT, query.GTE:
		return ops.CompareValuesAreBigger(values, args[0], op == query.GTE, out), nil
	case query.LT, query.LTE:
		return ops.CompareValuesAreSmaller(values, args[0], op == query.LTE, out), nil
	case query.IN:
		levels := make(map[int64]struct{}, len(args))
		for _, it := range args {
			levels[it] = struct{}{}
		}
		return ops.CompareValuesAreIn(values, levels, out), nil
	default:
		return 0, fmt.Errorf("%w: operand %s on integer column", ErrUnsupported, op)
	}
}

func (t *table) numericCondition(col result.Column, c query.Condition, out []uint32) (int, error) {

	values, ok := t.floatView(col)
	if !ok {
		return 0, fmt.Errorf("%w: operand %s on %s column `%s`", ErrUnsupported, c.Operand, col.Type(), col.Name())
	}

	args := make([]float64, len(c.Arguments))
	for idx := range c.Arguments {
		v, argErr := c.ArgumentFloatValue(idx)
		if argErr != nil {
			return 0, fmt.Errorf("condition on `%s`: %w", c.Field, argErr)
		}
		args[idx] = v
	}

	switch c.Operand {
	case query.EQ:
		return ops.CompareValuesAreEqual(values, args[0], out), nil
	case query.NEQ:
		return ops.CompareValuesAreNotEqual(values, args[0], out), nil
	case query.IN:
		levels := make(map[float64]struct{}, len(args))
		for _, it := range args {
			levels[it] = struct{}{}
		}
		return ops.CompareValuesAreIn(values, levels, out), nil
	}

	var filter schema.BoundsFloat
	switch c.Operand {
	case query.RANGE:
		filter = schema.NewBoundsFromValues(args[0], args[1])
	case query.GT, query.GTE:
		filter = schema.BoundsFloat{Min: args[0], Max: math.Inf(1)}
	case query.LT, query.LTE:
		filter = schema.BoundsFloat{Min: math.Inf(-1), Max: args[0]}
	default:
		return 0, fmt.Errorf("%w: operand %s", ErrUnsupported, c.Operand)
	}

	// inclusive bounds match fully, strict ones may still exclude the edge value
	inclusive := c.Operand == query.RANGE || c.Operand == query.GTE || c.Operand == query.LTE

	if bounds, known := t.bounds[col.Name()]; known {
		switch bounds.Intersects(filter) {
		case schema.NoIntersection:
			return 0, nil
		case schema.FullIntersection:
			if inclusive {
				return copy(out, lists.Full(len(values))), nil
			}
		}
	}

	switch c.Operand {
	case query.RANGE:
		return ops.CompareValuesAreInRange(values, args[0], args[1], out), nil
	case query.GT, query.GTE:
		return ops.CompareValuesAreBigger(values, args[0], c.Operand == query.GTE, out), nil
	default:
		return ops.CompareValuesAreSmaller(values, args[0], c.Operand == query.LTE, out), nil
	}
}

func stringCondition(values []string, c query.Condition, out []uint32) (int, error) {

	args := make([]string, len(c.Arguments))
	for idx, it := range c.Arguments {
		args[idx] = fmt.Sprint(it)
	}

	switch c.Operand {
	case query.EQ:
		return ops.CompareValuesAreEqual(values, args[0], out), nil
	case query.NEQ:
		return ops.CompareValuesAreNotEqual(values, args[0], out), nil
	case query.IN:
		levels := make(map[string]struct{}, len(args))
		for _, it := range args {
			levels[it] = struct{}{}
		}
		return ops.CompareValuesAreIn(values, levels, out), nil
	default:
		return 0, fmt.Errorf("%w: operand %s on text column `%s`", ErrUnsupported, c.Operand, c.Field)
	}
}
