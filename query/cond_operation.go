package query

type CondOperand byte

const (
	EQ CondOperand = iota
	NEQ
	GT
	GTE
	LT
	LTE
	RANGE
	IN
)

func (c CondOperand) String() string {
	switch c {
	case EQ:
		return "EQ"
	case NEQ:
		return "NEQ"
	case GT:
		return "GT"
	case GTE:
		return "GTE"
	case LT:
		return "LT"
	case LTE:
		return "LTE"
	case RANGE:
		return "RANGE"
	case IN:
		return "IN"
	default:
		return "UNKNOWN"
	}
}

func (c CondOperand) sqlOperator() string {
	switch c {
	case EQ:
		return "="
	case NEQ:
		return "<>"
	case GT:
		return ">"
	case GTE:
		return ">="
	case LT:
		return "<"
	case LTE:
		return "<="
	default:
		return ""
	}
}
