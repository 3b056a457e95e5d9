package engine

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"configtree/internal/metadata"
	"configtree/internal/store"
)

var integerPattern = regexp.MustCompile(`^-?\d+$`)

// ParseNumber turns a stored NUMERIC string back into a JSON number. Integers
// in int32 range come back as int32, wider ones as int64, and integers beyond
// int64 keep their exact digits. Decimals come back as a json.Number that
// always carries a fraction or exponent, so 2.0 is not rendered as 2.
// Anything unparsable is returned as is.
func ParseNumber(s string) any {
	if integerPattern.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return json.Number(s)
		}
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return int32(n)
		}
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	return decimal(f)
}

// decimal formats f the way encoding/json does and keeps it visibly decimal.
func decimal(f float64) json.Number {
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	out := strconv.FormatFloat(f, format, -1, 64)
	if !strings.ContainsAny(out, ".eE") {
		out += ".0"
	}
	return json.Number(out)
}

// coerce converts a stored string into the JSON value its signature calls for.
// Enum values are reported in their canonical spelling; values no longer in the
// family are returned verbatim.
func (e *ExportEngine) coerce(ctx context.Context, q store.Querier, t *metadata.AttributeType, value string) (any, error) {
	if t.IsEnum {
		lit, ok, _, err := e.catalog.Enums.MatchFamily(ctx, q, t, value)
		if err != nil {
			return nil, err
		}
		if ok {
			return lit, nil
		}
		return value, nil
	}

	switch t.Kind {
	case metadata.KindBoolean:
		return strings.EqualFold(strings.TrimSpace(value), "true"), nil
	case metadata.KindNumeric:
		return ParseNumber(strings.TrimSpace(value)), nil
	default:
		return value, nil
	}
}
