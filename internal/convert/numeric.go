package convert

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// DecimalString renders a value destined for an Edm.Decimal or
// Edm.Int64 property as an exact decimal string. JSON numbers arrive
// as float64, so plain strconv formatting can introduce artifacts like
// 19.000000000000004; routing through decimal avoids that.
func DecimalString(v interface{}) string {
	switch n := v.(type) {
	case string:
		return n
	case json.Number:
		return n.String()
	case float64:
		return decimal.NewFromFloat(n).String()
	case float32:
		return decimal.NewFromFloat32(n).String()
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
