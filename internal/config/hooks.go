package config

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decodeHooks extends viper's defaults with decimal parsing, so money values
// in yaml or env never pass through float64.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		stringToDecimalHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func stringToDecimalHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		if v == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(v)
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		// yaml scalars like 9 or 9.5 arrive typed; go through their text form
		return decimal.NewFromString(fmt.Sprint(v))
	default:
		return nil, fmt.Errorf("cannot decode %T into decimal", data)
	}
}
