// common/configloader/decoder.go
package configloader

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

func decode(input map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			splitListHook(","),
			stringToBoolHook,
		),
		WeaklyTypedInput: true, // "10000" из ENV → float64
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// splitListHook превращает "BTC, ETH,,SOL" в [BTC ETH SOL].
func splitListHook(sep string) mapstructure.DecodeHookFuncKind {
	return func(f, t reflect.Kind, data interface{}) (interface{}, error) {
		if f != reflect.String || t != reflect.Slice {
			return data, nil
		}
		parts := strings.Split(data.(string), sep)
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
}

func stringToBoolHook(f, t reflect.Kind, data interface{}) (interface{}, error) {
	if f == reflect.String && t == reflect.Bool {
		return strconv.ParseBool(strings.TrimSpace(data.(string)))
	}
	return data, nil
}
