// Package duration lets JSON config carry Go duration strings.
package duration

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration decodes from "30s"-style strings or integer nanoseconds and
// encodes as a string.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		p, err := time.ParseDuration(x)
		if err != nil {
			return err
		}
		*d = Duration(p)
	case float64:
		*d = Duration(int64(x))
	case nil:
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}
