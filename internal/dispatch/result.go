package dispatch

import (
	"encoding/json"
	"fmt"
)

// Result is the outcome of one dispatch attempt. It is encoded as the JSON
// pair [sent, output].
type Result struct {
	Sent   bool
	Output string
}

// MarshalJSON encodes r as [sent, output].
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{r.Sent, r.Output})
}

// UnmarshalJSON decodes a [sent, output] pair.
func (r *Result) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("dispatch: result must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &r.Sent); err != nil {
		return fmt.Errorf("dispatch: result sent flag: %w", err)
	}
	if err := json.Unmarshal(pair[1], &r.Output); err != nil {
		return fmt.Errorf("dispatch: result output: %w", err)
	}
	return nil
}
