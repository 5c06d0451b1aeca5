package routing

import (
	"fmt"
	"strings"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/types"
)

// Destination is a validated output target.
type Destination struct {
	Service    string
	Descriptor string
}

// String returns the "service:descriptor" token for d.
func (d Destination) String() string {
	return d.Service + ":" + d.Descriptor
}

// ParseOutput splits token into a Destination. The token must contain exactly
// one ':' separating two non-empty parts.
func ParseOutput(token string) (Destination, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Destination{}, types.NewAppError(types.ErrCodeDestinationMalformed,
			fmt.Sprintf("improperly formatted output [%s]; outputs must be declared "+
				"with both a service and a descriptor (ie: 'slack:my_channel')", token), nil)
	}
	return Destination{Service: parts[0], Descriptor: parts[1]}, nil
}

// Resolve parses token and checks that it is present in cfg.
func Resolve(token string, cfg Config) (Destination, error) {
	d, err := ParseOutput(token)
	if err != nil {
		return Destination{}, err
	}
	if !cfg.Contains(d) {
		return Destination{}, types.NewAppError(types.ErrCodeDestinationUnknown,
			fmt.Sprintf("the output '%s' does not exist", token), nil)
	}
	return d, nil
}

// ResolveAll resolves every output in the set, logging and skipping tokens
// that are malformed or not configured. The result follows the set's order.
func ResolveAll(outputs alert.OutputSet, cfg Config, logger types.Logger) []Destination {
	if logger == nil {
		logger = types.NopLogger{}
	}

	out := make([]Destination, 0, outputs.Len())
	for _, token := range outputs.Items() {
		d, err := Resolve(token, cfg)
		if err != nil {
			logger.Error("skipping output",
				"output", token,
				"code", string(types.CodeOf(err)),
				"error", err,
			)
			continue
		}
		out = append(out, d)
	}
	return out
}
