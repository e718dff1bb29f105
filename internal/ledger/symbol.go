package ledger

import (
	"fmt"
	"strings"
)

const symbolSeparator = "-"

// splitSymbol decomposes a BASE-QUOTE trading symbol into its base asset and
// quote currency.
func splitSymbol(symbol string) (base, quote string, err error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	base, quote, found := strings.Cut(normalized, symbolSeparator)
	if !found || base == "" || quote == "" {
		return "", "", fmt.Errorf("%w: malformed symbol %q", ErrInvalidArgument, symbol)
	}
	return base, quote, nil
}
