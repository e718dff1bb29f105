package ledger

import "errors"

var (
	// ErrInvalidArgument indicates a malformed request: a non-positive amount,
	// an unknown trade side, a malformed symbol, or a self-transfer.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidAccount indicates the referenced account does not exist or is
	// not owned by the acting owner. The two cases are deliberately not
	// distinguished to callers.
	ErrInvalidAccount = errors.New("invalid account")

	// ErrInsufficientFunds occurs when the debited balance cannot cover the
	// requested amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientAsset occurs when a sell exceeds the held base asset.
	ErrInsufficientAsset = errors.New("insufficient asset")

	// ErrUnknownSymbol indicates the price oracle has no price for the symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrOperationFailed indicates atomicity could not be guaranteed. No
	// partial effect occurred, so the operation is safe to retry.
	ErrOperationFailed = errors.New("operation failed")
)
