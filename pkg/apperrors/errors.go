package apperrors

import "errors"

// Standardized trading errors. The HTTP layer is the only place that maps
// these to wire status codes.
var (
	ErrRoundClosed          = errors.New("round_closed")
	ErrZeroQuantity         = errors.New("zero_quantity")
	ErrEmptyTeam            = errors.New("empty_team")
	ErrUnknownSymbol        = errors.New("unknown_symbol")
	ErrUnknownTeam          = errors.New("unknown_team")
	ErrInsufficientCash     = errors.New("insufficient_cash")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
	ErrTeamExists           = errors.New("team_exists")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrTimeout              = errors.New("timeout")
)
