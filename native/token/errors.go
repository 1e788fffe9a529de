package token

import "errors"

var (
	// ErrAllowance is returned when a fungible pull lacks sufficient
	// pre-authorization from the source account.
	ErrAllowance      = errors.New("token: allowance")
	ErrInsufficient   = errors.New("token: insufficient balance")
	ErrInvalidAmount  = errors.New("token: invalid amount")
	ErrMintRight      = errors.New("token: mint right required")
	ErrAdminRequired  = errors.New("token: admin required")
	ErrNativePull     = errors.New("token: native currency cannot be pulled")
	ErrItemNotFound   = errors.New("token: nonexistent item")
	ErrItemForbidden  = errors.New("token: transfer caller is not owner nor approved")
	ErrUnknownKind    = errors.New("token: unsupported item standard")
	ErrPositionBurned = errors.New("registry: nonexistent position")
	ErrFactoryRight   = errors.New("registry: factory right required")
	ErrNotHolder      = errors.New("registry: transfer caller is not owner nor approved")
)
