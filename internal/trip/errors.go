package trip

import "errors"

var (
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrInvalidBody       = errors.New("invalid body")
	ErrUserNotFound      = errors.New("user not found")
	ErrStorage           = errors.New("storage failure")
)
