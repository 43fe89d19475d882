package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/smgpctl/internal/protocol"
)

var (
	ErrAuthenticationRejected = errors.New("session: authentication rejected")
	ErrLinkDead               = errors.New("session: link dead")
	ErrSendExhausted          = errors.New("session: send attempts exhausted")
	ErrStopped                = errors.New("session: stopped")
	ErrNotOpen                = errors.New("session: transport not open")
	ErrNameRequired           = errors.New("session: name required")
	ErrAddressRequired        = errors.New("session: host and port required")
	ErrAccountRequired        = errors.New("session: account required")
)

// AuthError is a LoginResp carrying a non-zero status.
type AuthError struct {
	Client string
	Status protocol.Status
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("session: client %q authentication rejected: status=%d (%s)", e.Client, uint32(e.Status), e.Status)
}

func (e *AuthError) Unwrap() error {
	return ErrAuthenticationRejected
}
