// Package lifecycle drives a wallet account through identity registration,
// subscription, sending and inbox reading against a notifyclient.Client.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"gm-dapp/internal/notifyclient"
)

var (
	ErrUserRejected       = errors.New("user rejected the signature request")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrAlreadyInProgress  = errors.New("already in progress")
	ErrTransport          = errors.New("transport error")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNotSubscribed      = errors.New("not subscribed")
	ErrClosed             = errors.New("session closed")
)

// Absorb drops errors that only signal a caller-side guard gap:
// ErrAlreadyInProgress and ErrPreconditionFailed.
func Absorb(err error) error {
	if errors.Is(err, ErrAlreadyInProgress) || errors.Is(err, ErrPreconditionFailed) {
		return nil
	}
	return err
}

// classify maps a client error onto the lifecycle taxonomy.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, notifyclient.ErrNotRegistered), errors.Is(err, notifyclient.ErrNoSubscription):
		return fmt.Errorf("%s: %w: %w", op, ErrPreconditionFailed, err)
	case errors.Is(err, notifyclient.ErrInvalidSignature),
		errors.Is(err, notifyclient.ErrChallengeExpired),
		errors.Is(err, notifyclient.ErrUnknownScope),
		errors.Is(err, notifyclient.ErrMessageNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
}
