package remote

import (
	"context"
	"errors"

	"gm-dapp/internal/gmapi"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
)

// Backend adapts a gm-server client to notifyclient.Backend.
type Backend struct {
	API *gmapi.Client
}

var _ notifyclient.Backend = (*Backend)(nil)

// Notify turns a non-retryable gm-server rejection into an unsuccessful
// outcome. Transport failures and temporary errors are returned as errors.
func (b *Backend) Notify(ctx context.Context, req model.SendRequest) (notifyclient.SendOutcome, error) {
	resp, err := b.API.Notify(ctx, req)
	if err != nil {
		var apiErr *gmapi.APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return notifyclient.SendOutcome{Success: false, Message: resp.Message}, nil
		}
		return notifyclient.SendOutcome{}, err
	}
	return notifyclient.SendOutcome{Success: resp.Success, Message: resp.Message}, nil
}

func (b *Backend) Subscriber(ctx context.Context, account string) (*model.Subscriber, error) {
	return b.API.Subscriber(ctx, account)
}
