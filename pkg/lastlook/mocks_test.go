package lastlook

import (
	"context"

	"github.com/rfqlabs/rfq-relayer/pkg/maker"
)

type mockConfirmer struct {
	confirmLastLookFunc func(ctx context.Context, uri string, req *maker.LastLookRequest) (*maker.LastLookResponse, error)
}

func (m *mockConfirmer) ConfirmLastLook(ctx context.Context, uri string, req *maker.LastLookRequest) (*maker.LastLookResponse, error) {
	return m.confirmLastLookFunc(ctx, uri, req)
}
