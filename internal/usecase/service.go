package usecase

import (
	"context"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/config"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/provider"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/storage"
)

// ProviderClient is the slice of the provider client the services depend on.
// Narrowed to an interface so tests can stub provider behavior.
type ProviderClient interface {
	Send(ctx context.Context, creds model.Credential, to string, input model.SendInput) *provider.Outcome
}

// GatewayService implements the send pipeline, webhook ingestion, and the
// reconciliation sweep on top of the ledger.
type GatewayService struct {
	messageRepo    storage.MessageRepo
	credentialRepo storage.CredentialRepo
	providerClient ProviderClient
	publisher      IEventPublisher
	reconcileCfg   config.Config
}

// NewGatewayService creates a new gateway service
func NewGatewayService(
	messageRepo storage.MessageRepo,
	credentialRepo storage.CredentialRepo,
	providerClient ProviderClient,
	publisher IEventPublisher,
	cfg config.Config,
) *GatewayService {
	if publisher == nil {
		publisher = NewNoopPublisher()
	}
	return &GatewayService{
		messageRepo:    messageRepo,
		credentialRepo: credentialRepo,
		providerClient: providerClient,
		publisher:      publisher,
		reconcileCfg:   cfg,
	}
}
