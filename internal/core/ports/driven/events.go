package driven

import (
	"context"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

// SaveResultPublisher broadcasts save outcomes.
type SaveResultPublisher interface {
	PublishSaveResult(ctx context.Context, result *domain.SaveResult) error
}

// PostStatePublisher broadcasts canonical post snapshots keyed by post id.
type PostStatePublisher interface {
	PublishPostState(ctx context.Context, snapshot *domain.PostSnapshot) error
}

// RegistryChangePublisher announces that the service registry was modified
// so other instances sharing the store can reload it.
type RegistryChangePublisher interface {
	PublishRegistryChanged(ctx context.Context) error
}

// RegistryReloader rebuilds the service registry from storage.
type RegistryReloader interface {
	LoadConfigurations(ctx context.Context)
}
