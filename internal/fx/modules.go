package fx

import (
	"mining-economy/internal/api"
	"mining-economy/internal/catalog"
	"mining-economy/internal/clock"
	"mining-economy/internal/config"
	"mining-economy/internal/database"
	"mining-economy/internal/entropy"
	"mining-economy/internal/logger"
	"mining-economy/internal/notify"
	"mining-economy/internal/repository"
	"mining-economy/internal/server"
	"mining-economy/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideCatalog(cfg *config.Config, logger zerolog.Logger) (*catalog.Catalog, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.CatalogPath).Msg("failed to load catalog")
		return nil, err
	}
	logger.Info().Int("items", len(cat.ItemIDs())).Int("tiers", len(cat.Tiers())).Msg("catalog loaded")
	return cat, nil
}

// ProvideNotifier fans notifications out to the websocket hub, the log and, when configured, the
// webhook.
func ProvideNotifier(hub *notify.Hub, webhook *api.WebhookClient, logger zerolog.Logger) *notify.Multi {
	sinks := []notify.Sink{hub, notify.NewLogSink(logger)}
	if webhook.Enabled() {
		sinks = append(sinks, notify.NewWebhookSink(webhook))
	}
	return notify.NewMulti(logger, sinks...)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(ProvideCatalog),
	fx.Provide(database.New),
	fx.Provide(clock.New),
	fx.Provide(entropy.New),
	// store
	fx.Provide(fx.Annotate(repository.NewStore, fx.As(new(service.Store)))),
	// notifications
	fx.Provide(api.NewWebhookClient),
	fx.Provide(notify.NewHub),
	fx.Provide(ProvideNotifier),
	fx.Provide(func(m *notify.Multi) notify.Sink { return m }),
	fx.Provide(func(h *notify.Hub) notify.Broadcaster { return h }),
	// svc
	fx.Provide(service.NewCommissionService),
	fx.Provide(service.NewEquipmentService),
	fx.Provide(service.NewCraftingService),
	fx.Provide(service.NewMarketService),
	fx.Provide(service.NewEconomyService),
	fx.Provide(service.NewReconcileService),
	// server
	fx.Provide(server.NewEconomyServer),
)
