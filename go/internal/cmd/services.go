package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/outsider/go/clients/imagesearch"
	"github.com/mcdev12/outsider/go/internal/catalog"
	"github.com/mcdev12/outsider/go/internal/config"
	"github.com/mcdev12/outsider/go/internal/directory"
	"github.com/mcdev12/outsider/go/internal/eventbus"
	"github.com/mcdev12/outsider/go/internal/gateway"
	"github.com/mcdev12/outsider/go/internal/images"
	"github.com/mcdev12/outsider/go/internal/metrics"
	"github.com/mcdev12/outsider/go/internal/room"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Metrics   *metrics.PrometheusCollector
	Directory *directory.Directory
	Gateway   *gateway.Service
	Relay     *eventbus.Relay
	publisher eventbus.Publisher
}

func setupServices(cfg *config.Config) (*Services, error) {
	clock := clockwork.NewRealClock()
	collector := metrics.NewPrometheusCollector("outsider")

	cat, err := setupCatalog(cfg)
	if err != nil {
		return nil, err
	}

	// Images
	var searcher images.Searcher = images.Disabled{}
	if cfg.ImagesEnabled() {
		searcher = imagesearch.NewClient(imagesearch.Config{
			BaseURL:    cfg.ImageAPIURL,
			APIKey:     cfg.ImageAPIKey,
			ResultPath: cfg.ImageResultPath,
			Timeout:    cfg.ImageLookupTimeout,
		})
	} else {
		log.Info().Msg("image lookups disabled, IMAGE_API_URL not set")
	}
	enricher := images.NewEnricher(images.NewCache(searcher, cfg.ImageLookupTimeout, collector))

	// Event bus
	var publisher eventbus.Publisher = eventbus.LogPublisher{}
	if cfg.BusEnabled() {
		natsConfig := eventbus.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.SubjectPrefix = cfg.NATSSubjectPrefix
		nats, err := eventbus.NewNATSPublisher(natsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to set up event bus: %w", err)
		}
		publisher = nats
	}
	relay := eventbus.NewRelay(publisher, clock, collector)

	// Connections → rooms → gateway
	connConfig := gateway.DefaultConnectionConfig()
	connConfig.MessagesPerSecond = cfg.WSMessagesPerSecond
	connConfig.Burst = cfg.WSBurst
	connConfig.CheckOrigin = originChecker(cfg.AllowedOrigins)
	connections := gateway.NewConnectionManager(connConfig, clock, collector)

	timing := room.DefaultTiming()
	timing.ConfirmationWindow = cfg.ConfirmationWindow()
	timing.EmptyGrace = cfg.EmptyRoomGrace
	timing.InactivityTimeout = cfg.InactivityTimeout
	timing.DisconnectGrace = cfg.DisconnectGrace

	dir := directory.New(directory.Settings{
		DefaultRoundDuration: cfg.DefaultRound(),
		MinRoundDuration:     cfg.MinRound(),
		MaxRoundDuration:     cfg.MaxRound(),
		DefaultPoolSize:      cfg.DefaultPoolSize,
		Timing:               timing,
	}, directory.Deps{
		Clock:    clock,
		Catalog:  cat,
		Emitter:  metrics.NewEmitter(room.Emitters{connections, relay}, collector),
		Enricher: enricher,
		Recorder: collector,
	})

	return &Services{
		Metrics:   collector,
		Directory: dir,
		Gateway:   gateway.NewService(connections, dir),
		Relay:     relay,
		publisher: publisher,
	}, nil
}

func setupCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		cat, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load embedded catalog: %w", err)
		}
		return cat, nil
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", cfg.CatalogPath, err)
	}
	log.Info().Str("path", cfg.CatalogPath).Int("locations", cat.Len()).Msg("catalog loaded")
	return cat, nil
}

// Start runs the background loops until ctx is done.
func (s *Services) Start(ctx context.Context) {
	go s.Gateway.Start(ctx)
	go s.Relay.Start(ctx)
}

func (s *Services) Close() {
	s.Directory.Close()
	if err := s.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
