package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/archiver"
	"github.com/Panorama-Block/archive/internal/client"
	"github.com/Panorama-Block/archive/internal/config"
	"github.com/Panorama-Block/archive/internal/event"
	"github.com/Panorama-Block/archive/internal/kafka"
	"github.com/Panorama-Block/archive/internal/logging"
	"github.com/Panorama-Block/archive/internal/metrics"
	"github.com/Panorama-Block/archive/internal/service"
	"github.com/Panorama-Block/archive/internal/types"
	"github.com/Panorama-Block/archive/internal/websocket"
)

const (
	eventBufferSize = 10000
	shutdownTimeout = 10 * time.Second
)

// streamedEvents are forwarded to websocket clients
var streamedEvents = []string{
	types.EventBlockArchived,
	types.EventTransactionArchived,
	types.EventLogArchived,
	types.EventContractEvent,
	types.EventBlockReorged,
}

// Service interface for all services
type Service interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	GetName() string
	Status() map[string]interface{}
}

// App represents the main application
type App struct {
	config        *config.Config
	logger        *zap.Logger
	registry      *prometheus.Registry
	client        *client.Client
	eventManager  *event.Manager
	kafkaProducer *kafka.EventProducer
	wsServer      *websocket.Server
	metricsServer *http.Server
	services      []Service
	context       context.Context
	cancelFunc    context.CancelFunc
	running       bool
	runningMutex  sync.Mutex
}

// NewApp connects the archive client and wires the event pipeline
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rpcMetrics := metrics.NewRPC(registry)
	archiveMetrics := metrics.NewArchive(registry)

	c, err := client.FromConfig(ctx, cfg, logger, rpcMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client: %w", err)
	}

	appCtx, cancel := context.WithCancel(context.Background())
	a := &App{
		config:       cfg,
		logger:       logger,
		registry:     registry,
		client:       c,
		eventManager: event.NewManager(cfg.Workers, eventBufferSize, logger),
		context:      appCtx,
		cancelFunc:   cancel,
	}

	if err := a.setup(archiveMetrics); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) setup(archiveMetrics *metrics.Archive) error {
	if a.config.Kafka.Broker != "" {
		producer, err := kafka.NewProducer(a.config.Kafka.Broker, a.logger)
		if err != nil {
			return err
		}
		a.kafkaProducer = kafka.NewEventProducer(producer, a.logger)
		a.setupTopicMappings()
	} else {
		a.logger.Warn("KAFKA_BROKER not set, archived events are not published to kafka")
	}

	if a.config.WebSocketPort != "" {
		a.wsServer = websocket.NewServer(a.config.WebSocketPort, a.registry, a.logger)
		a.wsServer.SetStatusFunc(a.Status)
		for _, eventType := range streamedEvents {
			a.eventManager.Subscribe(eventType, a.wsServer.HandleEvent)
		}
	}

	if a.config.MetricsPort != "" && a.config.MetricsPort != a.config.WebSocketPort {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		a.metricsServer = &http.Server{
			Addr:              ":" + a.config.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return a.setupServices(archiveMetrics)
}

// setupTopicMappings maps the archive event types to Kafka topics and routes
// each of them through a batch processor
func (a *App) setupTopicMappings() {
	a.kafkaProducer.RegisterTopics(a.config.Kafka)
	for _, eventType := range a.kafkaProducer.EventTypes() {
		a.eventManager.RegisterBatchProcessor(eventType, a.kafkaProducer.ProcessEvents)
	}
	a.logger.Info("kafka topics mapped",
		zap.String("blocks", a.config.Kafka.TopicBlocks),
		zap.String("transactions", a.config.Kafka.TopicTransactions),
		zap.String("logs", a.config.Kafka.TopicLogs),
		zap.String("events", a.config.Kafka.TopicContractEvents),
	)
}

func (a *App) setupServices(archiveMetrics *metrics.Archive) error {
	options := []service.ServiceOption{
		service.WithChainID(a.config.Chain.ID),
		service.WithPollInterval(a.config.PollingInterval),
		service.WithWorkerCount(a.config.Workers),
		service.WithLogger(a.logger),
	}

	if a.config.EnableRealtime {
		a.services = append(a.services, archiver.NewBlockArchiver(a.client, a.eventManager, archiveMetrics, options...))
	}

	if len(a.config.WatchContracts) > 0 {
		contracts, err := archiver.ContractsFromConfig(a.config.WatchContracts)
		if err != nil {
			return err
		}
		a.services = append(a.services, archiver.NewContractArchiver(a.client, a.eventManager, contracts, archiveMetrics, options...))
	}

	if len(a.services) == 0 {
		a.logger.Warn("no archiver enabled; set ENABLE_REALTIME or WATCH_CONTRACTS")
	}
	return nil
}

// Start starts the application
func (a *App) Start() error {
	a.runningMutex.Lock()
	defer a.runningMutex.Unlock()

	if a.running {
		return nil
	}

	a.logger.Info("starting archive",
		zap.Uint64("chainId", a.config.Chain.ID),
		zap.String("chain", a.config.Chain.Name),
		zap.String("rpc", a.config.RPCURL),
		zap.String("ws", a.config.WSURL),
	)

	if err := a.eventManager.Start(a.context); err != nil {
		return fmt.Errorf("failed to start event manager: %w", err)
	}

	if a.wsServer != nil {
		if err := a.wsServer.Start(); err != nil {
			return err
		}
	}

	if a.metricsServer != nil {
		listener, err := net.Listen("tcp", a.metricsServer.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on metrics port %s: %w", a.config.MetricsPort, err)
		}
		go func() {
			if err := a.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	for _, svc := range a.services {
		if err := svc.Start(a.context); err != nil {
			a.logger.Error("failed to start service", zap.String("service", svc.GetName()), zap.Error(err))
			continue
		}
		a.logger.Info("service running", zap.String("service", svc.GetName()))
	}

	a.running = true
	return nil
}

// Stop stops the services, flushes pending events and releases the client
func (a *App) Stop() {
	a.runningMutex.Lock()
	defer a.runningMutex.Unlock()

	if !a.running {
		return
	}

	a.logger.Info("stopping archive")

	for _, svc := range a.services {
		if svc.IsRunning() {
			svc.Stop()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.wsServer != nil {
		if err := a.wsServer.Stop(ctx); err != nil {
			a.logger.Warn("websocket server shutdown", zap.Error(err))
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}

	a.eventManager.Stop()
	a.close()

	a.running = false
	a.logger.Info("archive stopped")
}

func (a *App) close() {
	if a.kafkaProducer != nil {
		a.kafkaProducer.Close()
	}
	a.client.Close()
	a.cancelFunc()
}

// Status returns the status of every service
func (a *App) Status() map[string]interface{} {
	status := make(map[string]interface{}, len(a.services))
	for _, svc := range a.services {
		status[svc.GetName()] = svc.Status()
	}
	return status
}
