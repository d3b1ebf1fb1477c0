package archiver

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/client"
	"github.com/Panorama-Block/archive/internal/config"
	"github.com/Panorama-Block/archive/internal/metrics"
	"github.com/Panorama-Block/archive/internal/service"
	"github.com/Panorama-Block/archive/internal/types"
)

const contractServiceName = "contracts"

// EventSource is the part of the archive client the contract archiver uses
type EventSource interface {
	WatchContractEvent(ctx context.Context, opts client.WatchContractEventOptions) (client.Unwatch, error)
}

// Contract is a watched contract. A nil ABI archives raw logs.
type Contract struct {
	Address common.Address
	ABI     *abi.ABI
}

// ContractsFromConfig loads the ABI of every configured contract
func ContractsFromConfig(watch []config.WatchContract) ([]Contract, error) {
	contracts := make([]Contract, 0, len(watch))
	for _, w := range watch {
		c := Contract{Address: w.Address}
		if w.ABIPath != "" {
			parsed, err := client.LoadABI(w.ABIPath)
			if err != nil {
				return nil, fmt.Errorf("contract %s: %w", w.Address.Hex(), err)
			}
			c.ABI = parsed
		}
		contracts = append(contracts, c)
	}
	return contracts, nil
}

// ContractArchiver publishes the decoded events of a set of contracts
type ContractArchiver struct {
	*service.Base
	source    EventSource
	contracts []Contract
	metrics   *metrics.Archive

	mutex     sync.Mutex
	unwatches []client.Unwatch
	archived  map[common.Address]uint64
}

// NewContractArchiver creates a contract archiver. archiveMetrics may be nil.
func NewContractArchiver(source EventSource, publisher service.EventPublisher, contracts []Contract, archiveMetrics *metrics.Archive, options ...service.ServiceOption) *ContractArchiver {
	if archiveMetrics == nil {
		archiveMetrics = metrics.NewArchive(nil)
	}
	return &ContractArchiver{
		Base:      service.NewBase(publisher, contractServiceName, options...),
		source:    source,
		contracts: contracts,
		metrics:   archiveMetrics,
		archived:  make(map[common.Address]uint64),
	}
}

// Start starts one event watcher per contract
func (a *ContractArchiver) Start(parent context.Context) error {
	ctx, err := a.Base.Start(parent)
	if err != nil {
		return err
	}

	for _, contract := range a.contracts {
		logger := a.Logger().With(zap.Stringer("contract", contract.Address))
		unwatch, err := a.source.WatchContractEvent(ctx, client.WatchContractEventOptions{
			Address:         []common.Address{contract.Address},
			ABI:             contract.ABI,
			Batch:           true,
			PollingInterval: a.GetPollInterval(),
			OnLogs: func(logs []types.DecodedLog) {
				a.archiveLogs(ctx, contract.Address, logs)
			},
			OnError: func(err error) {
				logger.Warn("event watch failed", zap.Error(err))
			},
		})
		if err != nil {
			a.Stop()
			return fmt.Errorf("failed to watch %s: %w", contract.Address.Hex(), err)
		}

		a.mutex.Lock()
		a.unwatches = append(a.unwatches, unwatch)
		a.mutex.Unlock()
		logger.Info("watching contract events", zap.Bool("decoded", contract.ABI != nil))
	}
	return nil
}

// Stop stops every watcher
func (a *ContractArchiver) Stop() {
	a.mutex.Lock()
	unwatches := a.unwatches
	a.unwatches = nil
	a.mutex.Unlock()

	for _, unwatch := range unwatches {
		unwatch()
	}
	a.Base.Stop()
}

func (a *ContractArchiver) archiveLogs(ctx context.Context, address common.Address, logs []types.DecodedLog) {
	published := uint64(0)
	for _, l := range logs {
		key := fmt.Sprintf("%s:%d", l.TransactionHash.Hex(), l.LogIndex)
		if err := a.PublishEvent(ctx, types.EventContractEvent, key, l); err != nil {
			a.metrics.PublishFailures.Inc()
			a.Logger().Error("failed to publish contract event",
				zap.Stringer("contract", address),
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		published++
	}
	a.metrics.ContractEvents.Add(float64(published))

	a.mutex.Lock()
	a.archived[address] += published
	a.mutex.Unlock()
}

// Status returns the number of events archived per contract
func (a *ContractArchiver) Status() map[string]interface{} {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	events := make(map[string]uint64, len(a.contracts))
	for _, contract := range a.contracts {
		events[contract.Address.Hex()] = a.archived[contract.Address]
	}
	return map[string]interface{}{
		"chainId":   a.GetChainID(),
		"running":   a.IsRunning(),
		"contracts": len(a.contracts),
		"events":    events,
	}
}
