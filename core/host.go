package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	wasmvmtypes "github.com/CosmWasm/wasmvm/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	hosterrors "cyberswap/core/errors"
	"cyberswap/core/events"
	"cyberswap/core/state"
	"cyberswap/core/types"
	"cyberswap/crypto"
	"cyberswap/native/market"
	"cyberswap/native/royalty"
	"cyberswap/observability"
	"cyberswap/storage"
)

// MarketCodeID is the code id the marketplace contract address is derived
// from.
const MarketCodeID uint64 = 1

// Result is the outcome of an accepted execution.
type Result struct {
	Contract string                  `json:"contract"`
	Action   string                  `json:"action"`
	Height   uint64                  `json:"height"`
	Time     int64                   `json:"time"`
	Messages []wasmvmtypes.CosmosMsg `json:"messages"`
	Events   []*types.Event          `json:"events"`
}

// Status summarises the host for health and status endpoints.
type Status struct {
	Height   uint64 `json:"height"`
	Time     int64  `json:"time"`
	Market   string `json:"market,omitempty"`
	Registry string `json:"registry,omitempty"`
}

// Host runs the marketplace and royalty registry contracts over a shared
// database. Executions are serialized and each one runs in its own storage
// transaction that commits only when the contract call succeeds.
type Host struct {
	mu          sync.Mutex
	db          storage.Database
	codec       crypto.Codec
	clock       Clock
	logger      *slog.Logger
	metrics     *observability.MarketMetrics
	eventCounts interface{ RecordEvent(string) }
	tracer      trace.Tracer
	contracts   *state.Contracts
}

// HostOption customises a Host.
type HostOption func(*Host)

// WithLogger sets the logger used for execution outcomes.
func WithLogger(logger *slog.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics enables prometheus execution and event metrics.
func WithMetrics(m *observability.MarketMetrics) HostOption {
	return func(h *Host) {
		h.metrics = m
		if m != nil {
			h.eventCounts = observability.Events()
		}
	}
}

// NewHost opens a host over db. Previously instantiated contracts are
// reloaded from the database.
func NewHost(db storage.Database, codec crypto.Codec, clock Clock, opts ...HostOption) (*Host, error) {
	if db == nil {
		return nil, fmt.Errorf("host: database required")
	}
	if clock == nil {
		clock = NewBlockClock(BlockInfo{Height: 1, Time: time.Now().Unix()})
	}
	h := &Host{
		db:     db,
		codec:  codec,
		clock:  clock,
		logger: slog.Default(),
		tracer: otel.Tracer("cyberswap/host"),
	}
	for _, opt := range opts {
		opt(h)
	}
	contracts, ok, err := state.NewManager(db).HostContracts()
	if err != nil {
		return nil, fmt.Errorf("host: load contracts: %w", err)
	}
	if ok {
		h.contracts = contracts
	}
	return h, nil
}

// Codec returns the address codec used by the host.
func (h *Host) Codec() crypto.Codec { return h.codec }

// Contracts returns the instantiated contract addresses, or nil before
// instantiation.
func (h *Host) Contracts() *state.Contracts {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.contracts == nil {
		return nil
	}
	copyContracts := *h.contracts
	return &copyContracts
}

// Status reports the current block and contract addresses.
func (h *Host) Status() Status {
	block := h.clock.Current()
	status := Status{Height: block.Height, Time: block.Time}
	if c := h.Contracts(); c != nil {
		status.Market = c.Market
		status.Registry = c.Registry
	}
	return status
}

// Instantiate deploys the marketplace for sender and, when msg names a
// royalty code id, the companion royalty registry administered by the
// marketplace admin.
func (h *Host) Instantiate(ctx context.Context, sender string, msg market.InstantiateMsg) (*state.Contracts, error) {
	_, span := h.tracer.Start(ctx, "host.instantiate")
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.contracts != nil {
		return nil, hosterrors.ErrAlreadyInstantiated
	}
	creator, err := h.codec.Validate(sender)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", hosterrors.ErrInvalidSender, err)
	}
	block := h.clock.Current()
	contracts := &state.Contracts{
		Market:           h.codec.ContractAddress(creator, MarketCodeID),
		InstantiatedAt:   block.Height,
		InstantiatedTime: uint64(block.Time),
	}
	if msg.RoyaltyCodeID != 0 {
		contracts.Registry = h.codec.ContractAddress(contracts.Market, msg.RoyaltyCodeID)
	}

	err = h.inTxn(block, func(mgr *state.Manager, _ *events.Recorder) error {
		eng := market.NewEngine(h.codec)
		eng.SetState(mgr)
		env := market.Env{Height: block.Height, Time: block.Time, Contract: contracts.Market}
		if err := eng.Instantiate(env, creator, msg, contracts.Registry); err != nil {
			return err
		}
		if contracts.Registry != "" {
			cfg, _, err := mgr.MarketConfig()
			if err != nil {
				return err
			}
			reg := royalty.NewEngine(h.codec)
			reg.SetState(mgr)
			if err := reg.Instantiate(cfg.Admin); err != nil {
				return err
			}
		}
		return mgr.PutHostContracts(contracts)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.Error("host: instantiate failed", slog.String("sender", creator), slog.Any("error", err))
		return nil, err
	}
	h.contracts = contracts
	h.clock.Commit()
	span.SetAttributes(attribute.String("market", contracts.Market), attribute.String("registry", contracts.Registry))
	h.logger.Info("host: instantiated",
		slog.String("market", contracts.Market),
		slog.String("registry", contracts.Registry),
		slog.Uint64("height", block.Height))
	copyContracts := *contracts
	return &copyContracts, nil
}

// Execute runs raw against contract on behalf of sender with funds attached.
// All state writes of the call commit together or not at all.
func (h *Host) Execute(ctx context.Context, contract, sender string, funds []market.NativeBalance, raw []byte) (*Result, error) {
	start := time.Now()
	_, span := h.tracer.Start(ctx, "host.execute", trace.WithAttributes(attribute.String("contract", contract)))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	block := h.clock.Current()
	contractKind, command := "unknown", ""
	result, err := func() (*Result, error) {
		if h.contracts == nil {
			return nil, hosterrors.ErrNotInstantiated
		}
		caller, err := h.codec.Validate(sender)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", hosterrors.ErrInvalidSender, err)
		}
		env := market.Env{Height: block.Height, Time: block.Time, Contract: contract}
		var resp *market.Response
		var recorded []*types.Event
		switch contract {
		case h.contracts.Market:
			contractKind = "market"
			msg, err := market.DecodeExecuteMsg(raw)
			if err != nil {
				return nil, err
			}
			command = msg.Name()
			err = h.inTxn(block, func(mgr *state.Manager, rec *events.Recorder) error {
				eng := h.marketEngine(mgr, rec)
				out, err := eng.Dispatch(env, market.MessageInfo{Sender: caller, Funds: funds}, msg)
				if err != nil {
					return err
				}
				resp = out
				recorded = rec.Drain()
				return nil
			})
			if err != nil {
				return nil, err
			}
		case h.contracts.Registry:
			if contract == "" {
				return nil, fmt.Errorf("%w: %q", hosterrors.ErrUnknownContract, contract)
			}
			contractKind = "royalty"
			if len(funds) > 0 {
				return nil, fmt.Errorf("%w: royalty registry does not accept funds", market.ErrInvalidMessage)
			}
			err = h.inTxn(block, func(mgr *state.Manager, rec *events.Recorder) error {
				reg := royalty.NewEngine(h.codec)
				reg.SetState(mgr)
				reg.SetEmitter(rec)
				action, err := reg.Execute(caller, raw)
				command = action
				if err != nil {
					return err
				}
				resp = &market.Response{Action: action}
				recorded = rec.Drain()
				return nil
			})
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: %q", hosterrors.ErrUnknownContract, contract)
		}
		return &Result{
			Contract: contract,
			Action:   resp.Action,
			Height:   block.Height,
			Time:     block.Time,
			Messages: resp.Messages,
			Events:   recorded,
		}, nil
	}()

	kind := ""
	if err != nil {
		kind = market.ErrorKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.Warn("host: execution rejected",
			slog.String("contract", contractKind),
			slog.String("command", command),
			slog.String("sender", sender),
			slog.String("kind", kind),
			slog.Any("error", err))
	} else {
		h.clock.Commit()
		span.SetAttributes(attribute.String("command", command), attribute.Int("messages", len(result.Messages)))
		h.recordMessages(result.Messages)
		if h.eventCounts != nil {
			for _, evt := range result.Events {
				h.eventCounts.RecordEvent(evt.Type)
			}
		}
		h.metrics.SetHeight(block.Height)
		h.logger.Info("host: execution committed",
			slog.String("contract", contractKind),
			slog.String("command", command),
			slog.String("sender", sender),
			slog.Uint64("height", block.Height),
			slog.Int("messages", len(result.Messages)),
			slog.Int("events", len(result.Events)))
	}
	h.metrics.ObserveExecution(contractKind, command, kind, time.Since(start))
	return result, err
}

// Query answers raw against the committed state of contract.
func (h *Host) Query(ctx context.Context, contract string, raw []byte) ([]byte, error) {
	_, span := h.tracer.Start(ctx, "host.query", trace.WithAttributes(attribute.String("contract", contract)))
	defer span.End()

	contracts := h.Contracts()
	if contracts == nil {
		return nil, hosterrors.ErrNotInstantiated
	}
	mgr := state.NewManager(h.db)
	block := h.clock.Current()
	var (
		out []byte
		err error
	)
	switch {
	case contract == contracts.Market:
		eng := h.marketEngine(mgr, nil)
		out, err = eng.Query(market.Env{Height: block.Height, Time: block.Time, Contract: contract}, raw)
	case contracts.Registry != "" && contract == contracts.Registry:
		reg := royalty.NewEngine(h.codec)
		reg.SetState(mgr)
		out, err = reg.Query(raw)
	default:
		err = fmt.Errorf("%w: %q", hosterrors.ErrUnknownContract, contract)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (h *Host) marketEngine(mgr *state.Manager, rec *events.Recorder) *market.Engine {
	eng := market.NewEngine(h.codec)
	eng.SetState(mgr)
	if rec != nil {
		eng.SetEmitter(rec)
	}
	if h.contracts != nil && h.contracts.Registry != "" {
		reg := royalty.NewEngine(h.codec)
		reg.SetState(mgr)
		eng.SetRoyaltyQuerier(registryClient{registry: h.contracts.Registry, engine: reg})
	}
	return eng
}

// inTxn runs fn inside a storage transaction and commits only when fn
// succeeds. The block is recorded as the last committed one in the same
// transaction.
func (h *Host) inTxn(block BlockInfo, fn func(*state.Manager, *events.Recorder) error) error {
	txn, err := h.db.Begin()
	if err != nil {
		return err
	}
	rec := &events.Recorder{}
	mgr := state.NewManager(txn)
	if err := fn(mgr, rec); err != nil {
		txn.Discard()
		return err
	}
	if err := mgr.PutLastBlock(&state.BlockRecord{Height: block.Height, Time: uint64(block.Time)}); err != nil {
		txn.Discard()
		return err
	}
	if err := txn.Commit(); err != nil {
		txn.Discard()
		return fmt.Errorf("host: commit: %w", err)
	}
	return nil
}

func (h *Host) recordMessages(msgs []wasmvmtypes.CosmosMsg) {
	var bank, wasm int
	for _, msg := range msgs {
		switch {
		case msg.Bank != nil:
			bank++
		case msg.Wasm != nil:
			wasm++
		}
	}
	h.metrics.RecordMessages("bank", bank)
	h.metrics.RecordMessages("wasm", wasm)
}

// registryClient answers marketplace royalty lookups from the registry
// contract sharing the caller's transaction.
type registryClient struct {
	registry string
	engine   *royalty.Engine
}

func (c registryClient) RoyaltyInfo(registry, collection string) (*market.RoyaltyInfo, error) {
	if registry != c.registry {
		return nil, fmt.Errorf("%w: royalty registry %q", hosterrors.ErrUnknownContract, registry)
	}
	info, err := c.engine.RoyaltyInfo(collection)
	if errors.Is(err, market.ErrInvalidMessage) {
		// Collections the registry cannot parse simply carry no royalty.
		return nil, nil
	}
	return info, err
}
