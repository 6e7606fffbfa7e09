package royalty

import (
	"encoding/json"
	"fmt"
	"strings"

	"cyberswap/core/events"
	"cyberswap/core/types"
	"cyberswap/native/market"
)

const (
	EventTypeRoyaltySet     = "cyberswap.royalty.set"
	EventTypeRoyaltyRemoved = "cyberswap.royalty.removed"
)

// Entry is the royalty registered for one NFT collection.
type Entry struct {
	Collection string `json:"collection"`
	Payout     string `json:"payout"`
	Bps        uint32 `json:"bps"`
}

type engineState interface {
	RoyaltyAdmin() (string, bool, error)
	PutRoyaltyAdmin(admin string) error
	RoyaltyEntry(collection string) (*Entry, bool, error)
	PutRoyaltyEntry(entry *Entry) error
	DeleteRoyaltyEntry(collection string) error
	RoyaltyEntries(offset, limit int) ([]*Entry, error)
}

// Engine is the royalty registry contract. Its admin curates one entry per
// collection; anyone may query.
type Engine struct {
	state   engineState
	addrs   market.AddressValidator
	emitter events.Emitter
}

func NewEngine(addrs market.AddressValidator) *Engine {
	return &Engine{addrs: addrs, emitter: events.NoopEmitter{}}
}

func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Typed{Record: evt})
}

// Instantiate records the registry admin.
func (e *Engine) Instantiate(admin string) error {
	if e.state == nil {
		return fmt.Errorf("royalty engine: state not configured")
	}
	canonical, err := e.addrs.Validate(admin)
	if err != nil {
		return fmt.Errorf("%w: royalty admin: %v", market.ErrInvalidMessage, err)
	}
	return e.state.PutRoyaltyAdmin(canonical)
}

type SetRoyaltyMsg struct {
	Collection string `json:"collection"`
	Payout     string `json:"payout"`
	Bps        uint32 `json:"bps"`
}

type RemoveRoyaltyMsg struct {
	Collection string `json:"collection"`
}

// ExecuteMsg is the registry command envelope. Exactly one field is set.
type ExecuteMsg struct {
	SetRoyalty    *SetRoyaltyMsg    `json:"set_royalty,omitempty"`
	RemoveRoyalty *RemoveRoyaltyMsg `json:"remove_royalty,omitempty"`
}

func (m *ExecuteMsg) Name() string {
	switch {
	case m.SetRoyalty != nil:
		return "set_royalty"
	case m.RemoveRoyalty != nil:
		return "remove_royalty"
	default:
		return ""
	}
}

// Execute decodes and applies a registry command sent by sender.
func (e *Engine) Execute(sender string, raw []byte) (string, error) {
	var msg ExecuteMsg
	if err := market.DecodeStrict(raw, &msg); err != nil {
		return "", fmt.Errorf("%w: %v", market.ErrInvalidMessage, err)
	}
	if (msg.SetRoyalty == nil) == (msg.RemoveRoyalty == nil) {
		return "", fmt.Errorf("%w: expected exactly one registry command", market.ErrInvalidMessage)
	}
	if err := e.requireAdmin(sender); err != nil {
		return "", err
	}
	if msg.SetRoyalty != nil {
		return msg.Name(), e.SetRoyalty(*msg.SetRoyalty)
	}
	return msg.Name(), e.RemoveRoyalty(msg.RemoveRoyalty.Collection)
}

// SetRoyalty registers or replaces the royalty of a collection.
func (e *Engine) SetRoyalty(msg SetRoyaltyMsg) error {
	collection, err := e.addrs.Validate(msg.Collection)
	if err != nil {
		return fmt.Errorf("%w: collection: %v", market.ErrInvalidMessage, err)
	}
	payout, err := e.addrs.Validate(msg.Payout)
	if err != nil {
		return fmt.Errorf("%w: payout: %v", market.ErrInvalidMessage, err)
	}
	if msg.Bps > market.BpsDenominator {
		return fmt.Errorf("%w: royalty of %d bps exceeds %d", market.ErrInvalidMessage, msg.Bps, market.BpsDenominator)
	}
	entry := &Entry{Collection: collection, Payout: payout, Bps: msg.Bps}
	if err := e.state.PutRoyaltyEntry(entry); err != nil {
		return err
	}
	e.emit(&types.Event{Type: EventTypeRoyaltySet, Attributes: map[string]string{
		"collection": entry.Collection,
		"payout":     entry.Payout,
		"bps":        fmt.Sprintf("%d", entry.Bps),
	}})
	return nil
}

// RemoveRoyalty drops the royalty of a collection.
func (e *Engine) RemoveRoyalty(collection string) error {
	canonical, err := e.addrs.Validate(collection)
	if err != nil {
		return fmt.Errorf("%w: collection: %v", market.ErrInvalidMessage, err)
	}
	if _, ok, err := e.state.RoyaltyEntry(canonical); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: royalty for %s", market.ErrNotFound, canonical)
	}
	if err := e.state.DeleteRoyaltyEntry(canonical); err != nil {
		return err
	}
	e.emit(&types.Event{Type: EventTypeRoyaltyRemoved, Attributes: map[string]string{"collection": canonical}})
	return nil
}

func (e *Engine) requireAdmin(sender string) error {
	if e.state == nil {
		return fmt.Errorf("royalty engine: state not configured")
	}
	admin, ok, err := e.state.RoyaltyAdmin()
	if err != nil {
		return err
	}
	if !ok || !strings.EqualFold(admin, sender) {
		return fmt.Errorf("%w: %s is not the royalty registry admin", market.ErrUnauthorized, sender)
	}
	return nil
}

type RoyaltyInfoQuery struct {
	Collection string `json:"collection"`
}

type ListRoyaltiesQuery struct {
	PageNum uint32 `json:"page_num"`
}

type QueryMsg struct {
	RoyaltyInfo   *RoyaltyInfoQuery   `json:"royalty_info,omitempty"`
	ListRoyalties *ListRoyaltiesQuery `json:"list_royalties,omitempty"`
}

type RoyaltyInfoResponse struct {
	Royalty *market.RoyaltyInfo `json:"royalty"`
}

type ListRoyaltiesResponse struct {
	Royalties []*Entry `json:"royalties"`
}

// Query answers a raw registry query.
func (e *Engine) Query(raw []byte) ([]byte, error) {
	var msg QueryMsg
	if err := market.DecodeStrict(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", market.ErrInvalidMessage, err)
	}
	switch {
	case msg.RoyaltyInfo != nil && msg.ListRoyalties == nil:
		info, err := e.RoyaltyInfo(msg.RoyaltyInfo.Collection)
		if err != nil {
			return nil, err
		}
		return json.Marshal(RoyaltyInfoResponse{Royalty: info})
	case msg.ListRoyalties != nil && msg.RoyaltyInfo == nil:
		offset := 0
		if msg.ListRoyalties.PageNum > 1 {
			offset = int(msg.ListRoyalties.PageNum-1) * market.PageSize
		}
		entries, err := e.state.RoyaltyEntries(offset, market.PageSize)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []*Entry{}
		}
		return json.Marshal(ListRoyaltiesResponse{Royalties: entries})
	default:
		return nil, fmt.Errorf("%w: expected exactly one registry query", market.ErrInvalidMessage)
	}
}

// RoyaltyInfo returns the royalty registered for collection, or nil when none
// is.
func (e *Engine) RoyaltyInfo(collection string) (*market.RoyaltyInfo, error) {
	if e.state == nil {
		return nil, fmt.Errorf("royalty engine: state not configured")
	}
	canonical, err := e.addrs.Validate(collection)
	if err != nil {
		return nil, fmt.Errorf("%w: collection: %v", market.ErrInvalidMessage, err)
	}
	entry, ok, err := e.state.RoyaltyEntry(canonical)
	if err != nil || !ok {
		return nil, err
	}
	return &market.RoyaltyInfo{Payout: entry.Payout, Bps: entry.Bps}, nil
}
