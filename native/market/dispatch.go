package market

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MessageInfo identifies the immediate caller of a command and the native
// coins it attached.
type MessageInfo struct {
	Sender string          `json:"sender"`
	Funds  []NativeBalance `json:"funds"`
}

type ListingRef struct {
	ListingID string `json:"listing_id"`
}

type BucketRef struct {
	BucketID string `json:"bucket_id"`
}

type CreateListingCmd struct {
	ListingID string           `json:"listing_id"`
	CreateMsg CreateListingMsg `json:"create_msg"`
}

type ChangeAskCmd struct {
	ListingID string         `json:"listing_id"`
	NewAsk    GenericBalance `json:"new_ask"`
}

type FinalizeCmd struct {
	ListingID string `json:"listing_id"`
	Seconds   uint64 `json:"seconds"`
}

type BuyListingCmd struct {
	ListingID string `json:"listing_id"`
	BucketID  string `json:"bucket_id"`
}

type FeeCycleCmd struct{}

// Cw20ReceiveMsg is the callback a cw20 contract sends after tokens were
// transferred to the marketplace. Msg carries a ReceivePayload.
type Cw20ReceiveMsg struct {
	Sender string  `json:"sender"`
	Amount Uint128 `json:"amount"`
	Msg    []byte  `json:"msg"`
}

// Cw721ReceiveMsg is the callback a cw721 contract sends after an NFT was
// transferred to the marketplace. Msg carries a ReceivePayload.
type Cw721ReceiveMsg struct {
	Sender  string `json:"sender"`
	TokenID string `json:"token_id"`
	Msg     []byte `json:"msg"`
}

// ExecuteMsg is the externally tagged command envelope. Exactly one field is
// set.
type ExecuteMsg struct {
	FeeCycle          *FeeCycleCmd        `json:"fee_cycle,omitempty"`
	Receive           *Cw20ReceiveMsg     `json:"receive,omitempty"`
	ReceiveNft        *Cw721ReceiveMsg    `json:"receive_nft,omitempty"`
	CreateListing     *CreateListingCmd   `json:"create_listing,omitempty"`
	AddToListing      *ListingRef         `json:"add_to_listing,omitempty"`
	ChangeAsk         *ChangeAskCmd       `json:"change_ask,omitempty"`
	Finalize          *FinalizeCmd        `json:"finalize,omitempty"`
	DeleteListing     *ListingRef         `json:"delete_listing,omitempty"`
	CreateBucket      *BucketRef          `json:"create_bucket,omitempty"`
	AddToBucket       *BucketRef          `json:"add_to_bucket,omitempty"`
	RemoveBucket      *BucketRef          `json:"remove_bucket,omitempty"`
	BuyListing        *BuyListingCmd      `json:"buy_listing,omitempty"`
	WithdrawPurchased *ListingRef         `json:"withdraw_purchased,omitempty"`
	UpdateAllowList   *UpdateAllowListMsg `json:"update_allow_list,omitempty"`
	UpdateFeeConfig   *UpdateFeeConfigMsg `json:"update_fee_config,omitempty"`
}

// Name returns the snake_case tag of the populated variant.
func (m *ExecuteMsg) Name() string {
	switch {
	case m == nil:
		return ""
	case m.FeeCycle != nil:
		return "fee_cycle"
	case m.Receive != nil:
		return "receive"
	case m.ReceiveNft != nil:
		return "receive_nft"
	case m.CreateListing != nil:
		return "create_listing"
	case m.AddToListing != nil:
		return "add_to_listing"
	case m.ChangeAsk != nil:
		return "change_ask"
	case m.Finalize != nil:
		return "finalize"
	case m.DeleteListing != nil:
		return "delete_listing"
	case m.CreateBucket != nil:
		return "create_bucket"
	case m.AddToBucket != nil:
		return "add_to_bucket"
	case m.RemoveBucket != nil:
		return "remove_bucket"
	case m.BuyListing != nil:
		return "buy_listing"
	case m.WithdrawPurchased != nil:
		return "withdraw_purchased"
	case m.UpdateAllowList != nil:
		return "update_allow_list"
	case m.UpdateFeeConfig != nil:
		return "update_fee_config"
	default:
		return ""
	}
}

func (m *ExecuteMsg) variants() int {
	n := 0
	for _, set := range []bool{
		m.FeeCycle != nil, m.Receive != nil, m.ReceiveNft != nil,
		m.CreateListing != nil, m.AddToListing != nil, m.ChangeAsk != nil,
		m.Finalize != nil, m.DeleteListing != nil, m.CreateBucket != nil,
		m.AddToBucket != nil, m.RemoveBucket != nil, m.BuyListing != nil,
		m.WithdrawPurchased != nil, m.UpdateAllowList != nil, m.UpdateFeeConfig != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// ReceivePayload is the inner command carried by cw20 and cw721 callbacks.
// The _cw20 variants are only valid on the token channel and the _cw721
// variants only on the NFT channel.
type ReceivePayload struct {
	CreateListingCw20  *CreateListingCmd `json:"create_listing_cw20,omitempty"`
	AddToListingCw20   *ListingRef       `json:"add_to_listing_cw20,omitempty"`
	CreateBucketCw20   *BucketRef        `json:"create_bucket_cw20,omitempty"`
	AddToBucketCw20    *BucketRef        `json:"add_to_bucket_cw20,omitempty"`
	CreateListingCw721 *CreateListingCmd `json:"create_listing_cw721,omitempty"`
	AddToListingCw721  *ListingRef       `json:"add_to_listing_cw721,omitempty"`
	CreateBucketCw721  *BucketRef        `json:"create_bucket_cw721,omitempty"`
	AddToBucketCw721   *BucketRef        `json:"add_to_bucket_cw721,omitempty"`
}

func (p *ReceivePayload) variants() (cw20, cw721 int) {
	for _, set := range []bool{p.CreateListingCw20 != nil, p.AddToListingCw20 != nil, p.CreateBucketCw20 != nil, p.AddToBucketCw20 != nil} {
		if set {
			cw20++
		}
	}
	for _, set := range []bool{p.CreateListingCw721 != nil, p.AddToListingCw721 != nil, p.CreateBucketCw721 != nil, p.AddToBucketCw721 != nil} {
		if set {
			cw721++
		}
	}
	return cw20, cw721
}

var (
	directCommands = map[string]struct{}{
		"fee_cycle": {}, "receive": {}, "receive_nft": {},
		"create_listing": {}, "add_to_listing": {}, "change_ask": {},
		"finalize": {}, "delete_listing": {}, "create_bucket": {},
		"add_to_bucket": {}, "remove_bucket": {}, "buy_listing": {},
		"withdraw_purchased": {}, "update_allow_list": {}, "update_fee_config": {},
	}
	receiveCommands = map[string]struct{}{
		"create_listing_cw20": {}, "add_to_listing_cw20": {},
		"create_bucket_cw20": {}, "add_to_bucket_cw20": {},
		"create_listing_cw721": {}, "add_to_listing_cw721": {},
		"create_bucket_cw721": {}, "add_to_bucket_cw721": {},
	}
)

// commandTag returns the single top-level key of raw, or "" when raw is not
// a one-key object.
func commandTag(raw []byte) string {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope) != 1 {
		return ""
	}
	for tag := range envelope {
		return tag
	}
	return ""
}

// DecodeExecuteMsg strictly decodes a command envelope.
func DecodeExecuteMsg(raw []byte) (*ExecuteMsg, error) {
	var msg ExecuteMsg
	if err := DecodeStrict(raw, &msg); err != nil {
		if tag := commandTag(raw); tag != "" {
			if _, ok := receiveCommands[tag]; ok {
				return nil, fmt.Errorf("%w: %s is only accepted inside a receive callback", ErrChannelMismatch, tag)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if n := msg.variants(); n != 1 {
		return nil, fmt.Errorf("%w: expected exactly one command, got %d", ErrInvalidMessage, n)
	}
	return &msg, nil
}

func decodeReceivePayload(raw []byte) (*ReceivePayload, error) {
	var payload ReceivePayload
	if err := DecodeStrict(raw, &payload); err != nil {
		if tag := commandTag(raw); tag != "" {
			if _, ok := directCommands[tag]; ok {
				return nil, fmt.Errorf("%w: %s cannot be sent through a receive callback", ErrChannelMismatch, tag)
			}
		}
		return nil, fmt.Errorf("%w: receive payload: %v", ErrInvalidMessage, err)
	}
	return &payload, nil
}

// DecodeStrict decodes a single JSON value into out, rejecting unknown
// fields and trailing data.
func DecodeStrict(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after message")
	}
	return nil
}

// Execute decodes raw and routes it through the channel it arrived on. For
// cw20 and cw721 callbacks the effective sender is the one named in the
// callback and the delivery is attributed to the calling contract.
func (e *Engine) Execute(env Env, info MessageInfo, raw []byte) (*Response, error) {
	msg, err := DecodeExecuteMsg(raw)
	if err != nil {
		return nil, err
	}
	return e.Dispatch(env, info, msg)
}

// Dispatch routes an already decoded command.
func (e *Engine) Dispatch(env Env, info MessageInfo, msg *ExecuteMsg) (*Response, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidMessage)
	}
	switch {
	case msg.Receive != nil:
		if err := rejectFunds(info, "receive"); err != nil {
			return nil, err
		}
		return e.receiveCw20(env, info.Sender, msg.Receive)
	case msg.ReceiveNft != nil:
		if err := rejectFunds(info, "receive_nft"); err != nil {
			return nil, err
		}
		return e.receiveCw721(env, info.Sender, msg.ReceiveNft)
	case msg.CreateListing != nil:
		delivery, err := nativeDelivery(info)
		if err != nil {
			return nil, err
		}
		return e.CreateListing(env, info.Sender, delivery, msg.CreateListing.ListingID, msg.CreateListing.CreateMsg)
	case msg.AddToListing != nil:
		delivery, err := nativeDelivery(info)
		if err != nil {
			return nil, err
		}
		return e.AddToListing(env, info.Sender, delivery, msg.AddToListing.ListingID)
	case msg.CreateBucket != nil:
		delivery, err := nativeDelivery(info)
		if err != nil {
			return nil, err
		}
		return e.CreateBucket(env, info.Sender, delivery, msg.CreateBucket.BucketID)
	case msg.AddToBucket != nil:
		delivery, err := nativeDelivery(info)
		if err != nil {
			return nil, err
		}
		return e.AddToBucket(env, info.Sender, delivery, msg.AddToBucket.BucketID)
	}

	if err := rejectFunds(info, msg.Name()); err != nil {
		return nil, err
	}
	switch {
	case msg.FeeCycle != nil:
		return e.FeeCycle(env, info.Sender)
	case msg.ChangeAsk != nil:
		return e.ChangeAsk(env, info.Sender, msg.ChangeAsk.ListingID, msg.ChangeAsk.NewAsk)
	case msg.Finalize != nil:
		return e.Finalize(env, info.Sender, msg.Finalize.ListingID, msg.Finalize.Seconds)
	case msg.DeleteListing != nil:
		return e.DeleteListing(env, info.Sender, msg.DeleteListing.ListingID)
	case msg.RemoveBucket != nil:
		return e.RemoveBucket(env, info.Sender, msg.RemoveBucket.BucketID)
	case msg.BuyListing != nil:
		return e.BuyListing(env, info.Sender, msg.BuyListing.ListingID, msg.BuyListing.BucketID)
	case msg.WithdrawPurchased != nil:
		return e.WithdrawPurchased(env, info.Sender, msg.WithdrawPurchased.ListingID)
	case msg.UpdateAllowList != nil:
		return e.UpdateAllowList(env, info.Sender, *msg.UpdateAllowList)
	case msg.UpdateFeeConfig != nil:
		return e.UpdateFeeConfig(env, info.Sender, *msg.UpdateFeeConfig)
	default:
		return nil, fmt.Errorf("%w: unknown command", ErrInvalidMessage)
	}
}

func (e *Engine) receiveCw20(env Env, tokenContract string, cb *Cw20ReceiveMsg) (*Response, error) {
	sender, err := e.callbackSender(cb.Sender)
	if err != nil {
		return nil, err
	}
	if cb.Amount.IsZero() {
		return nil, fmt.Errorf("%w: zero cw20 amount from %s", ErrInvalidBalance, tokenContract)
	}
	payload, err := decodeReceivePayload(cb.Msg)
	if err != nil {
		return nil, err
	}
	cw20, cw721 := payload.variants()
	if cw721 > 0 {
		return nil, fmt.Errorf("%w: nft command received from cw20 contract %s", ErrChannelMismatch, tokenContract)
	}
	if cw20 != 1 {
		return nil, fmt.Errorf("%w: expected exactly one cw20 command, got %d", ErrInvalidMessage, cw20)
	}
	delivery := TokenDelivery(tokenContract, cb.Amount)
	switch {
	case payload.CreateListingCw20 != nil:
		return e.CreateListing(env, sender, delivery, payload.CreateListingCw20.ListingID, payload.CreateListingCw20.CreateMsg)
	case payload.AddToListingCw20 != nil:
		return e.AddToListing(env, sender, delivery, payload.AddToListingCw20.ListingID)
	case payload.CreateBucketCw20 != nil:
		return e.CreateBucket(env, sender, delivery, payload.CreateBucketCw20.BucketID)
	default:
		return e.AddToBucket(env, sender, delivery, payload.AddToBucketCw20.BucketID)
	}
}

func (e *Engine) receiveCw721(env Env, nftContract string, cb *Cw721ReceiveMsg) (*Response, error) {
	sender, err := e.callbackSender(cb.Sender)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cb.TokenID) == "" {
		return nil, fmt.Errorf("%w: empty token id from %s", ErrInvalidBalance, nftContract)
	}
	payload, err := decodeReceivePayload(cb.Msg)
	if err != nil {
		return nil, err
	}
	cw20, cw721 := payload.variants()
	if cw20 > 0 {
		return nil, fmt.Errorf("%w: cw20 command received from nft contract %s", ErrChannelMismatch, nftContract)
	}
	if cw721 != 1 {
		return nil, fmt.Errorf("%w: expected exactly one nft command, got %d", ErrInvalidMessage, cw721)
	}
	delivery := NftDelivery(nftContract, cb.TokenID)
	switch {
	case payload.CreateListingCw721 != nil:
		return e.CreateListing(env, sender, delivery, payload.CreateListingCw721.ListingID, payload.CreateListingCw721.CreateMsg)
	case payload.AddToListingCw721 != nil:
		return e.AddToListing(env, sender, delivery, payload.AddToListingCw721.ListingID)
	case payload.CreateBucketCw721 != nil:
		return e.CreateBucket(env, sender, delivery, payload.CreateBucketCw721.BucketID)
	default:
		return e.AddToBucket(env, sender, delivery, payload.AddToBucketCw721.BucketID)
	}
}

func (e *Engine) callbackSender(raw string) (string, error) {
	sender, err := e.addrs.Validate(raw)
	if err != nil {
		return "", fmt.Errorf("%w: callback sender: %v", ErrInvalidMessage, err)
	}
	return sender, nil
}

func nativeDelivery(info MessageInfo) (Delivery, error) {
	if err := ValidateFunds(info.Funds); err != nil {
		return Delivery{}, err
	}
	return NativeDelivery(info.Funds), nil
}

func rejectFunds(info MessageInfo, command string) error {
	if len(info.Funds) > 0 {
		return fmt.Errorf("%w: %s does not accept attached funds", ErrInvalidMessage, command)
	}
	return nil
}
