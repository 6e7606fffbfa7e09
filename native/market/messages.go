package market

import (
	"encoding/json"
	"fmt"

	wasmvmtypes "github.com/CosmWasm/wasmvm/types"
)

type cw20TransferMsg struct {
	Transfer struct {
		Recipient string  `json:"recipient"`
		Amount    Uint128 `json:"amount"`
	} `json:"transfer"`
}

type cw721TransferMsg struct {
	TransferNft struct {
		Recipient string `json:"recipient"`
		TokenID   string `json:"token_id"`
	} `json:"transfer_nft"`
}

// TransferMsgs builds the outbound custody messages that move bundle to
// recipient: one bank send for all natives, then one cw20 transfer per token
// contract and one cw721 transfer per NFT.
func TransferMsgs(recipient string, bundle GenericBalance) ([]wasmvmtypes.CosmosMsg, error) {
	if bundle.IsEmpty() {
		return nil, nil
	}
	msgs := make([]wasmvmtypes.CosmosMsg, 0, 1+len(bundle.Cw20)+len(bundle.Nfts))
	if len(bundle.Native) > 0 {
		coins := make(wasmvmtypes.Coins, 0, len(bundle.Native))
		for _, coin := range bundle.Native {
			coins = append(coins, wasmvmtypes.Coin{Denom: coin.Denom, Amount: coin.Amount.String()})
		}
		msgs = append(msgs, wasmvmtypes.CosmosMsg{
			Bank: &wasmvmtypes.BankMsg{Send: &wasmvmtypes.SendMsg{ToAddress: recipient, Amount: coins}},
		})
	}
	for _, token := range bundle.Cw20 {
		var body cw20TransferMsg
		body.Transfer.Recipient = recipient
		body.Transfer.Amount = token.Amount
		msg, err := wasmExecute(token.Address, body)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	for _, nft := range bundle.Nfts {
		var body cw721TransferMsg
		body.TransferNft.Recipient = recipient
		body.TransferNft.TokenID = nft.TokenID
		msg, err := wasmExecute(nft.Contract, body)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func wasmExecute(contract string, body any) (wasmvmtypes.CosmosMsg, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return wasmvmtypes.CosmosMsg{}, fmt.Errorf("encode transfer for %s: %w", contract, err)
	}
	return wasmvmtypes.CosmosMsg{
		Wasm: &wasmvmtypes.WasmMsg{Execute: &wasmvmtypes.ExecuteMsg{
			ContractAddr: contract,
			Msg:          payload,
			Funds:        wasmvmtypes.Coins{},
		}},
	}, nil
}
