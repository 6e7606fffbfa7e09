package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cyberswap/native/market"
)

type AssetEntry struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

type FeeAssetEntry struct {
	Native string `yaml:"native,omitempty"`
	Cw20   string `yaml:"cw20,omitempty"`
}

type RoyaltySeed struct {
	Collection string `yaml:"collection"`
	Payout     string `yaml:"payout"`
	Bps        uint32 `yaml:"bps"`
}

// Genesis describes how the node instantiates the marketplace on first start.
type Genesis struct {
	Instantiator  string        `yaml:"instantiator"`
	StartHeight   uint64        `yaml:"startHeight"`
	StartTime     int64         `yaml:"startTime"`
	Admin         string        `yaml:"admin,omitempty"`
	RoyaltyCodeID uint64        `yaml:"royaltyCodeId"`
	Natives       []AssetEntry  `yaml:"natives"`
	Tokens        []AssetEntry  `yaml:"tokens"`
	Nfts          []AssetEntry  `yaml:"nfts"`
	FeeAssetA     FeeAssetEntry `yaml:"feeAssetA"`
	FeeAssetB     FeeAssetEntry `yaml:"feeAssetB"`
	FeeBps        *uint32       `yaml:"feeBps,omitempty"`
	FeeCollector  string        `yaml:"feeCollector,omitempty"`
	Royalties     []RoyaltySeed `yaml:"royalties"`
}

// LoadGenesis reads and validates a YAML genesis document.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return ParseGenesis(data)
}

// ParseGenesis decodes a genesis document, rejecting unknown fields.
func ParseGenesis(data []byte) (*Genesis, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var g Genesis
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks the fields the host cannot default.
func (g *Genesis) Validate() error {
	if g == nil {
		return errors.New("genesis: document required")
	}
	if strings.TrimSpace(g.Instantiator) == "" {
		return errors.New("genesis: instantiator required")
	}
	if g.FeeBps != nil && *g.FeeBps > market.BpsDenominator {
		return fmt.Errorf("genesis: feeBps %d exceeds %d", *g.FeeBps, market.BpsDenominator)
	}
	if len(g.Royalties) > 0 && g.RoyaltyCodeID == 0 {
		return errors.New("genesis: royalties require royaltyCodeId")
	}
	seen := make(map[string]struct{}, len(g.Royalties))
	for _, seed := range g.Royalties {
		if seed.Bps > market.BpsDenominator {
			return fmt.Errorf("genesis: royalty for %s exceeds %d bps", seed.Collection, market.BpsDenominator)
		}
		if _, dup := seen[seed.Collection]; dup {
			return fmt.Errorf("genesis: duplicate royalty for %s", seed.Collection)
		}
		seen[seed.Collection] = struct{}{}
	}
	return nil
}

// InstantiateMsg converts the document into the marketplace instantiate
// message.
func (g *Genesis) InstantiateMsg() market.InstantiateMsg {
	return market.InstantiateMsg{
		RoyaltyCodeID: g.RoyaltyCodeID,
		Admin:         g.Admin,
		Natives:       allowed(g.Natives),
		Tokens:        allowed(g.Tokens),
		Nfts:          allowed(g.Nfts),
		FeeAssets: market.FeeAssets{
			A: market.FeeAsset{Native: g.FeeAssetA.Native, Cw20: g.FeeAssetA.Cw20},
			B: market.FeeAsset{Native: g.FeeAssetB.Native, Cw20: g.FeeAssetB.Cw20},
		},
		FeeBps:       g.FeeBps,
		FeeCollector: g.FeeCollector,
	}
}

// RoyaltyAdmin is the account that seeds the registry: the explicit admin or,
// failing that, the instantiator.
func (g *Genesis) RoyaltyAdmin() string {
	if strings.TrimSpace(g.Admin) != "" {
		return g.Admin
	}
	return g.Instantiator
}

func allowed(entries []AssetEntry) []market.AllowedAsset {
	if len(entries) == 0 {
		return nil
	}
	out := make([]market.AllowedAsset, len(entries))
	for i, e := range entries {
		out[i] = market.AllowedAsset{Name: e.Name, ID: e.ID}
	}
	return out
}
