package models

import (
	"math/big"
	"time"
)

// Token represents an ERC-20 token tracked by the ledger.
// Supply fields are owned by the aggregate path, holder fields by the holder counter.
type Token struct {
	Address  string `json:"address" db:"address"`
	Name     string `json:"name" db:"name"`
	Symbol   string `json:"symbol" db:"symbol"`
	Decimals uint8  `json:"decimals" db:"decimals"`

	Description string `json:"description,omitempty" db:"description"`
	ImageURL    string `json:"imageUrl,omitempty" db:"image_url"`
	Owner       string `json:"owner,omitempty" db:"owner"`
	// Launch is nil for seed tokens and when the factory record could not be read
	Launch *LaunchParams `json:"launch,omitempty"`

	TotalSupply *big.Int `json:"totalSupply" db:"total_supply"`
	TotalMinted *big.Int `json:"totalMinted" db:"total_minted"`
	TotalBurned *big.Int `json:"totalBurned" db:"total_burned"`

	MintCount     int64 `json:"mintCount" db:"mint_count"`
	BurnCount     int64 `json:"burnCount" db:"burn_count"`
	TransferCount int64 `json:"transferCount" db:"transfer_count"`

	CurrentHolderCount    int64 `json:"currentHolderCount" db:"current_holder_count"`
	CumulativeHolderCount int64 `json:"cumulativeHolderCount" db:"cumulative_holder_count"`

	// MetadataResolved is set once name/symbol/decimals have been read (or supplied at creation)
	MetadataResolved bool      `json:"-" db:"metadata_resolved"`
	CreatedBlock     uint64    `json:"createdBlock" db:"created_block"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`

	// LastApplied is the position of the last transfer log that changed this
	// token. Logs at or before it are replays and must not be applied again.
	LastApplied *Cursor `json:"lastApplied,omitempty"`
}

// LaunchParams are the bonding-curve settings the factory stored for a token
type LaunchParams struct {
	K                  *big.Int `json:"k"`
	InitialPrice       *big.Int `json:"initialPrice"`
	MaxSupply          *big.Int `json:"maxSupply"`
	SalesRatio         *big.Int `json:"salesRatio"`
	ReservedRatio      *big.Int `json:"reservedRatio"`
	LiquidityPoolRatio *big.Int `json:"liquidityPoolRatio"`
	LaunchDate         *big.Int `json:"launchDate"`
	MaximumPerUser     *big.Int `json:"maximumPerUser"`
}

// MemeTokenInfo is the record the factory keeps for a token it created
type MemeTokenInfo struct {
	Description string
	ImageURL    string
	Creator     string
	Launch      LaunchParams
}

// Cursor is a log position in chain order. Log indexes are unique within a block.
type Cursor struct {
	BlockNumber uint64 `json:"blockNumber"`
	LogIndex    uint   `json:"logIndex"`
}

// After reports whether c comes strictly later in chain order than other
func (c Cursor) After(other Cursor) bool {
	if c.BlockNumber != other.BlockNumber {
		return c.BlockNumber > other.BlockNumber
	}
	return c.LogIndex > other.LogIndex
}

// NewToken returns a token with every counter at zero
func NewToken(address string) *Token {
	return &Token{
		Address:     address,
		TotalSupply: new(big.Int),
		TotalMinted: new(big.Int),
		TotalBurned: new(big.Int),
	}
}

// Clone returns a deep copy so callers can mutate without aliasing stored state
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	c.TotalSupply = cloneInt(t.TotalSupply)
	c.TotalMinted = cloneInt(t.TotalMinted)
	c.TotalBurned = cloneInt(t.TotalBurned)
	if t.Launch != nil {
		c.Launch = t.Launch.Clone()
	}
	if t.LastApplied != nil {
		cur := *t.LastApplied
		c.LastApplied = &cur
	}
	return &c
}

// Fields lists pointers to the parameters in the factory's declaration order
func (p *LaunchParams) Fields() []**big.Int {
	return []**big.Int{
		&p.K, &p.InitialPrice, &p.MaxSupply, &p.SalesRatio,
		&p.ReservedRatio, &p.LiquidityPoolRatio, &p.LaunchDate, &p.MaximumPerUser,
	}
}

// Clone returns a deep copy
func (p *LaunchParams) Clone() *LaunchParams {
	c := &LaunchParams{}
	src := p.Fields()
	for i, f := range c.Fields() {
		*f = cloneInt(*src[i])
	}
	return c
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
