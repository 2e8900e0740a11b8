package ledger

import (
	"math/big"

	"github.com/token-ledger/internal/models"
)

// TokenAggregate owns the supply and activity counters of a token
type TokenAggregate struct{}

// ApplyMint records newly minted supply
func (TokenAggregate) ApplyMint(token *models.Token, amount *big.Int) {
	token.TotalSupply = new(big.Int).Add(token.TotalSupply, amount)
	token.TotalMinted = new(big.Int).Add(token.TotalMinted, amount)
	token.MintCount++
}

// ApplyBurn records destroyed supply. TotalSupply follows the chain and is not floored.
func (TokenAggregate) ApplyBurn(token *models.Token, amount *big.Int) {
	token.TotalSupply = new(big.Int).Sub(token.TotalSupply, amount)
	token.TotalBurned = new(big.Int).Add(token.TotalBurned, amount)
	token.BurnCount++
}

// ApplyTransfer counts a genuine transfer
func (TokenAggregate) ApplyTransfer(token *models.Token) {
	token.TransferCount++
}
