package mocks

import (
	"errors"

	"bingot/blockchain"
	"bingot/wallet"

	"lukechampine.com/frand"
)

// GenerateWallet generates a new wallet and panics if the system CSPRNG fails
func GenerateWallet() *wallet.Wallet {
	w, err := wallet.Generate()
	if err != nil {
		panic("Failed to generate wallet: " + err.Error())
	}
	return w
}

// GenerateWallets creates N test wallets
func GenerateWallets(count int) []*wallet.Wallet {
	wallets := make([]*wallet.Wallet, count)
	for i := range wallets {
		wallets[i] = GenerateWallet()
	}
	return wallets
}

// GenerateValidTransaction creates a signed transaction from sender to receiver
// If amount is -1, generates a random amount between 1 and 100
func GenerateValidTransaction(sender *wallet.Wallet, to wallet.Address, amount int64) (*blockchain.Transaction, error) {
	var finalAmount uint64
	switch {
	case amount == -1:
		finalAmount = uint64(frand.Intn(100) + 1)
	case amount < 0:
		return nil, errors.New("invalid amount: must be positive or -1 for random")
	default:
		finalAmount = uint64(amount)
	}

	tx := blockchain.NewTransaction(sender.Address(), to, finalAmount)
	if err := tx.Sign(sender); err != nil {
		return nil, err
	}
	return tx, nil
}

// GenerateRandomTransactions creates signed transfers between random pairs of wallets
func GenerateRandomTransactions(wallets []*wallet.Wallet, count int) []blockchain.Transaction {
	if len(wallets) < 2 {
		panic("Need at least 2 wallets to generate transactions")
	}

	transactions := make([]blockchain.Transaction, 0, count)
	for i := 0; i < count; i++ {
		fromIdx := frand.Intn(len(wallets))
		toIdx := frand.Intn(len(wallets))

		// Make sure from != to
		for toIdx == fromIdx {
			toIdx = frand.Intn(len(wallets))
		}

		tx, err := GenerateValidTransaction(wallets[fromIdx], wallets[toIdx].Address(), -1)
		if err != nil {
			panic("Failed to sign transaction: " + err.Error())
		}
		transactions = append(transactions, *tx)
	}
	return transactions
}

// GenerateValidMinedBlock creates a mined child of parent paying a coinbase to miner
func GenerateValidMinedBlock(parent *blockchain.Block, miner wallet.Address, transactions []blockchain.Transaction, difficulty uint8) (*blockchain.Block, error) {
	coinbase := blockchain.NewCoinbase(miner, 50)
	return blockchain.NewBlock(blockchain.BlockCreationParams{
		Index:        parent.Header.Index + 1,
		PreviousHash: parent.Hash,
		Coinbase:     &coinbase,
		Transactions: transactions,
		Difficulty:   difficulty,
	})
}

// GenerateMinedChain extends parent by count mined blocks, each carrying txsPerBlock random transfers
func GenerateMinedChain(parent *blockchain.Block, count, txsPerBlock int, difficulty uint8) []*blockchain.Block {
	wallets := GenerateWallets(3)
	blocks := make([]*blockchain.Block, 0, count)

	for i := 0; i < count; i++ {
		var txs []blockchain.Transaction
		if txsPerBlock > 0 {
			txs = GenerateRandomTransactions(wallets, txsPerBlock)
		}
		block, err := GenerateValidMinedBlock(parent, wallets[i%len(wallets)].Address(), txs, difficulty)
		if err != nil {
			panic("Failed to mine test block: " + err.Error())
		}
		blocks = append(blocks, block)
		parent = block
	}
	return blocks
}

// GenerateInvalidBlock creates a block that links to parent but carries no valid proof of work
func GenerateInvalidBlock(parent *blockchain.Block) *blockchain.Block {
	block := blockchain.BuildBlock(parent.Header.Index+1, nil, parent.Hash, 32)
	block.Seal(0)
	// Invalid - the stored hash no longer matches the header
	block.Hash[0] ^= 0xFF
	return block
}

// GenerateInvalidTransactions creates transactions with common issues
func GenerateInvalidTransactions(wallets []*wallet.Wallet) map[string]blockchain.Transaction {
	invalid := make(map[string]blockchain.Transaction)
	if len(wallets) < 2 {
		return invalid
	}

	// Invalid signature (tampered amount)
	tampered, _ := GenerateValidTransaction(wallets[0], wallets[1].Address(), 100)
	tampered.Amount = 999
	invalid["tampered_amount"] = *tampered

	// Signed by one wallet, public key of another
	swapped, _ := GenerateValidTransaction(wallets[0], wallets[1].Address(), 100)
	swapped.PublicKey = wallets[1].PublicKey().Bytes()
	invalid["wrong_public_key"] = *swapped

	invalid["unsigned"] = *blockchain.NewTransaction(wallets[0].Address(), wallets[1].Address(), 100)

	invalid["coinbase"] = blockchain.NewCoinbase(wallets[0].Address(), 1000)

	return invalid
}
