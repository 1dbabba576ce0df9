package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"bingot/blockchain"
	"bingot/logger"
	"bingot/mocks"
	"bingot/node"

	"github.com/rs/zerolog"
)

func main() {
	out := flag.String("out", "curl", "Directory for generated scripts")
	url := flag.String("url", "http://localhost:8372", "Node base URL")
	count := flag.Int("blocks", 3, "Blocks to generate")
	difficulty := flag.Uint("difficulty", uint(node.DefaultConfig().Difficulty), "Difficulty of generated blocks, at least the node's -min-difficulty")
	flag.Parse()

	log := logger.NewLogger()
	if *difficulty > blockchain.MaxDifficulty {
		log.Fatal().Uint("difficulty", *difficulty).Msg("Difficulty must fit in 8 bits")
	}

	demoSignature(log)

	fmt.Println("Generating curl test scripts with real blockchain data...")

	// Generate a small test chain on top of genesis (2 transactions per block)
	blocks := mocks.GenerateMinedChain(blockchain.GenesisBlock, *count, 2, uint8(*difficulty))

	for i, block := range blocks {
		blockNum := i + 1

		// Convert block to pretty JSON
		jsonData, err := json.MarshalIndent(block, "", "  ")
		if err != nil {
			log.Error().Err(err).Int("block", blockNum).Msg("Failed to marshal block")
			continue
		}

		scriptContent := fmt.Sprintf(`#!/bin/bash
echo "=== Testing POST /api/blocks - Block %d ==="
echo "Block hash: %s"
echo ""

curl -X POST %s/api/blocks \
  -H "Content-Type: application/json" \
  -d '%s' \
  --max-time 2 \
  --connect-timeout 2 \
  --fail-with-body \
  | jq '.' 2>/dev/null || cat
echo -e "\n"
`, blockNum, block.Hash, *url, jsonData)

		filename := filepath.Join(*out, fmt.Sprintf("post_block_%d.sh", blockNum))
		if err := writeScript(filename, scriptContent); err != nil {
			log.Error().Err(err).Str("file", filename).Msg("Failed to write script")
			continue
		}
		fmt.Printf("Generated: %s\n", filename)
	}

	// A standalone signed transaction
	wallets := mocks.GenerateWallets(2)
	tx, err := mocks.GenerateValidTransaction(wallets[0], wallets[1].Address(), 53)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign transaction")
	}
	txJSON, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to marshal transaction")
	}
	txScript := fmt.Sprintf(`#!/bin/bash
echo "=== Testing POST /api/transactions ==="
curl -s -X POST %s/api/transactions \
  -H "Content-Type: application/json" \
  -d '%s' | jq '.' 2>/dev/null || cat
echo ""
echo "=== Pending transactions ==="
curl -s %s/api/mempool | jq '.' 2>/dev/null || cat
`, *url, txJSON, *url)
	if err := writeScript(filepath.Join(*out, "post_transaction.sh"), txScript); err != nil {
		log.Fatal().Err(err).Msg("Failed to write transaction script")
	}
	fmt.Printf("Generated: %s\n", filepath.Join(*out, "post_transaction.sh"))

	// Generate a script that posts all blocks in sequence
	sequentialScript := fmt.Sprintf(`#!/bin/bash
echo "=== Testing Sequential Block Submission ==="
echo "Make sure your node is running first!"
echo ""

# Check if server is running
if ! curl -s --connect-timeout 2 --max-time 2 %[1]s/api/chain/height > /dev/null; then
    echo "Server not responding at %[1]s"
    echo "Start your node with: go run ./cmd/node -min-difficulty %[2]d"
    exit 1
fi

echo "Server is running. Submitting blocks sequentially..."
echo ""

`, *url, *difficulty)
	for i := 1; i <= len(blocks); i++ {
		sequentialScript += fmt.Sprintf("echo \"Submitting block %d...\"\n%s || echo \"Block %d failed, continuing...\"\nsleep 1\necho \"\"\n\n",
			i, filepath.Join(*out, fmt.Sprintf("post_block_%d.sh", i)), i)
	}
	sequentialScript += fmt.Sprintf(`echo "Sequential block submission completed!"
echo "Check chain height:"
curl -s --connect-timeout 2 --max-time 2 %s/api/chain/height | jq '.' 2>/dev/null || cat
echo ""
`, *url)

	if err := writeScript(filepath.Join(*out, "post_all_blocks.sh"), sequentialScript); err != nil {
		log.Fatal().Err(err).Msg("Failed to write sequential script")
	}
	fmt.Printf("Generated: %s\n", filepath.Join(*out, "post_all_blocks.sh"))

	fmt.Printf("\nGenerated %d test scripts successfully!\n", len(blocks)+2)
	fmt.Println("Usage:")
	fmt.Println("  1. Start your node: go run ./cmd/node")
	fmt.Println("  2. Run individual tests: ./" + filepath.Join(*out, "post_block_1.sh"))
	fmt.Println("  3. Run all sequentially: ./" + filepath.Join(*out, "post_all_blocks.sh"))
}

// demoSignature prints a wallet address and shows that a signed transfer
// verifies until its amount is changed.
func demoSignature(log zerolog.Logger) {
	w := mocks.GenerateWallet()
	fmt.Printf("Address: %s\n", w.Address())

	tx := blockchain.NewTransaction(w.Address(), "random_address", 53)
	if err := tx.Sign(w); err != nil {
		log.Fatal().Err(err).Msg("Failed to sign transaction")
	}
	fmt.Printf("Signed message: %s\n", tx.CanonicalMessage())

	ok, _ := tx.Verify(w.PublicKey())
	fmt.Printf("Verify amount=53: %v\n", ok)

	tx.Amount = 54
	ok, _ = tx.Verify(w.PublicKey())
	fmt.Printf("Verify amount=54: %v\n\n", ok)
}

func writeScript(filename, content string) error {
	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return os.WriteFile(filename, []byte(content), 0755)
}
