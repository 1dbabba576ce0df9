package mocks

import (
	"context"
	"errors"
	"time"

	"bingot/blockchain"
	"bingot/wallet"

	"github.com/rs/zerolog"
	"lukechampine.com/frand"
)

// Submitter accepts signed transactions, as a node does.
type Submitter interface {
	ReceiveTransaction(tx blockchain.Transaction) (bool, error)
}

type BotConfig struct {
	Wallets     int
	MinInterval time.Duration
	MaxInterval time.Duration
	// Burst is the most transactions sent per wake-up.
	Burst int
}

func DefaultBotConfig() BotConfig {
	return BotConfig{
		Wallets:     4,
		MinInterval: 2 * time.Second,
		MaxInterval: 10 * time.Second,
		Burst:       3,
	}
}

// Bot feeds a node with signed transfers between its own wallets at random
// intervals.
type Bot struct {
	config  BotConfig
	wallets []*wallet.Wallet
	target  Submitter
	logger  zerolog.Logger
}

func NewBot(config BotConfig, target Submitter, logger zerolog.Logger) (*Bot, error) {
	if config.Wallets < 2 {
		return nil, errors.New("bot needs at least 2 wallets")
	}
	if config.MinInterval <= 0 || config.MaxInterval < config.MinInterval {
		return nil, errors.New("bot interval must satisfy 0 < min <= max")
	}
	if config.Burst < 1 {
		config.Burst = 1
	}

	return &Bot{
		config:  config,
		wallets: GenerateWallets(config.Wallets),
		target:  target,
		logger:  logger.With().Str("component", "bot").Logger(),
	}, nil
}

// MockBotBehavior sends one burst of random transfers and returns how many
// the target accepted.
func (bot *Bot) MockBotBehavior() int {
	count := frand.Intn(bot.config.Burst) + 1
	accepted := 0

	for _, tx := range GenerateRandomTransactions(bot.wallets, count) {
		ok, err := bot.target.ReceiveTransaction(tx)
		if err != nil {
			bot.logger.Error().Err(err).Msg("Bot transaction rejected")
			continue
		}
		if ok {
			accepted++
		}
	}

	bot.logger.Debug().Int("sent", count).Int("accepted", accepted).Msg("Bot submitted transactions")
	return accepted
}

// StartPeriodicBehavior runs MockBotBehavior at random intervals until ctx
// is done.
func (bot *Bot) StartPeriodicBehavior(ctx context.Context) {
	for {
		delay := bot.nextInterval()
		bot.logger.Debug().Dur("delay", delay).Msg("Bot sleeping")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
			bot.MockBotBehavior()
		}
	}
}

func (bot *Bot) nextInterval() time.Duration {
	spread := bot.config.MaxInterval - bot.config.MinInterval
	if spread <= 0 {
		return bot.config.MinInterval
	}
	return bot.config.MinInterval + time.Duration(frand.Uint64n(uint64(spread)))
}
