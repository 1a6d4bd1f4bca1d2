// Command demo is a thin CLI harness over the STM engine: it seeds a
// handful of accounts and fires a small financial workload (trades,
// transfers, a crypto swap) through the engine's public contract. The
// transaction bodies themselves are out of scope for the engine; this
// file exists only to show the engine being driven the way a caller
// would drive it.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Karannshah1/Financial-Systems/pkg/engine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var workers int
	var maxAttempts int
	var strategy string

	root := &cobra.Command{
		Use:   "demo",
		Short: "Run the financial-transaction workload against the STM engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := parseStrategy(strategy)
			if err != nil {
				return err
			}
			return run(workers, maxAttempts, cs)
		},
	}

	root.Flags().IntVar(&workers, "workers", 4, "worker pool size")
	root.Flags().IntVar(&maxAttempts, "max-attempts", 10, "retry budget per submission")
	root.Flags().StringVar(&strategy, "commit-strategy", "mvcc", "mvcc | modcount | htm_fast")

	return root
}

func parseStrategy(s string) (engine.CommitStrategy, error) {
	switch s {
	case "mvcc":
		return engine.MVCC, nil
	case "modcount":
		return engine.ModCount, nil
	case "htm_fast":
		return engine.HTMFast, nil
	default:
		return 0, fmt.Errorf("unknown commit strategy %q", s)
	}
}

const (
	accountA      = 1
	accountB      = 2
	accountC      = 3
	cryptoWallets = 1_000_000
	fiatWallets   = 2_000_000
)

func run(workers, maxAttempts int, strategy engine.CommitStrategy) error {
	eng := engine.New(
		engine.WithWorkers(workers),
		engine.WithMaxAttempts(maxAttempts),
		engine.WithCommitStrategy(strategy),
	)
	defer eng.Shutdown()

	seed := map[uint64]float64{
		accountA:                 10000,
		accountB:                 20000,
		accountC:                 30000,
		accountA + cryptoWallets: 100,
		accountB + fiatWallets:   200,
	}
	for key, balance := range seed {
		if err := eng.Initialize(key, balance); err != nil {
			return fmt.Errorf("initialize %d: %w", key, err)
		}
	}

	tradeHandle := eng.Submit(trade(accountA, accountB, 5000), engine.WithPriority(10), engine.WithLabel("stock trade"))
	transferHandle := eng.Submit(transfer(accountB, accountC, 1000), engine.WithPriority(5), engine.WithLabel("bank transfer"))
	cryptoHandle := eng.Submit(cryptoTrade(accountA, accountB, 50, 5000), engine.WithPriority(10), engine.WithLabel("crypto trade"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if !eng.WaitForQuiescence(ctx) {
		return fmt.Errorf("timed out waiting for quiescence")
	}

	exitCode := 0
	for _, h := range []*engine.Handle{tradeHandle, transferHandle, cryptoHandle} {
		outcome, _ := h.Wait(ctx)
		if outcome.Kind == engine.DomainErr || outcome.Kind == engine.Exhausted {
			fmt.Fprintf(os.Stderr, "submission failed: %v\n", outcome.Err)
			exitCode = 1
		}
	}

	for _, key := range []uint64{accountA, accountB, accountC} {
		balance, err := eng.Snapshot(key)
		if err != nil {
			return err
		}
		fmt.Printf("account %d balance: %.2f\n", key, balance)
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

func trade(buyer, seller uint64, amount float64) engine.TxnFunc {
	return func(tx *engine.Tx) error {
		buyerBalance, err := tx.Read(buyer)
		if err != nil {
			return err
		}
		sellerBalance, err := tx.Read(seller)
		if err != nil {
			return err
		}
		if buyerBalance < amount {
			return fmt.Errorf("insufficient funds for trade")
		}
		tx.Write(buyer, buyerBalance-amount)
		tx.Write(seller, sellerBalance+amount)
		return nil
	}
}

func transfer(from, to uint64, amount float64) engine.TxnFunc {
	return func(tx *engine.Tx) error {
		fromBalance, err := tx.Read(from)
		if err != nil {
			return err
		}
		toBalance, err := tx.Read(to)
		if err != nil {
			return err
		}
		if fromBalance < amount {
			return fmt.Errorf("insufficient funds for transfer")
		}
		tx.Write(from, fromBalance-amount)
		tx.Write(to, toBalance+amount)
		return nil
	}
}

// cryptoTrade settles a crypto-for-fiat swap: the buyer's fiat funds the
// trade, the seller's crypto balance pays out, and each side's
// counterpart wallet (crypto for the buyer, fiat for the seller) is
// credited. Those derived wallets are never implicitly created — the
// caller must Initialize them first.
func cryptoTrade(buyer, seller uint64, cryptoAmount, fiatAmount float64) engine.TxnFunc {
	return func(tx *engine.Tx) error {
		buyerFiat, err := tx.Read(buyer)
		if err != nil {
			return err
		}
		sellerCrypto, err := tx.Read(seller)
		if err != nil {
			return err
		}
		if buyerFiat < fiatAmount || sellerCrypto < cryptoAmount {
			return fmt.Errorf("insufficient funds for crypto trade")
		}

		buyerCryptoWallet := buyer + cryptoWallets
		sellerFiatWallet := seller + fiatWallets

		buyerCryptoBalance, err := tx.Read(buyerCryptoWallet)
		if err != nil {
			return err
		}
		sellerFiatBalance, err := tx.Read(sellerFiatWallet)
		if err != nil {
			return err
		}

		tx.Write(buyer, buyerFiat-fiatAmount)
		tx.Write(seller, sellerCrypto-cryptoAmount)
		tx.Write(buyerCryptoWallet, buyerCryptoBalance+cryptoAmount)
		tx.Write(sellerFiatWallet, sellerFiatBalance+fiatAmount)
		return nil
	}
}
