package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"magna/config"
	"magna/core/state"
	"magna/crypto"
	"magna/native/pool"
	"magna/native/referral"
	"magna/native/token"
	"magna/native/trading"
	"magna/observability/logging"
	"magna/rpc"
	"magna/storage"
)

// moduleAddress derives a stable pseudo-account for an engine module from a
// label, the way contract addresses stand in for code-owned funds.
func moduleAddress(label string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("magna/module/" + label))
	var out [20]byte
	copy(out[:], digest[12:])
	return out
}

func mustAddr(logger *slog.Logger, name, value string) [20]byte {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		logger.Error("invalid configured address", "name", name, "error", err)
		os.Exit(1)
	}
	return addr.Raw()
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MAGNA_ENV"))
	logger := logging.Setup("magnad", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	restored, err := state.HasSnapshot(db)
	if err != nil {
		logger.Error("failed to probe database", "error", err)
		os.Exit(1)
	}

	var manager *state.Manager
	if restored {
		manager, err = state.OpenManager(db)
		if err != nil {
			logger.Error("failed to restore state", "error", err)
			os.Exit(1)
		}
		logger.Info("state restored from snapshot")
	} else {
		manager, err = bootstrap(logger, cfg, db)
		if err != nil {
			logger.Error("failed to bootstrap state", "error", err)
			os.Exit(1)
		}
		logger.Info("state bootstrapped", "network", cfg.NetworkName)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("starting metrics endpoint", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()

	server := rpc.NewServer(manager)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server failed", "error", err)
		os.Exit(1)
	}
}

// bootstrap builds and wires fresh components from configuration.
func bootstrap(logger *slog.Logger, cfg *config.Config, db storage.Database) (*state.Manager, error) {
	owner := mustAddr(logger, "Owner", cfg.Addresses.Owner)
	bootstrapAddr := mustAddr(logger, "Bootstrap", cfg.Addresses.Bootstrap)
	guarantee := mustAddr(logger, "Guarantee", cfg.Addresses.Guarantee)
	treasury := mustAddr(logger, "Treasury", cfg.Addresses.Treasury)
	feeTo := mustAddr(logger, "FeeTo", cfg.Addresses.FeeTo)

	engineAddr := moduleAddress("trading")
	ledgerAddr := moduleAddress("referral")

	asset := token.NewLedger(owner, guarantee, treasury, cfg.InitialSupplyWei())
	asset.MarkContract(engineAddr)
	asset.MarkContract(ledgerAddr)
	// Module accounts move funds at face value; the transfer fee applies to
	// wallet-to-wallet traffic only.
	if err := asset.AddWhitelist(owner, engineAddr); err != nil {
		return nil, err
	}
	if err := asset.AddWhitelist(owner, ledgerAddr); err != nil {
		return nil, err
	}

	ledger := referral.NewLedger(owner, ledgerAddr, bootstrapAddr, guarantee, treasury)
	ledger.SetBaseAsset(asset)
	if signer := strings.TrimSpace(cfg.Addresses.TrustedSigner); signer != "" {
		if err := ledger.SetTrustedSigner(owner, mustAddr(logger, "TrustedSigner", signer)); err != nil {
			return nil, err
		}
	}
	for i, tier := range cfg.Tiers {
		override := referral.Tier{
			Price:                config.ScaleUnits(tier.Price),
			DurationSeconds:      tier.DurationDays * 24 * 60 * 60,
			MaxCumulativeDeposit: config.ScaleUnits(tier.MaxCumulativeDeposit),
		}
		if err := ledger.ChangeSubscription(owner, uint8(i), override); err != nil {
			return nil, err
		}
	}

	reserves := pool.NewPool(owner)
	if err := reserves.SetTrader(owner, engineAddr); err != nil {
		return nil, err
	}

	engine := trading.NewEngine(owner, engineAddr, feeTo, ledger, reserves, asset)

	return state.NewManager(db, state.Components{
		Token:    asset,
		Referral: ledger,
		Pool:     reserves,
		Trading:  engine,
	})
}
