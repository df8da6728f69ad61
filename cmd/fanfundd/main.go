package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"

	"fanfund/config"
	"fanfund/gateway"
	"fanfund/ledger"
	"fanfund/native/bank"
	"fanfund/native/crowdfund"
	"fanfund/native/token"
	"fanfund/observability"
	"fanfund/observability/logging"
	"fanfund/rpc"
	"fanfund/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FANFUND_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("fanfundd", env, cfg.LogFile)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	store := ledger.NewStore(db)

	vault, err := cfg.Vault()
	if err != nil {
		logger.Error("Invalid vault address", slog.Any("error", err))
		os.Exit(1)
	}
	rewardUnit, err := cfg.RewardUnitAmount()
	if err != nil {
		logger.Error("Invalid reward unit", slog.Any("error", err))
		os.Exit(1)
	}

	escrow := bank.New(store, vault)
	rewardToken, minter := token.New(store)

	engine := crowdfund.NewEngine()
	engine.SetState(store)
	engine.SetSettler(escrow)
	engine.SetRewardMinter(minter)
	engine.SetRewardRate(new(big.Int).SetUint64(cfg.RewardRate))
	engine.SetRewardUnit(rewardUnit)
	engine.SetEmitter(observability.LogEmitter{Logger: logger})

	server := rpc.NewServer(engine, escrow, rewardToken)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("Starting JSON-RPC server", slog.String("address", cfg.RPCAddress))
		errCh <- server.Start(cfg.RPCAddress)
	}()
	go func() {
		logger.Info("Starting query gateway", slog.String("address", cfg.GatewayAddress))
		errCh <- http.ListenAndServe(cfg.GatewayAddress, gateway.New(gateway.Config{
			Engine: engine,
			Token:  rewardToken,
			Bank:   escrow,
		}))
	}()

	logger.Info("fanfundd started",
		slog.String("network", cfg.NetworkName),
		slog.Uint64("rewardRate", cfg.RewardRate),
	)

	if err := <-errCh; err != nil {
		logger.Error("Server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
