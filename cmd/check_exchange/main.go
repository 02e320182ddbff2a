package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_trend_breakout/internal/config"
	"github.com/vitos/crypto_trend_breakout/internal/infrastructure/exchange"
)

const pingAttempts = 3

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()
	_ = godotenv.Load()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	symbol := cfg.Strategy.Symbol
	fmt.Printf("Testing Kraken Interaction...\n")
	fmt.Printf("Endpoint: %s\n", cfg.Exchange.RESTEndpoint)
	if len(cfg.Exchange.APIKey) >= 4 {
		fmt.Printf("API Key: %s...\n", cfg.Exchange.APIKey[:4])
	}

	adapter := exchange.NewKrakenAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.RESTEndpoint)
	adapter.EnableSpotPositions(math.Pow10(-int(cfg.Trade.QtyDecimals)))
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// 2. Reachability
	var pingErr error
	for i := 1; i <= pingAttempts; i++ {
		if pingErr = adapter.Ping(ctx); pingErr == nil {
			break
		}
		fmt.Printf("Ping attempt %d/%d failed: %v\n", i, pingAttempts, pingErr)
		time.Sleep(2 * time.Second)
	}
	if pingErr != nil {
		fmt.Printf("❌ Exchange unreachable\n")
		os.Exit(1)
	}
	fmt.Printf("✅ Exchange reachable\n")

	// 3. Public Endpoint (Ticker)
	ticker, err := adapter.GetTicker(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get ticker: %v\n", err)
	} else {
		fmt.Printf("✅ Ticker (%s): Last=%f Bid=%f Ask=%f\n", symbol, ticker.Last, ticker.Bid, ticker.Ask)
	}

	candles, err := adapter.GetCandles(ctx, symbol, cfg.Strategy.Timeframe, cfg.Strategy.CandleLimit)
	if err != nil {
		fmt.Printf("❌ Failed to get candles: %v\n", err)
	} else {
		fmt.Printf("✅ Candles (%s, %s): %d rows\n", symbol, cfg.Strategy.Timeframe, len(candles))
	}

	if cfg.Exchange.APIKey == "" {
		fmt.Printf("Skipping private endpoints: no API key configured\n")
		return
	}

	// 4. Private Endpoints (Balance, Positions)
	balances, err := adapter.GetBalance(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get balance: %v\n", err)
	} else {
		for asset, free := range balances {
			if free != 0 {
				fmt.Printf("✅ Free %s: %f\n", asset, free)
			}
		}
	}

	positions, err := adapter.GetOpenPositions(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get positions: %v\n", err)
	} else if len(positions) == 0 {
		fmt.Printf("✅ No open positions on %s\n", symbol)
	} else {
		for _, pos := range positions {
			fmt.Printf("✅ Position (%s): Size=%f, Side=%s, Entry=%f\n", pos.Symbol, pos.Size, pos.Side, pos.EntryPrice)
		}
	}
}
