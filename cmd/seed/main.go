package main

import (
	"context"
	"flag"
	"log"
	"time"

	"tradeinsight/internal/config"
	"tradeinsight/internal/database"
	"tradeinsight/internal/market"
	"tradeinsight/internal/security"
	"tradeinsight/internal/store"
)

// Seeds a development admin, a demo MT5 account with sample trade
// history, and a price alert rule so the dashboard can be exercised
// without a live terminal.
func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		username   = flag.String("username", "demo", "seed username")
		email      = flag.String("email", "demo@example.com", "seed email")
		password   = flag.String("password", "demo-password", "seed password")
		role       = flag.String("role", "admin", "seed role")
		demo       = flag.Bool("demo", true, "seed a demo account with sample trades and an alert rule")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewConnection(&database.Config{
		Path:    cfg.Database.Path,
		MaxOpen: 1,
	})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	exists, err := db.CheckUserExists(ctx, *username, *email)
	if err != nil {
		log.Fatalf("failed to check existing user: %v", err)
	}
	if exists {
		log.Printf("user %q already exists, nothing to do", *username)
		return
	}

	user, err := db.CreateUser(ctx, *username, *email, *password, *role)
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	log.Printf("seeded user %s (%s)", user.Username, user.ID)

	if !*demo {
		return
	}

	encryptor, err := security.NewEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("failed to initialize encryptor: %v", err)
	}
	passwordEnc, err := encryptor.Encrypt("demo-investor-password")
	if err != nil {
		log.Fatalf("failed to encrypt demo password: %v", err)
	}

	accounts := store.NewAccountStore(db)
	account := &store.Account{
		UserID:      user.ID,
		Login:       10000001,
		Server:      "Demo-Server",
		PasswordEnc: passwordEnc,
		Label:       "Demo account",
		Currency:    "USD",
		Balance:     10000,
		Equity:      10250.40,
		Margin:      500,
		FreeMargin:  9750.40,
		MarginLevel: 2050.08,
		Company:     "Demo Broker Ltd",
		Status:      "disconnected",
		ConnectedAt: time.Now().UTC(),
	}
	if err := accounts.Create(ctx, account); err != nil {
		log.Fatalf("failed to seed demo account: %v", err)
	}
	log.Printf("seeded demo account %d on %s (%s)", account.Login, account.Server, account.ID)

	now := time.Now().UTC()
	deals := []market.Deal{
		{Ticket: 90000001, Order: 80000001, Time: now.AddDate(0, 0, -9).Unix(), Type: "BUY", Entry: "OUT", Volume: 0.10, Price: 1.0852, Commission: -0.70, Swap: 0, Profit: 125.40, Symbol: "EURUSD", Comment: "demo"},
		{Ticket: 90000002, Order: 80000002, Time: now.AddDate(0, 0, -7).Unix(), Type: "SELL", Entry: "OUT", Volume: 0.20, Price: 1.2631, Commission: -1.40, Swap: -0.30, Profit: -48.10, Symbol: "GBPUSD", Comment: "demo"},
		{Ticket: 90000003, Order: 80000003, Time: now.AddDate(0, 0, -4).Unix(), Type: "BUY", Entry: "OUT", Volume: 0.10, Price: 147.52, Commission: -0.70, Swap: 0.20, Profit: 86.90, Symbol: "USDJPY", Comment: "demo"},
		{Ticket: 90000004, Order: 80000004, Time: now.AddDate(0, 0, -2).Unix(), Type: "SELL", Entry: "OUT", Volume: 0.05, Price: 2031.50, Commission: -0.35, Swap: 0, Profit: 42.25, Symbol: "XAUUSD", Comment: "demo"},
	}
	trades := store.NewTradeStore(db)
	stored, err := trades.Upsert(ctx, account.ID, deals)
	if err != nil {
		log.Fatalf("failed to seed demo trades: %v", err)
	}
	log.Printf("seeded %d demo trades", stored)

	alerts := store.NewAlertStore(db)
	rule := &store.AlertRule{
		UserID:    user.ID,
		Symbol:    "EURUSD",
		Condition: "above",
		Threshold: 1.1000,
		Enabled:   true,
	}
	if err := alerts.CreateRule(ctx, rule); err != nil {
		log.Fatalf("failed to seed alert rule: %v", err)
	}
	log.Printf("seeded alert rule %s (%s %s %.4f)", rule.ID, rule.Symbol, rule.Condition, rule.Threshold)
}
