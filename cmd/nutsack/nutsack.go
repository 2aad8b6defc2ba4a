package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/nutsack/nutsack/config"
	"github.com/nutsack/nutsack/keys"
	"github.com/nutsack/nutsack/logger"
	"github.com/nutsack/nutsack/nip60"
	"github.com/nutsack/nutsack/wallet"
	"github.com/nutsack/nutsack/wallet/client"
	"github.com/nutsack/nutsack/wallet/relay"
	"github.com/nutsack/nutsack/wallet/storage"
	"github.com/urfave/cli/v2"
)

var (
	nutsack *wallet.Wallet
	cfg     *config.Config
	pool    *relay.Pool
	cache   *storage.BoltDB
)

const (
	configFlag = "config"
	mintFlag   = "mint"
	memoFlag   = "memo"
	quoteFlag  = "quote"
	toFlag     = "to"
	splitFlag  = "split"
)

func configPath(ctx *cli.Context) string {
	if ctx.IsSet(configFlag) {
		return ctx.String(configFlag)
	}
	return filepath.Join(config.DefaultDataDir(), "config.yaml")
}

// loadEnv loads a .env file from the data directory, or else
// from the working directory.
func loadEnv() {
	envPath := filepath.Join(config.DefaultDataDir(), ".env")
	if _, err := os.Stat(envPath); err != nil {
		wd, err := os.Getwd()
		if err != nil {
			return
		}
		envPath = filepath.Join(wd, ".env")
	}
	godotenv.Load(envPath)
}

func loadConfig(ctx *cli.Context) error {
	loadEnv()

	var err error
	cfg, err = config.Load(configPath(ctx))
	if err != nil {
		printErr(err)
	}
	return nil
}

func setupWallet(ctx *cli.Context) error {
	loadConfig(ctx)
	if err := cfg.Validate(); err != nil {
		printErr(fmt.Errorf("%v. Set it in %v or the environment", err, configPath(ctx)))
	}

	identity, err := cfg.Identity()
	if err != nil {
		printErr(err)
	}
	signer, err := nip60.NewKeySigner(identity.PrivateKey)
	if err != nil {
		printErr(err)
	}

	walletLogger := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	pool = relay.NewPool(cfg.Relays, walletLogger)
	connected, err := pool.Connect(ctx.Context)
	if err != nil {
		printErr(err)
	}
	if connected == 0 {
		printErr(errors.New("could not connect to any relay"))
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		printErr(err)
	}
	cache, err = storage.InitBolt(cfg.DataDir)
	if err != nil {
		printErr(err)
	}

	nutsack, err = wallet.LoadWallet(ctx.Context, wallet.Config{
		Signer:       signer,
		Transport:    pool,
		MintClient:   client.New(cfg.MintTimeout),
		KeysetStore:  cache,
		Mints:        cfg.Mints,
		Unit:         cfg.Unit,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       &walletLogger,
	})
	if err != nil {
		printErr(err)
	}
	return nil
}

func cleanup(ctx *cli.Context) error {
	if pool != nil {
		pool.Close()
	}
	if cache != nil {
		cache.Close()
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "nutsack",
		Usage: "cashu wallet stored in nostr events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  configFlag,
				Usage: "Path to the config file",
			},
		},
		After: cleanup,
		Commands: []*cli.Command{
			initCmd,
			balanceCmd,
			sendCmd,
			redeemCmd,
			inboxCmd,
			historyCmd,
			mintsCmd,
			mintCmd,
			payCmd,
			checkCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var initCmd = &cli.Command{
	Name:   "init",
	Usage:  "Create a config file with a new mnemonic",
	Before: loadConfig,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "relay", Usage: "Relay url, can be repeated"},
		&cli.StringSliceFlag{Name: mintFlag, Usage: "Mint url, can be repeated"},
	},
	Action: initConfig,
}

func initConfig(ctx *cli.Context) error {
	path := configPath(ctx)
	if cfg.PrivateKey != "" || cfg.Mnemonic != "" {
		printErr(fmt.Errorf("a key is already configured in %v", path))
	}

	mnemonic, err := keys.NewMnemonic()
	if err != nil {
		printErr(err)
	}
	identity, err := keys.FromMnemonic(mnemonic)
	if err != nil {
		printErr(err)
	}

	cfg.Mnemonic = mnemonic
	cfg.Relays = append(cfg.Relays, ctx.StringSlice("relay")...)
	cfg.Mints = append(cfg.Mints, ctx.StringSlice(mintFlag)...)
	if err := cfg.Save(path); err != nil {
		printErr(err)
	}

	npub, _ := identity.Npub()
	fmt.Printf("wallet created for %v\n\n", npub)
	fmt.Printf("mnemonic: %v\n", mnemonic)
	fmt.Println("write it down, it is the only way to recover the wallet")
	return nil
}

var balanceCmd = &cli.Command{
	Name:   "balance",
	Before: setupWallet,
	Action: getBalance,
}

func getBalance(ctx *cli.Context) error {
	balances, err := nutsack.Balances(ctx.Context)
	if err != nil {
		printErr(err)
	}

	for _, breakdown := range balances.PerMint {
		line := fmt.Sprintf("%v: %v in %d proofs",
			breakdown.MintURL, wallet.FormatAmount(breakdown.TotalBalance, breakdown.Unit), breakdown.ProofCount)
		if !breakdown.Convertible {
			line += " (not counted)"
		}
		fmt.Println(line)
	}
	fmt.Printf("\ntotal: %v\n", wallet.FormatAmount(balances.Total, balances.Unit))
	return nil
}

// mintArg returns the mint from the flag, defaulting to the
// first trusted mint.
func mintArg(ctx *cli.Context) string {
	if ctx.IsSet(mintFlag) {
		return ctx.String(mintFlag)
	}
	return nutsack.Mints()[0]
}

func amountArg(ctx *cli.Context, usage string) uint64 {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New(usage))
	}
	amount, err := strconv.ParseUint(args.First(), 10, 64)
	if err != nil {
		printErr(errors.New("invalid amount"))
	}
	return amount
}

var sendCmd = &cli.Command{
	Name:      "send",
	ArgsUsage: "[AMOUNT]",
	Before:    setupWallet,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: mintFlag, Usage: "Mint to send from"},
		&cli.StringFlag{Name: memoFlag, Usage: "Memo to include in the token"},
		&cli.StringFlag{Name: toFlag, Usage: "Send the token in a direct message to this npub or hex public key"},
		&cli.BoolFlag{Name: splitFlag, Usage: "Split the amount across mints, largest balance first"},
	},
	Action: send,
}

func send(ctx *cli.Context) error {
	amount := amountArg(ctx, "specify an amount to send")
	if ctx.Bool(splitFlag) {
		tokens, err := nutsack.SendSplit(ctx.Context, amount, ctx.String(memoFlag))
		for _, token := range tokens {
			fmt.Printf("%v\n\n", token)
		}
		if err != nil {
			printErr(err)
		}
		return nil
	}

	var token string
	var err error
	if ctx.IsSet(toFlag) {
		recipient := ctx.String(toFlag)
		if pubkey, err := keys.DecodeNpub(recipient); err == nil {
			recipient = pubkey
		}
		token, err = nutsack.SendToPubkey(ctx.Context, recipient, amount, mintArg(ctx), ctx.String(memoFlag))
	} else {
		token, err = nutsack.Send(ctx.Context, amount, mintArg(ctx), ctx.String(memoFlag))
	}
	if err != nil {
		if token != "" {
			// the proofs already left the wallet
			fmt.Printf("%v\n\n", token)
		}
		printErr(err)
	}

	fmt.Printf("%v\n", token)
	return nil
}

var redeemCmd = &cli.Command{
	Name:      "redeem",
	Aliases:   []string{"receive"},
	ArgsUsage: "[TOKEN]",
	Before:    setupWallet,
	Action:    redeem,
}

func redeem(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("cashu token not provided"))
	}

	amount, err := nutsack.Redeem(ctx.Context, args.First())
	if err != nil {
		printErr(err)
	}
	fmt.Printf("%v received\n", amount)
	return nil
}

var inboxCmd = &cli.Command{
	Name:   "inbox",
	Usage:  "List tokens received in direct messages",
	Before: setupWallet,
	Action: inbox,
}

func inbox(ctx *cli.Context) error {
	tokens, err := nutsack.IncomingTokens(ctx.Context)
	if err != nil {
		printErr(err)
	}
	if len(tokens) == 0 {
		fmt.Println("no tokens received")
		return nil
	}
	for _, token := range tokens {
		fmt.Printf("%v from %v at %v\n%v\n\n",
			wallet.FormatAmount(token.Amount, token.Unit), token.Sender, token.Mint, token.Token)
	}
	return nil
}

var historyCmd = &cli.Command{
	Name:   "history",
	Before: setupWallet,
	Action: history,
}

func history(ctx *cli.Context) error {
	entries, err := nutsack.History(ctx.Context)
	if err != nil {
		printErr(err)
	}

	for _, entry := range entries {
		createdAt := entry.CreatedAt.Time().Format(time.DateTime)
		fmt.Printf("%v  %-3v  %v\n", createdAt, entry.Direction, wallet.FormatAmount(entry.Amount, entry.Unit))
	}

	summary := wallet.SummarizeHistory(entries)
	fmt.Println()
	for unit, net := range summary.Net {
		fmt.Printf("%v: in %v, out %v, net %d\n", unit, summary.TotalIn[unit], summary.TotalOut[unit], net)
	}
	return nil
}

var mintsCmd = &cli.Command{
	Name:   "mints",
	Usage:  "List, add or remove trusted mints",
	Before: setupWallet,
	Subcommands: []*cli.Command{
		{
			Name:      "add",
			ArgsUsage: "[URL]",
			Action: func(ctx *cli.Context) error {
				if err := nutsack.AddMint(ctx.Context, ctx.Args().First()); err != nil {
					printErr(err)
				}
				return nil
			},
		},
		{
			Name:      "remove",
			ArgsUsage: "[URL]",
			Action: func(ctx *cli.Context) error {
				if err := nutsack.RemoveMint(ctx.Context, ctx.Args().First()); err != nil {
					printErr(err)
				}
				return nil
			},
		},
	},
	Action: listMints,
}

func listMints(ctx *cli.Context) error {
	stats, err := nutsack.Stats(ctx.Context)
	if err != nil {
		printErr(err)
	}
	for _, mint := range stats.Mints {
		info, err := nutsack.MintInfo(ctx.Context, mint)
		if err != nil {
			fmt.Printf("%v (unreachable)\n", mint)
			continue
		}
		fmt.Printf("%v %v\n", mint, info.Name)
	}
	fmt.Printf("\n%d token events, %d proofs\n", stats.TokenEvents, stats.Proofs)
	return nil
}

var mintCmd = &cli.Command{
	Name:      "mint",
	ArgsUsage: "[AMOUNT]",
	Before:    setupWallet,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: mintFlag, Usage: "Mint to mint at"},
		&cli.StringFlag{Name: quoteFlag, Usage: "Mint the tokens of a paid quote"},
	},
	Action: mint,
}

func mint(ctx *cli.Context) error {
	// if a paid quote was passed, request the tokens from the mint
	if ctx.IsSet(quoteFlag) {
		mintTokens(ctx, ctx.String(quoteFlag))
		return nil
	}

	amount := amountArg(ctx, "specify an amount to mint")
	quote, err := nutsack.RequestMint(ctx.Context, amount, mintArg(ctx))
	if err != nil {
		printErr(err)
	}

	fmt.Printf("invoice: %v\n\n", quote.Request)
	fmt.Printf("after paying the invoice you can redeem the ecash using --%v %v\n", quoteFlag, quote.Quote)
	return nil
}

func mintTokens(ctx *cli.Context, quoteId string) {
	amount := amountArg(ctx, "specify the amount of the quote")
	proofs, err := nutsack.MintTokens(ctx.Context, quoteId, mintArg(ctx), amount)
	if err != nil {
		printErr(err)
	}
	fmt.Printf("%v minted\n", wallet.FormatAmount(proofs.Amount(), nutsack.Unit().String()))
}

var payCmd = &cli.Command{
	Name:      "pay",
	ArgsUsage: "[INVOICE]",
	Before:    setupWallet,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: mintFlag, Usage: "Mint to pay from"},
	},
	Action: pay,
}

func pay(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("specify a lightning invoice to pay"))
	}

	meltResponse, err := nutsack.Melt(ctx.Context, args.First(), mintArg(ctx))
	if err != nil {
		printErr(err)
	}
	fmt.Printf("invoice paid. preimage: %v\n", meltResponse.Preimage)
	return nil
}

var checkCmd = &cli.Command{
	Name:   "check",
	Usage:  "Remove proofs the mint reports as spent",
	Before: setupWallet,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: mintFlag, Usage: "Mint to check"},
	},
	Action: check,
}

func check(ctx *cli.Context) error {
	mints := nutsack.Mints()
	if ctx.IsSet(mintFlag) {
		mints = []string{ctx.String(mintFlag)}
	}

	for _, mint := range mints {
		removed, err := nutsack.RemoveSpentProofs(ctx.Context, mint)
		if err != nil {
			fmt.Printf("%v: %v\n", mint, err)
			continue
		}
		fmt.Printf("%v: removed %v\n", mint, wallet.FormatAmount(removed, nutsack.Unit().String()))
	}
	return nil
}

func printErr(msg error) {
	fmt.Println(msg.Error())
	cleanup(nil)
	os.Exit(0)
}
