package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/dedis/raffle/keeper"
	"github.com/dedis/raffle/libraffle"
	"github.com/dedis/raffle/lottery"
	"github.com/dedis/raffle/sys"
	"github.com/dedis/raffle/utils"
	"go.dedis.ch/cothority/v3"
	"go.dedis.ch/kyber/v3/util/encoding"
	"go.dedis.ch/kyber/v3/util/key"
	"golang.org/x/xerrors"
	"gopkg.in/urfave/cli.v1"
)

const defaultPoll = 5 * time.Second

func client(c *cli.Context) (*libraffle.Client, error) {
	roster, err := utils.ReadRoster(c.GlobalString("roster"))
	if err != nil {
		return nil, err
	}
	return libraffle.NewClient(roster), nil
}

func uintArg(c *cli.Context, i int, name string) (uint64, error) {
	if c.NArg() <= i {
		return 0, xerrors.Errorf("missing %s", name)
	}
	v, err := strconv.ParseUint(c.Args().Get(i), 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("invalid %s: %v", name, err)
	}
	return v, nil
}

// parseKey rebuilds a key pair from its hex private key.
func parseKey(s string) (*key.Pair, error) {
	if s == "" {
		return nil, xerrors.New("missing private key")
	}
	priv, err := encoding.StringHexToScalar(cothority.Suite, s)
	if err != nil {
		return nil, xerrors.Errorf("couldn't parse private key: %v", err)
	}
	return &key.Pair{
		Private: priv,
		Public:  cothority.Suite.Point().Mul(priv, nil),
	}, nil
}

func initRequest(cfg *sys.Config) *libraffle.InitUnitRequest {
	return &libraffle.InitUnitRequest{
		EntranceFee:       cfg.EntranceFee,
		Interval:          time.Duration(cfg.Interval),
		NumWords:          cfg.NumWords,
		FulfillDelay:      time.Duration(cfg.FulfillDelay),
		RequestPrice:      cfg.RequestPrice,
		SubscriptionFunds: cfg.SubscriptionFunds,
		KeeperInterval:    time.Duration(cfg.KeeperInterval),
		HTTPAddr:          cfg.HTTPAddr,
	}
}

func keygen(c *cli.Context) error {
	kp := key.NewKeyPair(cothority.Suite)
	priv, err := encoding.ScalarToStringHex(cothority.Suite, kp.Private)
	if err != nil {
		return err
	}
	id, err := utils.AccountID(kp.Public)
	if err != nil {
		return err
	}
	fmt.Println("Private:", priv)
	fmt.Println("Account:", id)
	return nil
}

func initUnit(c *cli.Context) error {
	cfg, err := sys.ReadConfig(c.Args().First())
	if err != nil {
		return err
	}
	cl, err := client(c)
	if err != nil {
		return err
	}
	reply, err := cl.InitUnit(initRequest(cfg))
	if err != nil {
		return err
	}
	pk, err := reply.OraclePublic()
	if err != nil {
		return err
	}
	if reply.Restored {
		fmt.Println("Restored raffle at round", reply.Round)
	} else {
		fmt.Println("Started raffle at round", reply.Round)
	}
	fmt.Println("Oracle:", pk)
	return nil
}

func deposit(c *cli.Context) error {
	amount, err := uintArg(c, 1, "amount")
	if err != nil {
		return err
	}
	cl, err := client(c)
	if err != nil {
		return err
	}
	reply, err := cl.Deposit(c.Args().First(), amount)
	if err != nil {
		return err
	}
	fmt.Println("Balance:", reply.Balance)
	return nil
}

func account(c *cli.Context) error {
	if c.NArg() < 1 {
		return xerrors.New("missing account")
	}
	cl, err := client(c)
	if err != nil {
		return err
	}
	reply, err := cl.GetAccount(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Println("Balance:", reply.Balance)
	fmt.Println("Nonce:", reply.Counter)
	return nil
}

func enter(c *cli.Context) error {
	amount, err := uintArg(c, 0, "amount")
	if err != nil {
		return err
	}
	kp, err := parseKey(c.String("key"))
	if err != nil {
		return err
	}
	cl, err := client(c)
	if err != nil {
		return err
	}
	reply, err := cl.Enter(kp, amount)
	if err != nil {
		return err
	}
	fmt.Printf("Entered round %d, %d players\n", reply.Round, reply.Players)
	return nil
}

func status(c *cli.Context) error {
	cl, err := client(c)
	if err != nil {
		return err
	}
	st, err := cl.GetState()
	if err != nil {
		return err
	}
	fmt.Println("State:", lottery.State(st.State))
	fmt.Printf("Round: %d (%s)\n", st.Round, st.RoundID)
	fmt.Println("Entrance fee:", st.EntranceFee)
	fmt.Println("Interval:", st.Interval)
	fmt.Println("Players:", st.Players)
	fmt.Println("Balance:", st.Balance)
	fmt.Println("Round start:", time.Unix(0, st.LastTimestamp).Format(time.RFC3339))
	fmt.Println("Recent winner:", st.RecentWinner)
	if lottery.State(st.State) == lottery.Calculating {
		fmt.Println("Pending request:", st.PendingID)
	}
	if st.Stuck != nil {
		fmt.Printf("Stuck payout: %d to %s\n", st.Stuck.Amount, st.Stuck.Winner)
	}
	return nil
}

func player(c *cli.Context) error {
	idx, err := uintArg(c, 0, "index")
	if err != nil {
		return err
	}
	cl, err := client(c)
	if err != nil {
		return err
	}
	reply, err := cl.GetPlayer(idx)
	if err != nil {
		return err
	}
	fmt.Println(reply.Player)
	return nil
}

func check(c *cli.Context) error {
	cl, err := client(c)
	if err != nil {
		return err
	}
	reply, err := cl.CheckUpkeep()
	if err != nil {
		return err
	}
	fmt.Println("Upkeep needed:", reply.Needed)
	fmt.Println("Open:", reply.IsOpen)
	fmt.Println("Time passed:", reply.TimePassed)
	fmt.Println("Has players:", reply.HasPlayers)
	fmt.Println("Has balance:", reply.HasBalance)
	return nil
}

func upkeep(c *cli.Context) error {
	cl, err := client(c)
	if err != nil {
		return err
	}
	reply, err := cl.PerformUpkeep()
	if err != nil {
		return err
	}
	fmt.Println("Request:", reply.RequestID)
	return nil
}

func fulfill(c *cli.Context) error {
	id, err := uintArg(c, 0, "request id")
	if err != nil {
		return err
	}
	cl, err := client(c)
	if err != nil {
		return err
	}
	reply, err := cl.Fulfill(id)
	if err != nil {
		return err
	}
	fmt.Printf("Randomness round %d: %x\n", reply.Round, reply.Value)
	return nil
}

func payouts(c *cli.Context) error {
	cl, err := client(c)
	if err != nil {
		return err
	}
	reply, err := cl.GetPayouts()
	if err != nil {
		return err
	}
	for _, p := range reply.Payouts {
		fmt.Printf("round %d: %s won %d among %d players (request %d)\n",
			p.Round, p.Winner, p.Amount, p.Players, p.RequestID)
	}
	return nil
}

func retry(c *cli.Context) error {
	cl, err := client(c)
	if err != nil {
		return err
	}
	reply, err := cl.RetryPayout()
	if err != nil {
		return err
	}
	fmt.Printf("Paid %d to %s\n", reply.Payout.Amount, reply.Payout.Winner)
	return nil
}

func runKeeper(c *cli.Context) error {
	cl, err := client(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		cancel()
	}()
	keeper.New(libraffle.Target{C: cl}, c.Duration("interval")).Run(ctx)
	return nil
}
