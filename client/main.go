// The raffle client talks to the raffle service of a roster.
package main

import (
	"os"

	"go.dedis.ch/onet/v3/log"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	app := cli.NewApp()
	app.Name = "raffle"
	app.Usage = "enter and operate a randomness-driven raffle"
	app.Version = "0.1"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "roster, r",
			Usage: "group toml of the raffle nodes",
			Value: "public.toml",
		},
		cli.IntFlag{
			Name:  "debug, d",
			Usage: "debug level",
			Value: 0,
		},
	}
	app.Before = func(c *cli.Context) error {
		log.SetDebugVisible(c.Int("debug"))
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:   "keygen",
			Usage:  "create a participant key pair",
			Action: keygen,
		},
		{
			Name:      "init",
			Usage:     "start the raffle on the first node",
			ArgsUsage: "[raffle.toml]",
			Action:    initUnit,
		},
		{
			Name:      "deposit",
			Usage:     "credit an account",
			ArgsUsage: "account amount",
			Action:    deposit,
		},
		{
			Name:      "account",
			Usage:     "show the balance and nonce of an account",
			ArgsUsage: "account",
			Action:    account,
		},
		{
			Name:      "enter",
			Usage:     "enter the current round",
			ArgsUsage: "amount",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "key, k",
					Usage: "hex private key of the participant",
				},
			},
			Action: enter,
		},
		{
			Name:   "status",
			Usage:  "show the raffle state",
			Action: status,
		},
		{
			Name:      "player",
			Usage:     "show the participant at an index",
			ArgsUsage: "index",
			Action:    player,
		},
		{
			Name:   "check",
			Usage:  "evaluate the upkeep conditions",
			Action: check,
		},
		{
			Name:   "upkeep",
			Usage:  "close the round and request randomness",
			Action: upkeep,
		},
		{
			Name:      "fulfill",
			Usage:     "make the oracle answer a request",
			ArgsUsage: "request-id",
			Action:    fulfill,
		},
		{
			Name:   "payouts",
			Usage:  "list past payouts",
			Action: payouts,
		},
		{
			Name:   "retry",
			Usage:  "pay the winner of a stuck round again",
			Action: retry,
		},
		{
			Name:  "keeper",
			Usage: "close rounds automatically until interrupted",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "interval, i",
					Usage: "polling interval",
					Value: defaultPoll,
				},
			},
			Action: runKeeper,
		},
	}
	log.ErrFatal(app.Run(os.Args))
}
