package sys

import (
	"time"

	"github.com/dedis/raffle/lottery"
)

// Duration is a time.Duration that decodes from strings such as "30s" in
// both TOML files and environment variables.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the configuration of a raffle node. Every field can be
// overridden by the environment variable in its env tag.
type Config struct {
	// Roster is the path of the group toml file.
	Roster      string   `toml:"roster" env:"RAFFLE_ROSTER"`
	EntranceFee uint64   `toml:"entrance_fee" env:"RAFFLE_ENTRANCE_FEE"`
	Interval    Duration `toml:"interval" env:"RAFFLE_INTERVAL"`
	NumWords    uint32   `toml:"num_words" env:"RAFFLE_NUM_WORDS"`
	// FulfillDelay is how long the oracle waits before answering a request.
	FulfillDelay Duration `toml:"fulfill_delay" env:"RAFFLE_FULFILL_DELAY"`
	RequestPrice uint64   `toml:"request_price" env:"RAFFLE_REQUEST_PRICE"`
	// SubscriptionFunds is credited to the oracle subscription at start.
	SubscriptionFunds uint64 `toml:"subscription_funds" env:"RAFFLE_SUBSCRIPTION_FUNDS"`
	// KeeperInterval enables the in-process keeper when positive.
	KeeperInterval Duration `toml:"keeper_interval" env:"RAFFLE_KEEPER_INTERVAL"`
	HTTPAddr       string   `toml:"http_addr" env:"RAFFLE_HTTP_ADDR"`
}

// DefaultConfig returns the values used for missing keys.
func DefaultConfig() Config {
	return Config{
		NumWords:          1,
		Interval:          Duration(30 * time.Second),
		FulfillDelay:      Duration(time.Second),
		RequestPrice:      1,
		SubscriptionFunds: 1000000,
		HTTPAddr:          "localhost:8080",
	}
}

func (c Config) Lottery() lottery.Config {
	return lottery.Config{
		EntranceFee: c.EntranceFee,
		Interval:    time.Duration(c.Interval),
		NumWords:    c.NumWords,
	}
}
