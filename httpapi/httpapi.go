// Package httpapi is the HTTP operator surface of a raffle, built on gin.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dedis/raffle/lottery"
	"github.com/gin-gonic/gin"
	"golang.org/x/xerrors"
)

// Raffle is the part of *lottery.Raffle served over HTTP.
type Raffle interface {
	Snapshot() *lottery.Snapshot
	EntranceFee() uint64
	Interval() time.Duration
	ParticipantAt(i int) (string, error)
	UpkeepStatus() lottery.UpkeepStatus
	PerformUpkeep() (uint64, error)
	RetryPayout() (*lottery.Payout, error)
}

// History lists past payouts.
type History interface {
	Payouts() ([]*lottery.Payout, error)
}

// Status is the body of GET /raffle.
type Status struct {
	State         string          `json:"state"`
	Round         uint64          `json:"round"`
	RoundID       string          `json:"round_id"`
	EntranceFee   uint64          `json:"entrance_fee"`
	Interval      string          `json:"interval"`
	Players       int             `json:"players"`
	Balance       uint64          `json:"balance"`
	LastTimestamp int64           `json:"last_timestamp"`
	RecentWinner  string          `json:"recent_winner"`
	PendingID     uint64          `json:"pending_request,omitempty"`
	Stuck         *lottery.Payout `json:"stuck_payout,omitempty"`
}

// Upkeep is the body of GET /raffle/upkeep.
type Upkeep struct {
	Needed     bool   `json:"upkeep_needed"`
	State      string `json:"state"`
	Players    int    `json:"players"`
	Balance    uint64 `json:"balance"`
	TimePassed bool   `json:"time_passed"`
}

type handler struct {
	raffle  Raffle
	history History
}

// New returns the router of raffle. history may be nil.
func New(raffle Raffle, history History) *gin.Engine {
	h := &handler{raffle: raffle, history: history}
	r := gin.New()
	r.Use(gin.Recovery())
	g := r.Group("/raffle")
	g.GET("", h.status)
	g.GET("/players/:index", h.player)
	g.GET("/upkeep", h.checkUpkeep)
	g.POST("/upkeep", h.performUpkeep)
	g.GET("/payouts", h.payouts)
	g.POST("/payout/retry", h.retryPayout)
	return r
}

// statusOf maps raffle errors to HTTP codes.
func statusOf(err error) int {
	switch {
	case xerrors.Is(err, lottery.ErrNotOpen),
		xerrors.Is(err, lottery.ErrUpkeepNotNeeded),
		xerrors.Is(err, lottery.ErrAlreadyPending),
		xerrors.Is(err, lottery.ErrNoPendingPayout):
		return http.StatusConflict
	case xerrors.Is(err, lottery.ErrIndexOutOfRange):
		return http.StatusNotFound
	case xerrors.Is(err, lottery.ErrInsufficientFee):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

func (h *handler) status(c *gin.Context) {
	snap := h.raffle.Snapshot()
	c.JSON(http.StatusOK, Status{
		State:         lottery.State(snap.State).String(),
		Round:         snap.Round,
		RoundID:       snap.RoundID,
		EntranceFee:   h.raffle.EntranceFee(),
		Interval:      h.raffle.Interval().String(),
		Players:       len(snap.Participants),
		Balance:       snap.Balance,
		LastTimestamp: time.Unix(0, snap.LastStart).Unix(),
		RecentWinner:  snap.RecentWinner,
		PendingID:     snap.PendingID,
		Stuck:         snap.Stuck,
	})
}

func (h *handler) player(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad index"})
		return
	}
	p, err := h.raffle.ParticipantAt(idx)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": idx, "player": p})
}

func (h *handler) checkUpkeep(c *gin.Context) {
	st := h.raffle.UpkeepStatus()
	c.JSON(http.StatusOK, Upkeep{
		Needed:     st.Needed(),
		State:      st.State.String(),
		Players:    st.Players,
		Balance:    st.Balance,
		TimePassed: st.TimePassed,
	})
}

func (h *handler) performUpkeep(c *gin.Context) {
	id, err := h.raffle.PerformUpkeep()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"request_id": id})
}

func (h *handler) payouts(c *gin.Context) {
	out := []*lottery.Payout{}
	if h.history != nil {
		payouts, err := h.history.Payouts()
		if err != nil {
			fail(c, err)
			return
		}
		out = append(out, payouts...)
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) retryPayout(c *gin.Context) {
	p, err := h.raffle.RetryPayout()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
