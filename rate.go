package qnp

import "time"

// MaxFixedBandwidth and MaxFixedSendPeriod bound the ranged integers used
// to encode a NetRate on the wire.
const (
	MaxFixedBandwidth  = 65535
	MaxFixedSendPeriod = 2047
)

// defaultMinPacketSendPeriod and defaultMaxSendBandwidth match the
// connection's built-in tuning before any SetFixedRateParameters call.
const (
	defaultMinPacketSendPeriod = 96 * time.Millisecond
	defaultMaxSendBandwidth    = 2500
)

// NetRate is one side's advertised pacing limits. Min*Period is the
// fastest rate that side is willing to send or receive at; Max*Bandwidth
// bounds bytes per second.
type NetRate struct {
	MinPacketSendPeriod time.Duration
	MinPacketRecvPeriod time.Duration
	MaxSendBandwidth    uint32
	MaxRecvBandwidth    uint32
}

func defaultNetRate() NetRate {
	return NetRate{
		MinPacketSendPeriod: defaultMinPacketSendPeriod,
		MinPacketRecvPeriod: defaultMinPacketSendPeriod,
		MaxSendBandwidth:    defaultMaxSendBandwidth,
		MaxRecvBandwidth:    defaultMaxSendBandwidth,
	}
}

// rateController owns the negotiated send period/size and the credit
// accumulator that smooths fixed-rate pacing against imprecise tick
// intervals.
type rateController struct {
	local, remote NetRate

	currentSendPeriod time.Duration
	currentSendSize   int

	sendDelayCredit time.Duration
	lastUpdateTime  time.Time

	localChanged bool
}

func newRateController(mtu int) *rateController {
	r := &rateController{local: defaultNetRate(), remote: defaultNetRate()}
	r.negotiate(mtu)
	return r
}

// negotiate recomputes the current send period and size from the local
// and remote rate, clamped to mtu.
func (r *rateController) negotiate(mtu int) {
	period := r.local.MinPacketSendPeriod
	if r.remote.MinPacketRecvPeriod > period {
		period = r.remote.MinPacketRecvPeriod
	}
	r.currentSendPeriod = period

	bw := r.local.MaxSendBandwidth
	if r.remote.MaxRecvBandwidth < bw {
		bw = r.remote.MaxRecvBandwidth
	}
	size := int(float64(bw) * period.Seconds())
	if size > mtu {
		size = mtu
	}
	r.currentSendSize = size
}

// readyToSend implements the tick-time pacing check: it returns true at
// most once per currentSendPeriod, folding any early or late tick timing
// into sendDelayCredit rather than losing or duplicating a send slot.
func (r *rateController) readyToSend(now time.Time) bool {
	if r.lastUpdateTime.IsZero() {
		// Nothing sent yet: count the last update as a full period ago so
		// the first tick is ready.
		r.lastUpdateTime = now.Add(-r.currentSendPeriod)
	}
	elapsed := now.Sub(r.lastUpdateTime)
	if elapsed+r.sendDelayCredit < r.currentSendPeriod {
		return false
	}

	r.sendDelayCredit = now.Sub(r.lastUpdateTime.Add(r.currentSendPeriod).Add(-r.sendDelayCredit))
	if r.sendDelayCredit > time.Second {
		r.sendDelayCredit = time.Second
	}
	if r.sendDelayCredit < 0 {
		r.sendDelayCredit = 0
	}
	r.lastUpdateTime = now
	return true
}

// setLocal installs a new local rate and re-negotiates, arming the
// rateChanged bit so the next outgoing data packet announces it.
func (r *rateController) setLocal(rate NetRate, mtu int) {
	r.local = rate
	r.negotiate(mtu)
	r.localChanged = true
}

// setRemote installs the peer's advertised rate, read from the rate fields
// of an inbound packet whose rateChanged bit is set, and re-negotiates.
func (r *rateController) setRemote(rate NetRate, mtu int) {
	r.remote = rate
	r.negotiate(mtu)
}
