package device

// The engine's tick is defined to equal one simulated second (an Open
// Question decision recorded in DESIGN.md), so every seconds-denominated
// timer spec.md §4 names is used directly below as a tick count.
const (
	// ARPCacheTTL is spec.md §4.3's 240s ARP cache entry lifetime.
	ARPCacheTTL int64 = 240

	// ARPRetryInterval is how often an unresolved next hop's ARP request
	// is resent while a packet sits parked for it, spec.md §4.3. A
	// single broadcast can be lost to a port that has not yet reached
	// RSTP Forwarding, so resolution must keep trying rather than rely
	// on one shot; once a tick matches real ARP's usual one-second
	// retransmit cadence and guarantees a retry lands on the very first
	// tick a previously-blocked path opens up.
	ARPRetryInterval int64 = 1

	// ARPPendingTimeout bounds how long a packet may sit in a pending
	// queue waiting for ARP resolution before it is dropped, spec.md
	// §4.3. spec.md leaves the exact value to the implementation; this
	// must comfortably outlast the slowest thing standing between a
	// retry and a reply, which is a switch's own Blocking->Learning->
	// Forwarding dwell (2*ForwardDelay) on a freshly connected port, plus
	// margin for the request/reply round trip once it is finally
	// forwarded.
	ARPPendingTimeout int64 = 2*ForwardDelay + 10

	// MACAgingTicks is spec.md §4.4's 300s MAC address table aging
	// interval.
	MACAgingTicks int64 = 300

	// HelloTime is spec.md §4.4's 2s RSTP hello interval.
	HelloTime int64 = 2

	// MaxAge is spec.md §4.4's 20s bound on how long a stored priority
	// vector is trusted before it is discarded.
	MaxAge int64 = 20

	// ForwardDelay is spec.md §4.4's 15s Blocking->Learning and
	// Learning->Forwarding dwell time.
	ForwardDelay int64 = 15

	// TCWhile is how long the topology-change flag stays set once
	// raised. Classic STP/RSTP practice ties it to twice the hello
	// interval; spec.md §4.4 names the timer but not its length.
	TCWhile int64 = 2 * HelloTime

	// DefaultBridgePriority is spec.md §4.4's default bridge priority.
	DefaultBridgePriority uint16 = 32768

	// RIPUpdateInterval is spec.md §4.5's 30s periodic advertisement
	// interval.
	RIPUpdateInterval int64 = 30

	// RIPTimeout is spec.md §4.5's 180s route staleness timeout.
	RIPTimeout int64 = 180

	// RIPGarbage is spec.md §4.5's 120s post-timeout removal delay.
	RIPGarbage int64 = 120

	// RIPInfinity is the unreachable metric, spec.md §4.5/§8.
	RIPInfinity uint32 = 16

	// RIPHoldDownMin/Max bound the 1-5s triggered-update hold-down
	// spec.md §4.5 requires to avoid update storms; the exact delay
	// within the range is drawn from the router's RNG stream.
	RIPHoldDownMin int64 = 1
	RIPHoldDownMax int64 = 5
)
