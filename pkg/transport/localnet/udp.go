package localnet

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/alarmweave/alarmweave/pkg/log"
	"github.com/alarmweave/alarmweave/pkg/transport"
)

// nodeHeaderLen is the size of the little-endian node-id prefix localnet
// adds ahead of every wire payload it broadcasts, since a bare UDP
// datagram carries no notion of which mesh node sent it.
const nodeHeaderLen = 8

// Dispatch is called once per received datagram, after the node-id header
// has been stripped, with the sender's declared node id attached.
type Dispatch func(raw []byte, pkt transport.PacketInfo) error

// Dialer broadcasts alarm traffic over one UDP socket and hands out
// Exchange values that share it. It satisfies transport.Dialer.
type Dialer struct {
	conn      *net.UDPConn
	broadcast *net.UDPAddr
	sched     transport.Scheduler
	selfNode  uint64
	iface     string

	mu       sync.Mutex
	dispatch Dispatch
	stopped  bool
}

// NewDialer opens a UDP socket bound to bindAddr (e.g. "0.0.0.0:9191") and
// prepares to broadcast to broadcastAddr (e.g. "255.255.255.255:9191").
// selfNode is stamped into every outgoing packet's node-id header.
func NewDialer(bindAddr, broadcastAddr, iface string, sched transport.Scheduler, selfNode uint64) (*Dialer, error) {
	laddr, err := net.ResolveUDPAddr("udp4", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind addr: %w", err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	baddr, err := net.ResolveUDPAddr("udp4", broadcastAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("resolve broadcast addr: %w", err)
	}

	return &Dialer{conn: conn, broadcast: baddr, sched: sched, selfNode: selfNode, iface: iface}, nil
}

// Listen starts a background goroutine that reads datagrams off the socket
// and forwards them to dispatch until Close is called.
func (d *Dialer) Listen(dispatch Dispatch) {
	d.mu.Lock()
	d.dispatch = dispatch
	d.mu.Unlock()

	go d.readLoop()
}

func (d *Dialer) readLoop() {
	buf := make([]byte, 65535)
	for {
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			d.mu.Lock()
			stopped := d.stopped
			d.mu.Unlock()
			if stopped {
				return
			}
			localnetLogger := log.WithComponent("localnet")
			localnetLogger.Warn().Err(err).Msg("udp read failed")
			continue
		}
		if n < nodeHeaderLen {
			continue
		}

		senderNode := binary.LittleEndian.Uint64(buf[:nodeHeaderLen])
		if senderNode == d.selfNode {
			continue
		}
		payload := make([]byte, n-nodeHeaderLen)
		copy(payload, buf[nodeHeaderLen:n])

		d.mu.Lock()
		dispatch := d.dispatch
		d.mu.Unlock()
		if dispatch == nil {
			continue
		}
		if err := dispatch(payload, transport.PacketInfo{Iface: d.iface, SourceNode: senderNode}); err != nil {
			localnetLogger := log.WithComponent("localnet")
			localnetLogger.Warn().Err(err).Uint64("source_node", senderNode).Msg("dispatch failed")
		}
	}
}

// Open allocates an Exchange bound to this Dialer's shared socket.
// originator and asInitiator are recorded for bookkeeping; localnet
// broadcasts to every neighbor on the link regardless, since it has no
// per-peer unicast addressing of its own. flags.Has(FlagAllowDuplicateMsgs)
// is latched onto the Exchange for the lifetime of the admission — see
// NoteDuplicate.
func (d *Dialer) Open(originator uint64, asInitiator bool, flags transport.SubmitFlags, onRetransmitTimeout transport.RetransmitCallback) (transport.Exchange, error) {
	return &Exchange{
		dialer:          d,
		originator:      originator,
		asInitiator:     asInitiator,
		allowDuplicates: flags.Has(transport.FlagAllowDuplicateMsgs),
		onTimeout:       onRetransmitTimeout,
	}, nil
}

// send writes a framed (node-id header + payload) datagram to the
// broadcast address.
func (d *Dialer) send(payload []byte) error {
	framed := make([]byte, nodeHeaderLen+len(payload))
	binary.LittleEndian.PutUint64(framed[:nodeHeaderLen], d.selfNode)
	copy(framed[nodeHeaderLen:], payload)
	_, err := d.conn.WriteToUDP(framed, d.broadcast)
	return err
}

// Close stops the read loop and releases the socket. Exchanges opened
// against this Dialer become unusable afterward.
func (d *Dialer) Close() error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return d.conn.Close()
}

// Exchange is one session's handle onto the shared broadcast socket,
// satisfying transport.Exchange. Its trickle timer is a real
// time.AfterFunc-backed timer armed through the Dialer's Scheduler.
type Exchange struct {
	dialer          *Dialer
	originator      uint64
	asInitiator     bool
	allowDuplicates bool
	onTimeout       transport.RetransmitCallback

	mu       sync.Mutex
	cfg      transport.TrickleConfig
	timer    transport.TimerHandle
	armed    bool
	dupCount int
	closed   bool
}

// Submit broadcasts payload. If flags requests trickle retransmission and
// no timer is armed yet, one is started now.
func (e *Exchange) Submit(payload []byte, flags transport.SubmitFlags) error {
	if err := e.dialer.send(payload); err != nil {
		return fmt.Errorf("localnet submit: %w", err)
	}

	if flags.Has(transport.FlagRetransmitTrickle) {
		e.mu.Lock()
		if !e.armed && !e.closed && e.cfg.Period > 0 {
			e.arm()
		}
		e.mu.Unlock()
	}
	return nil
}

// ConfigureTrickle (re)arms the trickle timer with cfg, replacing whatever
// was running before.
func (e *Exchange) ConfigureTrickle(cfg transport.TrickleConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.dupCount = 0
	if e.closed {
		return
	}
	e.cancelLocked()
	if cfg.Period > 0 {
		e.arm()
	}
}

// NoteDuplicate records an overheard consistent copy without resetting the
// retransmit timer, per the suppression half of trickle. An exchange opened
// with FlagAllowDuplicateMsgs never accumulates suppression count — the
// admitting message is expected to be overheard again immediately, and
// that shouldn't count toward silencing a session that hasn't sent
// anything of its own yet.
func (e *Exchange) NoteDuplicate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.allowDuplicates {
		return
	}
	e.dupCount++
}

func (e *Exchange) arm() {
	e.timer = e.dialer.sched.Arm(e.cfg.Period, e.fire)
	e.armed = true
}

func (e *Exchange) cancelLocked() {
	if e.armed {
		e.dialer.sched.Cancel(e.timer)
		e.armed = false
	}
}

func (e *Exchange) fire() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	suppressed := e.dupCount >= e.cfg.SuppressionThresh && e.cfg.SuppressionThresh > 0
	e.dupCount = 0
	e.armed = false
	if e.cfg.Period > 0 {
		e.arm()
	}
	cb := e.onTimeout
	e.mu.Unlock()

	if !suppressed && cb != nil {
		cb(e)
	}
}

// Close cancels this exchange's trickle timer. The shared socket stays
// open for other exchanges.
func (e *Exchange) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.cancelLocked()
	return nil
}
