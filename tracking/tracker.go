package tracking

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"sockettrace/liveness"
	"sockettrace/tracklog"
)

// noDeathCountdown is the death_countdown sentinel meaning "alive."
const noDeathCountdown int32 = -1

// roleDirection maps a Role to which physical direction carries requests
// and which carries responses.
var roleDirection = map[Role]struct {
	req, resp EventDirection
}{
	RoleUnknown:   {EventDirectionUnknown, EventDirectionUnknown},
	RoleRequestor: {EventDirectionSend, EventDirectionRecv},
	RoleResponder: {EventDirectionRecv, EventDirectionSend},
}

// ConnectionTracker is the per-connection state machine: it ingests
// open/close/data events, owns the two directional DataStreams, tracks
// liveness, and decides when it becomes eligible for destruction.
type ConnectionTracker struct {
	connID       ConnectionID
	trafficClass TrafficClass
	openInfo     OpenInfo
	closeInfo    CloseInfo

	sendData *DataStream
	recvData *DataStream

	numSendEvents uint64
	numRecvEvents uint64

	lastBPFTimestampNs uint64
	lastUpdate         time.Time
	deathCountdown     int32
	anomalies          uint64

	cfg      Config
	now      func() time.Time
	fdExists func(pid uint32, fd int32) bool
}

// NewConnectionTracker returns a fresh tracker: no events observed yet,
// not a zombie.
func NewConnectionTracker(cfg Config) *ConnectionTracker {
	t := &ConnectionTracker{
		sendData:       NewDataStream(),
		recvData:       NewDataStream(),
		deathCountdown: noDeathCountdown,
		cfg:            cfg,
		now:            time.Now,
		fdExists:       liveness.FDOpen,
	}
	t.lastUpdate = t.now()
	return t
}

// ConnID returns the tracker's identity as observed so far.
func (t *ConnectionTracker) ConnID() ConnectionID { return t.connID }

// TrafficClass returns the tracker's traffic class as observed so far.
func (t *ConnectionTracker) TrafficClass() TrafficClass { return t.trafficClass }

// OpenInfo returns the tracker's open event record, if any.
func (t *ConnectionTracker) OpenInfo() (OpenInfo, bool) { return t.openInfo, t.openInfo.set }

// CloseInfo returns the tracker's close event record, if any.
func (t *ConnectionTracker) CloseInfo() (CloseInfo, bool) { return t.closeInfo, t.closeInfo.set }

// Anomalies returns the count of logged upstream anomalies and invariant
// violations observed by this tracker.
func (t *ConnectionTracker) Anomalies() uint64 { return t.anomalies }

// SendData returns the send-direction data stream.
func (t *ConnectionTracker) SendData() *DataStream { return t.sendData }

// RecvData returns the recv-direction data stream.
func (t *ConnectionTracker) RecvData() *DataStream { return t.recvData }

// AddConnOpenEvent records an open event. A second open event overwrites
// the first, logged as a clobbering anomaly. Receiving an open event
// during the death countdown window is logged but permitted.
func (t *ConnectionTracker) AddConnOpenEvent(info ConnOpenInfo) {
	if t.openInfo.set {
		tracklog.Errorf("ConnectionTracker %s: clobbering existing ConnOpenEvent", t.connID)
		t.anomalies++
	}
	if t.IsZombie() {
		tracklog.Warnf("ConnectionTracker %s: did not expect Open event after Close", t.connID)
	}

	t.updateTimestamps(info.TimestampNs)
	t.setTrafficClass(info.TrafficClass)
	t.setIdentity(info.ConnID)

	remoteAddr, remotePort, err := parseSockAddr(info.SockAddr)
	if err != nil {
		tracklog.Warnf("ConnectionTracker %s: could not parse remote address: %v", t.connID, err)
	}
	t.openInfo = OpenInfo{
		TimestampNs: info.TimestampNs,
		RemoteAddr:  remoteAddr,
		RemotePort:  remotePort,
		set:         true,
	}
}

// AddConnCloseEvent records a close event and schedules destruction.
func (t *ConnectionTracker) AddConnCloseEvent(info ConnCloseInfo) {
	if t.closeInfo.set {
		tracklog.Errorf("ConnectionTracker %s: clobbering existing ConnCloseEvent", t.connID)
		t.anomalies++
	}

	t.updateTimestamps(info.TimestampNs)
	t.setIdentity(info.ConnID)

	t.closeInfo = CloseInfo{
		TimestampNs: info.TimestampNs,
		SendSeqNum:  info.SendSeqNum,
		RecvSeqNum:  info.RecvSeqNum,
		set:         true,
	}

	t.MarkForDeath(t.cfg.DeathCountdownIters)
}

// AddDataEvent buffers a data event on the direction its event type
// indicates. Unknown directions are a logged anomaly.
func (t *ConnectionTracker) AddDataEvent(event SocketDataEvent) {
	if t.IsZombie() {
		tracklog.Warnf("ConnectionTracker %s: did not expect Data event after Close", t.connID)
	}

	t.updateTimestamps(event.TimestampNs)
	t.setIdentity(event.ConnID)
	t.setTrafficClass(event.TrafficClass)

	switch event.Direction {
	case EventDirectionSend:
		t.sendData.AddEvent(event.SeqNum, event)
		t.numSendEvents++
	case EventDirectionRecv:
		t.recvData.AddEvent(event.SeqNum, event)
		t.numRecvEvents++
	default:
		tracklog.Errorf("ConnectionTracker %s: AddDataEvent: unexpected event direction %v", t.connID, event.Direction)
		t.anomalies++
	}
}

// AllEventsReceived is the clean-shutdown predicate: close has arrived
// and every sequence number the close event claimed on each direction
// has been ingested. It is not required for destruction.
func (t *ConnectionTracker) AllEventsReceived() bool {
	return t.closeInfo.set &&
		t.numSendEvents == t.closeInfo.SendSeqNum &&
		t.numRecvEvents == t.closeInfo.RecvSeqNum
}

// streamForDirection resolves a logical direction to the physical
// DataStream carrying it.
func (t *ConnectionTracker) streamForDirection(dir EventDirection) *DataStream {
	switch dir {
	case EventDirectionSend:
		return t.sendData
	case EventDirectionRecv:
		return t.recvData
	default:
		return nil
	}
}

// ReqData returns the stream carrying this connection's requests:
// send_data if we are the Requestor, recv_data if we are the Responder,
// nil if the role is still Unknown.
func (t *ConnectionTracker) ReqData() *DataStream {
	return t.streamForDirection(roleDirection[t.trafficClass.Role].req)
}

// RespData returns the stream carrying this connection's responses,
// the mirror image of ReqData.
func (t *ConnectionTracker) RespData() *DataStream {
	return t.streamForDirection(roleDirection[t.trafficClass.Role].resp)
}

// MarkForDeath schedules destruction in countdown ticks. If a
// destruction is already scheduled, the earlier of the two wins — later
// rescheduling cannot prolong life.
func (t *ConnectionTracker) MarkForDeath(countdown int32) {
	if t.deathCountdown >= 0 {
		if countdown < t.deathCountdown {
			t.deathCountdown = countdown
		}
	} else {
		t.deathCountdown = countdown
	}
}

// IsZombie reports whether destruction has been scheduled (countdown
// window entered, possibly already at zero).
func (t *ConnectionTracker) IsZombie() bool { return t.deathCountdown >= 0 }

// ReadyForDestruction reports whether the countdown has fully elapsed.
func (t *ConnectionTracker) ReadyForDestruction() bool { return t.deathCountdown == 0 }

// IterationTick is called once per pipeline iteration: it decrements a
// positive death countdown, and checks for inactivity against the
// configured duration.
func (t *ConnectionTracker) IterationTick() {
	if t.deathCountdown > 0 {
		t.deathCountdown--
	}

	if t.now().Sub(t.lastUpdate) > t.cfg.InactivityDuration {
		t.handleInactivity()
	}
}

// handleInactivity tests whether the socket's fd is still open in the
// process filesystem. If not, the connection is dead on the kernel side
// and is marked for immediate death; if so, the connection is idle but
// alive, so stale buffered bytes are dropped.
func (t *ConnectionTracker) handleInactivity() {
	if !t.fdExists(t.connID.PID, int32(t.connID.FD)) {
		t.MarkForDeath(0)
		return
	}
	t.sendData.Reset()
	t.recvData.Reset()
}

// updateTimestamps keeps the high-water-mark BPF timestamp and refreshes
// the wall-clock update time used by the inactivity check.
func (t *ConnectionTracker) updateTimestamps(bpfTimestampNs uint64) {
	if bpfTimestampNs > t.lastBPFTimestampNs {
		t.lastBPFTimestampNs = bpfTimestampNs
	}
	t.lastUpdate = t.now()
}

// setTrafficClass enforces that once set to a non-Unknown value, the
// traffic class is immutable for the life of the tracker. A conflicting
// attempt is logged and does not mutate state.
func (t *ConnectionTracker) setTrafficClass(tc TrafficClass) {
	if tc.isUnknown() {
		return
	}
	if t.trafficClass.isUnknown() {
		t.trafficClass = tc
		return
	}
	if t.trafficClass != tc {
		tracklog.Errorf("ConnectionTracker %s: traffic class invariant violation: have (%s,%s), incoming (%s,%s)",
			t.connID, t.trafficClass.Protocol, t.trafficClass.Role, tc.Protocol, tc.Role)
		t.anomalies++
	}
}

// setIdentity merges id into the tracker's identity field by field.
// Once a field has been observed non-zero, a differing incoming value is
// logged, and that field is left unchanged.
func (t *ConnectionTracker) setIdentity(id ConnectionID) {
	t.connID.PID = mergeIdentityField(t, "pid", t.connID.PID, id.PID)
	t.connID.PIDStartTimeNs = mergeIdentityField(t, "pid_start_time_ns", t.connID.PIDStartTimeNs, id.PIDStartTimeNs)
	t.connID.FD = mergeIdentityField(t, "fd", t.connID.FD, id.FD)
	t.connID.Generation = mergeIdentityField(t, "generation", t.connID.Generation, id.Generation)
}

func mergeIdentityField[T comparable](t *ConnectionTracker, name string, existing, incoming T) T {
	var zero T
	if existing == zero || existing == incoming {
		return incoming
	}
	if incoming == zero {
		return existing
	}
	tracklog.Errorf("ConnectionTracker %s: identity invariant violation: %s changed from %v to %v", t.connID, name, existing, incoming)
	t.anomalies++
	return existing
}

func parseSockAddr(addr net.Addr) (string, uint16, error) {
	if addr == nil {
		return "", 0, fmt.Errorf("nil sockaddr")
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0, fmt.Errorf("split host/port: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("parse port: %w", err)
	}
	return host, uint16(port), nil
}
