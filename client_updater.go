package scopelog

// Contains the ClientUpdater object, which publishes JSON-encoded messages
// giving the latest run state to any subscribed clients.

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pebbe/zmq4"
	"github.com/usnistgov/scopelog/internal/unboundedchan"
	"go.uber.org/zap"
)

// ClientUpdate carries one message to be published on the status port.
type ClientUpdate struct {
	Tag   string
	State interface{}
}

// StatusPublisher receives progress messages from the loops. Publish must
// not block for long.
type StatusPublisher interface {
	Publish(update ClientUpdate)
}

type nopPublisher struct{}

func (nopPublisher) Publish(ClientUpdate) {}

// RunStateMessage is published with tag RUNSTATE on every run state change.
type RunStateMessage struct {
	RunID       string
	State       string
	Channels    []string
	SampleRate  int
	BatchLength int
	SinkPath    string
	Error       string `json:",omitempty"`
}

// BatchMessage is published with tag BATCH after every appended batch.
type BatchMessage struct {
	RunID          string
	Batches        int
	RowsWritten    int
	ElapsedSeconds float64
}

// FrameMessage is published with tag FRAME after every redraw.
type FrameMessage struct {
	RunID     string
	Seq       int
	Start     int
	End       int
	Dropped   int
	Summaries []ChannelSummary
}

// ClientUpdater forwards updates to a ZMQ PUB socket as two-frame messages
// [tag, JSON] and logs each one to UpdateLogger. Updates are queued in an
// unbounded channel so that publishers never wait on slow clients.
type ClientUpdater struct {
	queue  *unboundedchan.UnboundedChannel[ClientUpdate]
	pub    *zmq4.Socket
	done   chan struct{}
	closed bool
	sync.Mutex
}

// StartClientUpdater binds a PUB socket on tcp port portstatus (0: log only,
// no socket) and starts forwarding updates.
func StartClientUpdater(portstatus int) (*ClientUpdater, error) {
	cu := &ClientUpdater{
		queue: unboundedchan.NewUnboundedChannel[ClientUpdate](),
		done:  make(chan struct{}),
	}
	if portstatus > 0 {
		pub, err := zmq4.NewSocket(zmq4.PUB)
		if err != nil {
			close(cu.queue.In())
			return nil, err
		}
		hostname := fmt.Sprintf("tcp://*:%d", portstatus)
		if err := pub.Bind(hostname); err != nil {
			pub.Close()
			close(cu.queue.In())
			return nil, fmt.Errorf("binding status socket to %s: %w", hostname, err)
		}
		cu.pub = pub
	}
	go cu.run()
	return cu, nil
}

// Publish queues an update. Updates published after Close are dropped.
func (cu *ClientUpdater) Publish(update ClientUpdate) {
	cu.Lock()
	defer cu.Unlock()
	if cu.closed {
		return
	}
	cu.queue.In() <- update
}

// Close publishes everything already queued, then closes the socket.
func (cu *ClientUpdater) Close() {
	cu.Lock()
	if cu.closed {
		cu.Unlock()
		return
	}
	cu.closed = true
	close(cu.queue.In())
	cu.Unlock()
	<-cu.done
}

func (cu *ClientUpdater) run() {
	defer close(cu.done)
	if cu.pub != nil {
		defer cu.pub.Close()
	}
	for update := range cu.queue.Out() {
		message, err := json.Marshal(update.State)
		if err != nil {
			ProblemLogger.Warn("[status] could not encode update", zap.String("tag", update.Tag), zap.Error(err))
			continue
		}
		UpdateLogger.Info("[status] "+update.Tag, zap.ByteString("message", message))
		if cu.pub == nil {
			continue
		}
		if _, err := cu.pub.SendMessage(update.Tag, message); err != nil {
			ProblemLogger.Warn("[status] could not publish update", zap.String("tag", update.Tag), zap.Error(err))
		}
	}
}
