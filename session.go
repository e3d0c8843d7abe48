package scopelog

import "context"

// HardwareSession is the capability the acquisition loop needs from a DAQ
// driver. Implementations forward to the vendor driver; retries, pooling, and
// buffering belong there and not in this package.
type HardwareSession interface {
	// Configure sets continuous sampling at sampleRate with batchLength as the
	// buffer quantum.
	Configure(sampleRate int, batchLength int) error
	Start() error
	// Read blocks until batchLength samples per channel are available. It
	// should give up when ctx is done; a driver that enforces its own wait
	// bound reports it as ErrHardwareTimeout.
	Read(ctx context.Context, batchLength int) (RawBlock, error)
	Stop() error
	Close() error
}

// SessionOpener opens a HardwareSession on the given channels.
type SessionOpener func(channels ChannelSet) (HardwareSession, error)
