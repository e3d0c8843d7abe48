package scopelog

import (
	"context"
	"sync"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	sync.Mutex
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (fc *fakeClock) Now() time.Time {
	fc.Lock()
	defer fc.Unlock()
	return fc.t
}

func (fc *fakeClock) Advance(d time.Duration) {
	fc.Lock()
	defer fc.Unlock()
	fc.t = fc.t.Add(d)
}

// fakeSession is a HardwareSession whose every read takes exactly one batch
// period of fake time. Reading row r of channel c yields 1000*c + r.
type fakeSession struct {
	sync.Mutex
	nchan       int
	clock       *fakeClock
	sampleRate  int
	batchLength int
	reads       int
	rows        int
	block       func(read int) bool // reads that hang until their context ends
	configured  bool
	started     bool
	stopped     bool
	closed      int
}

func (fs *fakeSession) Configure(sampleRate, batchLength int) error {
	fs.Lock()
	defer fs.Unlock()
	fs.sampleRate, fs.batchLength = sampleRate, batchLength
	fs.configured = true
	return nil
}

func (fs *fakeSession) Start() error {
	fs.Lock()
	defer fs.Unlock()
	fs.started = true
	return nil
}

func (fs *fakeSession) Read(ctx context.Context, batchLength int) (RawBlock, error) {
	fs.Lock()
	r := fs.reads
	fs.reads++
	block := fs.block != nil && fs.block(r)
	fs.Unlock()
	if block {
		<-ctx.Done()
		return RawBlock{}, ctx.Err()
	}

	fs.Lock()
	defer fs.Unlock()
	fs.clock.Advance(time.Duration(float64(batchLength) / float64(fs.sampleRate) * float64(time.Second)))
	columns := make([][]float64, fs.nchan)
	for c := range columns {
		columns[c] = make([]float64, batchLength)
		for i := range columns[c] {
			columns[c][i] = float64(1000*c + fs.rows + i)
		}
	}
	fs.rows += batchLength
	if fs.nchan == 1 {
		return RawBlock{Flat: columns[0]}, nil
	}
	return RawBlock{Channels: columns}, nil
}

func (fs *fakeSession) Stop() error {
	fs.Lock()
	defer fs.Unlock()
	fs.stopped = true
	return nil
}

func (fs *fakeSession) Close() error {
	fs.Lock()
	defer fs.Unlock()
	fs.closed++
	return nil
}

func (fs *fakeSession) opener() SessionOpener {
	return func(cs ChannelSet) (HardwareSession, error) {
		fs.nchan = cs.Len()
		return fs, nil
	}
}

// recordingPublisher keeps every update it is given.
type recordingPublisher struct {
	sync.Mutex
	updates []ClientUpdate
}

func (rp *recordingPublisher) Publish(u ClientUpdate) {
	rp.Lock()
	defer rp.Unlock()
	rp.updates = append(rp.updates, u)
}

func (rp *recordingPublisher) tags() []string {
	rp.Lock()
	defer rp.Unlock()
	tags := make([]string, len(rp.updates))
	for i, u := range rp.updates {
		tags[i] = u.Tag
	}
	return tags
}

// recordingRenderer keeps every frame it is given.
type recordingRenderer struct {
	sync.Mutex
	frames []Frame
}

func (rr *recordingRenderer) Render(f Frame) error {
	rr.Lock()
	defer rr.Unlock()
	rr.frames = append(rr.frames, f)
	return nil
}

func (rr *recordingRenderer) Frames() []Frame {
	rr.Lock()
	defer rr.Unlock()
	return append([]Frame(nil), rr.frames...)
}

func mustChannels(names ...string) ChannelSet {
	cs, err := NewChannelSet(names...)
	if err != nil {
		panic(err)
	}
	return cs
}
