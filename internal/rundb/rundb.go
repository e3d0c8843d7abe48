// Package rundb records program activity and acquisition runs in a ClickHouse database.
package rundb

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

const databaseName = "scopelog" // official SQL name of the database

// Options says where the database server lives.
type Options struct {
	Addr        []string
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
	Version     string // reported to the server as the client version
}

// DefaultOptions returns options for a server on localhost, with credentials
// taken from SCOPELOG_DB_USER and SCOPELOG_DB_PASSWORD.
func DefaultOptions() Options {
	return Options{
		Addr:        []string{"localhost:9000"},
		Database:    databaseName,
		Username:    os.Getenv("SCOPELOG_DB_USER"),
		Password:    os.Getenv("SCOPELOG_DB_PASSWORD"),
		DialTimeout: 2 * time.Second,
		Version:     "unknown",
	}
}

// Connection is a handle to the run database. A Connection that failed to
// connect, or a Dummy one, accepts every call and records nothing.
type Connection struct {
	conn       clickhouse.Conn
	insert     insertFunc
	activity   *ActivityMessage // owned by the handler goroutine once serving
	activityID string
	runmsg     chan AcqRunMessage
	stopped    chan struct{}
	logger     *zap.Logger
	sync.WaitGroup

	err     error
	errLock sync.Mutex // guards err, which the handler goroutine may set
}

// insertFunc runs one INSERT statement with its arguments.
type insertFunc func(ctx context.Context, query string, args ...any) error

// IsConnected tells whether messages will reach the database.
func (db *Connection) IsConnected() bool {
	return (db != nil) && (db.insert != nil) && (db.Err() == nil)
}

// Err returns the error that broke the connection, if any.
func (db *Connection) Err() error {
	if db == nil {
		return errors.New("nil connection")
	}
	db.errLock.Lock()
	defer db.errLock.Unlock()
	return db.err
}

func (db *Connection) setErr(err error) {
	db.errLock.Lock()
	defer db.errLock.Unlock()
	db.err = err
}

// Dummy returns a Connection that records nothing.
func Dummy() *Connection {
	return &Connection{logger: zap.NewNop()}
}

// Start connects to the database, records the activity entry, and serves
// run messages until abort is closed, when it records the activity's end.
// Connection failures are logged and yield an unconnected Connection.
func Start(opt Options, activity *ActivityMessage, abort <-chan struct{}, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := connect(opt, logger)
	if !db.IsConnected() {
		logger.Warn("[rundb] not recording runs", zap.Strings("addr", opt.Addr), zap.Error(db.Err()))
		return db
	}
	db.serve(activity, abort)
	return db
}

// serve records the activity entry and starts the handler goroutine.
func (db *Connection) serve(activity *ActivityMessage, abort <-chan struct{}) {
	db.activity = activity
	db.activityID = activity.ID
	db.runmsg = make(chan AcqRunMessage)
	db.stopped = make(chan struct{})
	db.logActivity()
	db.Add(1)
	go db.handleConnection(abort)
}

func connect(opt Options, logger *zap.Logger) *Connection {
	db := &Connection{logger: logger}
	if opt.Database == "" {
		opt.Database = databaseName
	}
	options := clickhouse.Options{
		Addr: opt.Addr,
		Auth: clickhouse.Auth{
			Database: opt.Database,
			Username: opt.Username,
			Password: opt.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: "scopelog", Version: opt.Version},
			},
		},
		DialTimeout: opt.DialTimeout,
	}
	conn, err := clickhouse.Open(&options)
	if err != nil {
		db.setErr(err)
		return db
	}

	ctx := context.Background()
	if opt.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*opt.DialTimeout)
		defer cancel()
	}
	if err = conn.Ping(ctx); err != nil {
		var exception *clickhouse.Exception
		if errors.As(err, &exception) {
			logger.Warn("[rundb] server exception", zap.Int32("code", exception.Code),
				zap.String("message", exception.Message))
		}
		conn.Close()
		db.setErr(err)
		return db
	}
	db.conn = conn
	db.insert = func(ctx context.Context, query string, args ...any) error {
		const nowait = false
		return conn.AsyncInsert(ctx, query, nowait, args...)
	}
	return db
}

func (db *Connection) logActivity() {
	if !db.IsConnected() {
		return
	}
	ae := db.activity
	if err := db.insert(context.Background(), `INSERT INTO scopelogactivity VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ae.ID, ae.Hostname, ae.Githash, ae.Version,
		ae.GoVersion, ae.CPUs, formatTime(ae.Start), formatTime(ae.End),
	); err != nil {
		db.logger.Warn("[rundb] insert into scopelogactivity failed", zap.Error(err))
		db.setErr(err)
	}
}

func (db *Connection) handleConnection(abort <-chan struct{}) {
	defer db.Done()
	defer close(db.stopped)
	for {
		select {
		case <-abort:
			db.disconnect()
			return
		case m := <-db.runmsg:
			db.handleRunMessage(m)
		}
	}
}

func (db *Connection) disconnect() {
	if db.IsConnected() {
		db.activity.End = time.Now()
		db.logActivity()
	}
	if db.conn != nil {
		db.conn.Close()
	}
}

// RecordRun stores a copy of msg in the acqruns table (if the database is
// open). It blocks until the copy is accepted, so that a run's first entry
// always precedes its FinishRun entry. The caller may go on changing msg.
func (db *Connection) RecordRun(msg *AcqRunMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	m := *msg
	m.Channels = append([]string(nil), msg.Channels...)
	m.ActivityID = db.activityID
	select {
	case db.runmsg <- m:
	case <-db.stopped:
	}
}

// FinishRun stamps msg with the end time and stores it again.
func (db *Connection) FinishRun(msg *AcqRunMessage) {
	if msg == nil {
		return
	}
	msg.End = time.Now()
	db.RecordRun(msg)
}

func (db *Connection) handleRunMessage(m AcqRunMessage) {
	if !db.IsConnected() {
		return
	}
	if err := db.insert(context.Background(), `INSERT INTO acqruns VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ActivityID, strings.Join(m.Channels, ","), m.SampleRate, m.BatchLength,
		m.DurationSeconds, m.SinkPath, m.Batches, m.Rows, m.Error,
		formatTime(m.Start), formatTime(m.End),
	); err != nil {
		db.logger.Warn("[rundb] insert into acqruns failed", zap.String("run", m.ID), zap.Error(err))
		db.setErr(err)
	}
}
