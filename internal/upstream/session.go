// Package upstream implements component G (Upstream Session) and
// component K (RESP Wire Adapter) of the gateway: a single persistent,
// asynchronous connection to Redis with reconnect/backoff, an AUTH
// handshake, and a FIFO pending-reply queue that matches each received
// reply to the command that requested it.
//
// The wire encode/decode itself is delegated to redigo's Conn.Send /
// Conn.Flush / Conn.Receive (SPEC_FULL.md §10, §4.K) — this package only
// supplies the asynchronous callback-per-reply API the rest of the
// gateway expects, structured as a single-writer goroutine feeding a
// single-reader goroutine, a port of the teacher's batcher.go
// pendingAppend/done-channel pattern from HTTP batch-append to RESP
// command/reply matching.
package upstream

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"go.uber.org/zap"

	"github.com/webdis-go/webdis-go/internal/reply"
)

// Outcome is the dispatch result the request pipeline (component E)
// translates to an HTTP status at one site.
type Outcome int

const (
	// Sent indicates the command was handed to the upstream session;
	// the formatter callback will be invoked exactly once.
	Sent Outcome = iota
	// ParamError indicates the argv itself was invalid (empty).
	ParamError
	// ACLFail indicates the ACL engine denied the command.
	ACLFail
	// RedisUnavail indicates there is no live upstream connection.
	RedisUnavail
)

// pendingCmd is one entry in the FIFO pending-reply queue: the argv that
// was sent, and the callback to invoke with its reply.
type pendingCmd struct {
	argv     [][]byte
	callback func(reply.Reply)
}

func (c *pendingCmd) verb() string {
	return string(c.argv[0])
}

func (c *pendingCmd) args() []interface{} {
	out := make([]interface{}, len(c.argv)-1)
	for i, a := range c.argv[1:] {
		out[i] = a
	}
	return out
}

// epoch is the state of one live connection attempt: its redigo Conn, the
// in-flight FIFO, and a done channel closed exactly once when the
// connection is judged dead.
type epoch struct {
	conn       redis.Conn
	replyQueue chan *pendingCmd
	done       chan struct{}
	closeOnce  sync.Once
}

func (e *epoch) fail() {
	e.closeOnce.Do(func() {
		close(e.done)
		_ = e.conn.Close()
	})
}

// Session owns one logical upstream connection. Non-subscription traffic
// is single-producer (Dispatch) / single-consumer (the reader goroutine),
// serialized by commandCh acting as the single-writer queue described in
// SPEC_FULL.md §5.
type Session struct {
	network string // "tcp" or "unix"
	addr    string
	auth    string
	backoff BackoffPolicy
	logger  *zap.Logger

	// manual sessions (subscription clones) skip the writer/reader
	// loops: the caller drives Send/Flush/Receive itself once connected.
	manual bool

	commandCh chan *pendingCmd

	mu  sync.Mutex
	cur *epoch

	stopCh chan struct{}
	stopOnce sync.Once
}

// Config bundles the dial parameters for a Session.
type Config struct {
	// Host is either a TCP hostname or, if it begins with "/", a UNIX
	// socket path.
	Host string
	Port int
	Auth string
}

// New builds a Session and immediately schedules a connect attempt. Call
// Stop to tear it down.
func New(cfg Config, logger *zap.Logger) *Session {
	s := newSession(cfg, logger, false)
	go s.connectLoop()
	return s
}

func newSession(cfg Config, logger *zap.Logger, manual bool) *Session {
	network, addr := dialTarget(cfg)
	return &Session{
		network:   network,
		addr:      addr,
		auth:      cfg.Auth,
		backoff:   DefaultBackoffPolicy(),
		logger:    logger,
		manual:    manual,
		commandCh: make(chan *pendingCmd, 256),
		stopCh:    make(chan struct{}),
	}
}

func dialTarget(cfg Config) (network, addr string) {
	if len(cfg.Host) > 0 && cfg.Host[0] == '/' {
		return "unix", cfg.Host
	}
	return "tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// Clone creates an independent Session against the same endpoint, for a
// subscription's dedicated connection (SPEC_FULL.md §4.F, §9): replies on
// the clone never interleave with the shared session's pending-reply
// FIFO. The clone is "manual": it connects and authenticates the same
// way, but does not run the generic writer/reader loops, since once a
// subscription is issued every reply on the connection is a push message
// rather than a reply to a queued command.
func (s *Session) Clone(logger *zap.Logger) *Session {
	clone := newSession(Config{Host: hostFromAddr(s.network, s.addr), Port: portFromAddr(s.network, s.addr), Auth: s.auth}, logger, true)
	go clone.connectLoop()
	return clone
}

func hostFromAddr(network, addr string) string {
	if network == "unix" {
		return addr
	}
	host, _, _ := splitHostPort(addr)
	return host
}

func portFromAddr(network, addr string) int {
	if network == "unix" {
		return 0
	}
	_, port, _ := splitHostPort(addr)
	return port
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	return host, port, err
}

// Stop tears the session down and abandons any reconnect attempts.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.mu.Lock()
	ep := s.cur
	s.mu.Unlock()
	if ep != nil {
		ep.fail()
	}
}

// connectLoop dials, authenticates, and installs a new epoch; on failure
// or on epoch death it waits out a backoff delay and tries again, until
// Stop is called.
func (s *Session) connectLoop() {
	delay := s.backoff.InitialDelay
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		conn, err := redis.Dial(s.network, s.addr,
			redis.DialConnectTimeout(5*time.Second),
			redis.DialReadTimeout(0),
			redis.DialWriteTimeout(5*time.Second),
		)
		if err != nil {
			s.logger.Warn("upstream connect failed", zap.Error(err), zap.String("addr", s.addr))
			if !s.sleepBackoff(&delay) {
				return
			}
			continue
		}

		if s.auth != "" {
			if _, err := conn.Do("AUTH", s.auth); err != nil {
				s.logger.Warn("upstream AUTH failed", zap.Error(err))
			}
		}

		ep := &epoch{conn: conn, replyQueue: make(chan *pendingCmd, 256), done: make(chan struct{})}
		s.mu.Lock()
		s.cur = ep
		s.mu.Unlock()
		s.logger.Info("upstream connected", zap.String("addr", s.addr))

		if !s.manual {
			go s.writerLoop(ep)
			go s.readerLoop(ep)
		}

		delay = s.backoff.InitialDelay

		select {
		case <-ep.done:
		case <-s.stopCh:
			ep.fail()
			return
		}

		s.mu.Lock()
		if s.cur == ep {
			s.cur = nil
		}
		s.mu.Unlock()
		s.logger.Warn("upstream disconnected, scheduling reconnect", zap.String("addr", s.addr))

		if !s.sleepBackoff(&delay) {
			return
		}
	}
}

// sleepBackoff waits the next backoff interval, returning false if Stop
// was called meanwhile.
func (s *Session) sleepBackoff(delay *time.Duration) bool {
	wait, next := s.backoff.next(*delay)
	*delay = next
	select {
	case <-time.After(wait):
		return true
	case <-s.stopCh:
		return false
	}
}

func (s *Session) writerLoop(ep *epoch) {
	for {
		select {
		case cmd := <-s.commandCh:
			if err := ep.conn.Send(cmd.verb(), cmd.args()...); err != nil {
				cmd.callback(reply.Err(err.Error()))
				ep.fail()
				return
			}
			select {
			case ep.replyQueue <- cmd:
			case <-ep.done:
				return
			}
			if err := ep.conn.Flush(); err != nil {
				ep.fail()
				return
			}
		case <-ep.done:
			return
		}
	}
}

func (s *Session) readerLoop(ep *epoch) {
	for {
		v, err := ep.conn.Receive()
		if err != nil {
			// redigo returns a Redis error reply as a redis.Error; that is
			// the command's reply, not a dead connection.
			if _, isReplyErr := err.(redis.Error); !isReplyErr {
				s.drainFailed(ep)
				ep.fail()
				return
			}
		}
		select {
		case cmd := <-ep.replyQueue:
			cmd.callback(reply.FromInterface(v, err))
		case <-ep.done:
			return
		}
	}
}

// drainFailed fails every command still queued for this epoch once its
// connection has died, so no formatter callback is left un-invoked.
func (s *Session) drainFailed(ep *epoch) {
	for {
		select {
		case cmd := <-ep.replyQueue:
			cmd.callback(reply.Err("ERR upstream connection lost"))
		default:
			return
		}
	}
}

// Dispatch hands argv to the upstream session; callback is invoked
// exactly once, from the reader goroutine (or from the writer goroutine
// if sending fails), with the matching reply (or an error reply if the
// connection fails before a reply arrives).
// Returns RedisUnavail immediately, without touching argv, if there is
// no live connection.
func (s *Session) Dispatch(argv [][]byte, callback func(reply.Reply)) Outcome {
	if len(argv) == 0 {
		return ParamError
	}
	s.mu.Lock()
	ep := s.cur
	s.mu.Unlock()
	if ep == nil {
		return RedisUnavail
	}

	cmd := &pendingCmd{argv: argv, callback: callback}
	select {
	case s.commandCh <- cmd:
		return Sent
	case <-ep.done:
		return RedisUnavail
	}
}

// AwaitConn blocks until a connection is established (or ctx is done),
// returning the raw redigo Conn and a channel closed when that connection
// dies. Used only by the subscription streamer (component F), which
// drives Send/Flush/Receive itself once subscribed — see Clone's doc.
func (s *Session) AwaitConn(ctx context.Context) (redis.Conn, <-chan struct{}, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		ep := s.cur
		s.mu.Unlock()
		if ep != nil {
			return ep.conn, ep.done, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
