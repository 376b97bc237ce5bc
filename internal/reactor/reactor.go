// Package reactor implements the single-threaded, epoll-based event loop
// that owns the listening socket, every client connection, and the
// RESP decode/dispatch/encode cycle. Nothing here runs on more than one
// goroutine; the tiered cache and disk store it drives through
// resp.Executor are reached exclusively from this loop.
package reactor

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"blinkdb/internal/logging"
	"blinkdb/internal/resp"

	"github.com/google/uuid"
)

// Config bounds the reactor's per-connection buffers and epoll batch size.
type Config struct {
	BindAddr        string
	Port            int
	MaxEvents       int
	MaxInputBuffer  int
	MaxOutputBuffer int
}

// Reactor is the non-blocking TCP server. Create one with New, then call
// Run to block until ctx is cancelled or a fatal error occurs.
type Reactor struct {
	cfg      Config
	exec     resp.Executor
	epfd     int
	listenFd int
	conns    map[int]*connection
}

// New constructs a Reactor. It does not bind or listen yet; call Run for
// that, so construction can never fail on I/O.
func New(cfg Config, exec resp.Executor) *Reactor {
	return &Reactor{
		cfg:   cfg,
		exec:  exec,
		conns: make(map[int]*connection),
	}
}

// Run binds the listening socket, creates the epoll instance, and drives
// the event loop until ctx is cancelled. It returns nil on a clean
// shutdown and a non-nil error on any startup failure (bind, listen,
// epoll_create1), matching the CLI's fatal-exit contract.
func (r *Reactor) Run(ctx context.Context) error {
	listenFd, err := bindListener(r.cfg.BindAddr, r.cfg.Port)
	if err != nil {
		return fmt.Errorf("reactor: bind listener: %w", err)
	}
	r.listenFd = listenFd
	defer unix.Close(r.listenFd)

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	r.epfd = epfd
	defer unix.Close(r.epfd)

	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, r.listenFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(r.listenFd),
	}); err != nil {
		return fmt.Errorf("reactor: register listener: %w", err)
	}

	logging.Info(ctx, logging.ComponentRESP, logging.ActionStart, "reactor listening", map[string]interface{}{
		"bind_addr": r.cfg.BindAddr,
		"port":      r.cfg.Port,
	})

	maxEvents := r.cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 1024
	}
	events := make([]unix.EpollEvent, maxEvents)

	for {
		if ctx.Err() != nil {
			r.shutdown()
			return nil
		}

		// A finite wait lets the loop notice ctx cancellation between
		// iterations without giving up the single-threaded, blocking
		// epoll_wait(-1) model the spec describes for the steady state.
		n, err := unix.EpollWait(r.epfd, events, 1000)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == r.listenFd {
				r.acceptLoop(ctx)
				continue
			}

			conn, ok := r.conns[fd]
			if !ok {
				continue
			}

			flags := events[i].Events
			if flags&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				r.closeConnection(conn)
				continue
			}
			if flags&unix.EPOLLIN != 0 {
				r.handleReadable(conn)
				if _, stillOpen := r.conns[fd]; !stillOpen {
					continue
				}
			}
			if flags&unix.EPOLLOUT != 0 {
				r.flush(conn)
			}
		}
	}
}

// acceptLoop accepts every pending connection until the accept queue
// drains (a non-blocking accept returns EAGAIN), registers each new
// socket for read readiness, and tags it with a correlation ID so its
// whole command sequence is traceable in the log stream.
func (r *Reactor) acceptLoop(ctx context.Context) {
	for {
		nfd, _, err := unix.Accept(r.listenFd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			logging.Warn(ctx, logging.ComponentRESP, logging.ActionConnect, "accept failed", map[string]interface{}{"error": err.Error()})
			return
		}

		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}

		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, nfd, &unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(nfd),
		}); err != nil {
			unix.Close(nfd)
			continue
		}

		connCtx := logging.WithCorrelationID(ctx, uuid.New().String())
		r.conns[nfd] = &connection{fd: nfd, ctx: connCtx}
		logging.Debug(connCtx, logging.ComponentRESP, logging.ActionConnect, "accepted connection")
	}
}

// scratchBufferSize is the read chunk size; large enough that pipelined
// commands typically arrive in one syscall, small enough not to waste
// memory per idle connection.
const scratchBufferSize = 64 * 1024

// handleReadable drains fd to EAGAIN, appending everything read to the
// connection's input buffer, then repeatedly runs the RESP decoder over
// that buffer, dispatching every complete command it yields before the
// reply bytes are flushed.
func (r *Reactor) handleReadable(conn *connection) {
	scratch := make([]byte, scratchBufferSize)

	for {
		n, err := unix.Read(conn.fd, scratch)
		if n > 0 {
			if !conn.appendInput(scratch[:n], r.cfg.MaxInputBuffer) {
				conn.appendOutput(resp.FormatError("ERR input buffer limit exceeded"), 0)
				conn.closing = true
				break
			}
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			break
		}
		if n == 0 || err != nil {
			conn.closing = true
			break
		}
	}

	r.processBuffer(conn)
	r.flush(conn)
}

// processBuffer runs TryParse until it reports Incomplete, dispatching
// each Complete command and appending its reply to the output buffer. A
// Malformed result appends the protocol-error reply and marks the
// connection closing, per the spec's error taxonomy.
func (r *Reactor) processBuffer(conn *connection) {
	for {
		result, remainder := resp.TryParse(conn.inBuf)
		conn.inBuf = remainder

		switch result.Status {
		case resp.StatusIncomplete:
			return

		case resp.StatusMalformed:
			conn.appendOutput(resp.FormatError("ERR protocol error"), 0)
			conn.closing = true
			return

		case resp.StatusComplete:
			reply, shouldClose := resp.Dispatch(conn.ctx, r.exec, result.Args)
			if !conn.appendOutput(reply, r.cfg.MaxOutputBuffer) {
				conn.closing = true
				return
			}
			if shouldClose {
				conn.closing = true
				return
			}
		}
	}
}

// flush writes as much of outBuf as the socket will currently accept. If
// it drains fully, any pending write-readiness registration is dropped
// and a closing connection is closed. If it would block, the connection
// is registered for EPOLLOUT so the next writable notification resumes
// the drain.
func (r *Reactor) flush(conn *connection) {
	for len(conn.outBuf) > 0 {
		n, err := unix.Write(conn.fd, conn.outBuf)
		if n > 0 {
			conn.outBuf = conn.outBuf[n:]
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			r.registerWritable(conn, true)
			return
		}
		if err != nil {
			r.closeConnection(conn)
			return
		}
	}

	r.registerWritable(conn, false)
	if conn.closing {
		r.closeConnection(conn)
	}
}

func (r *Reactor) registerWritable(conn *connection, want bool) {
	if conn.writeRegistered == want {
		return
	}
	events := uint32(unix.EPOLLIN)
	if want {
		events |= unix.EPOLLOUT
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, conn.fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(conn.fd),
	}); err == nil {
		conn.writeRegistered = want
	}
}

func (r *Reactor) closeConnection(conn *connection) {
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, conn.fd, &unix.EpollEvent{})
	unix.Close(conn.fd)
	delete(r.conns, conn.fd)
	logging.Debug(conn.ctx, logging.ComponentRESP, logging.ActionDisconnect, "closed connection")
}

// shutdown closes every open connection and the listener when Run's
// context is cancelled.
func (r *Reactor) shutdown() {
	for _, conn := range r.conns {
		unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, conn.fd, &unix.EpollEvent{})
		unix.Close(conn.fd)
	}
	r.conns = make(map[int]*connection)
}

// bindListener creates a non-blocking IPv4 TCP listening socket bound to
// addr:port with SO_REUSEADDR set, matching the accept-loop-to-EAGAIN
// model the rest of the reactor assumes.
func bindListener(addr string, port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	if addr != "" && addr != "0.0.0.0" {
		ip := net.ParseIP(addr).To4()
		if ip == nil {
			unix.Close(fd)
			return -1, fmt.Errorf("invalid bind address %q", addr)
		}
		copy(sa.Addr[:], ip)
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}

	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set listener non-blocking: %w", err)
	}

	return fd, nil
}
