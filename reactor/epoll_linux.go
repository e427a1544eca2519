//go:build linux
// +build linux

// File: reactor/epoll_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) reactor: the socket is registered edge-triggered for both
// directions, an eventfd interrupts the wait, and the heartbeat deadline is
// the wait timeout.

package reactor

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const socketEvents = unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET

// epollReactor implements api.Reactor using Linux epoll.
type epollReactor struct {
	epfd  int
	evfd  int
	fd    int
	hb    HeartbeatPoller
	state *SocketState
	log   zerolog.Logger

	mu        sync.Mutex
	closed    bool
	heartbeat bool
	done      chan struct{}
}

func newEpollReactor(fd int, hb HeartbeatPoller, state *SocketState, log zerolog.Logger) (*epollReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	evfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	r := &epollReactor{epfd: epfd, evfd: evfd, fd: fd, hb: hb, state: state, log: log, done: make(chan struct{})}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, evfd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(evfd)}); err != nil {
		r.release()
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: socketEvents, Fd: int32(fd)}); err != nil {
		r.release()
		return nil, fmt.Errorf("epoll ctl add socket: %w", err)
	}
	go r.run()
	return r, nil
}

// rearm re-registers the socket, which reports current readiness again.
func (r *epollReactor) rearm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	ev := unix.EpollEvent{Events: socketEvents, Fd: int32(r.fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, r.fd, &ev); err != nil {
		r.log.Debug().Err(err).Msg("epoll re-arm failed")
	}
}

func (r *epollReactor) PollRead()  { r.rearm() }
func (r *epollReactor) PollWrite() { r.rearm() }

// StartHeartbeat makes the poller honour heartbeat deadlines from now on.
func (r *epollReactor) StartHeartbeat() {
	r.mu.Lock()
	r.heartbeat = true
	r.mu.Unlock()
	r.notify()
}

func (r *epollReactor) notify() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(r.evfd, buf[:])
}

// Close stops the poller goroutine and releases epoll resources. The
// socket itself belongs to the stream.
func (r *epollReactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	r.notify()
	<-r.done
	r.release()
	return nil
}

func (r *epollReactor) release() {
	unix.Close(r.evfd)
	unix.Close(r.epfd)
}

func (r *epollReactor) timeout() int {
	r.mu.Lock()
	hb := r.heartbeat
	r.mu.Unlock()
	if !hb {
		return -1
	}
	left, ok := r.hb.PollTimeout()
	if !ok {
		return -1
	}
	ms := int((left + time.Millisecond - 1) / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return ms
}

func (r *epollReactor) run() {
	defer close(r.done)
	const maxEvents = 8
	var events [maxEvents]unix.EpollEvent
	var drain [8]byte
	for {
		n, err := unix.EpollWait(r.epfd, events[:], r.timeout())
		if err != nil {
			if err == unix.EINTR {
				continue // interrupted by signal, normal
			}
			r.log.Error().Err(err).Msg("epoll wait failed")
			r.state.Send(EventError)
			return
		}
		for i := 0; i < n; i++ {
			ev := events[i]
			if int(ev.Fd) == r.evfd {
				_, _ = unix.Read(r.evfd, drain[:])
				r.mu.Lock()
				closed := r.closed
				r.mu.Unlock()
				if closed {
					return
				}
				continue
			}
			var out Event
			if ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
				out |= EventReadable
			}
			if ev.Events&unix.EPOLLOUT != 0 {
				out |= EventWritable
			}
			if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				out |= EventError
			}
			if out != 0 {
				r.state.Send(out)
			}
		}
	}
}
