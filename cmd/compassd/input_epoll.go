//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// knobPollMS bounds how long epoll_wait blocks so shutdown is noticed.
const knobPollMS = 250

// runKnob reads rotary encoder events from all devices with one epoll loop
// and posts RotaryTurn events until ctx is canceled or a device fails.
func runKnob(ctx context.Context, devices []string, events chan<- Event, logger *slog.Logger) error {
	if len(devices) == 0 {
		return errors.New("no input devices provided")
	}

	files := make([]*os.File, 0, len(devices))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, dev := range devices {
		f, err := os.Open(dev)
		if err != nil {
			return fmt.Errorf("open %s: %w (run as root or add user to 'input' group)", dev, err)
		}
		files = append(files, f)
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)
		}
	}

	logger.Info("knob input started", "devices", devices)
	select {
	case events <- SourceConnected{Source: sourceKnob, At: time.Now()}:
	default:
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, inputEventSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, epollEvents, knobPollMS)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f := fdToFile[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("device error/hangup: %s (fd=%d)", f.Name(), fd)
			}

			if _, err := f.Read(buf); err != nil {
				return fmt.Errorf("read from %s: %w", f.Name(), err)
			}

			ev, ok := decodeInputEvent(buf)
			if !ok {
				continue
			}
			turn, ok := knobEventToTurn(ev)
			if !ok {
				continue
			}

			select {
			case events <- turn:
			default:
				logger.Warn("knob turn dropped: queue full", "steps", turn.Steps)
			}
		}
	}
}
