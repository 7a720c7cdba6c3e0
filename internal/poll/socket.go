//go:build unix

package poll

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/y0ncha/web-server/internal/conn"
)

// ErrRejected is returned by Accept when an accepted socket could not be
// switched to non-blocking mode and was closed.
var ErrRejected = errors.New("accepted socket rejected")

// Socket is a connected non-blocking TCP socket.
type Socket struct {
	fd int
}

// Fd returns the descriptor.
func (s *Socket) Fd() int { return s.fd }

// Read performs one recv.
func (s *Socket) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

// Write performs one send.
func (s *Socket) Write(p []byte) (int, error) {
	n, err := unix.Write(s.fd, p)
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

// Close closes the descriptor.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

func mapErr(err error) error {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
		return conn.ErrWouldBlock
	}
	return err
}

// Listener is a bound, listening, non-blocking TCP socket.
type Listener struct {
	fd   int
	addr string
}

// ListenConfig holds listening socket options.
type ListenConfig struct {
	Backlog   int
	ReusePort bool
}

// Listen binds addr ("host:port") and starts listening. Every failure here
// is a setup error: the socket is closed and nothing is left half open.
func Listen(addr string, cfg ListenConfig) (*Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = unix.SOMAXCONN
	}

	family, sa, err := sockaddr(tcpAddr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)

	setup := func() error {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
		}
		if cfg.ReusePort {
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
				return fmt.Errorf("setsockopt SO_REUSEPORT: %w", err)
			}
		}
		if err := unix.Bind(fd, sa); err != nil {
			return fmt.Errorf("bind %s: %w", addr, err)
		}
		if err := unix.Listen(fd, cfg.Backlog); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		if err := unix.SetNonblock(fd, true); err != nil {
			return fmt.Errorf("set non-blocking: %w", err)
		}
		return nil
	}
	if err := setup(); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	l := &Listener{fd: fd}
	if l.addr, err = LocalAddr(fd); err != nil {
		l.addr = addr
	}
	return l, nil
}

// LocalAddr returns the host:port a socket is bound to.
func LocalAddr(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", err
	}
	return formatSockaddr(sa), nil
}

// Fd returns the listening descriptor.
func (l *Listener) Fd() int { return l.fd }

// Addr returns the bound local address, with the kernel-chosen port when
// port 0 was requested.
func (l *Listener) Addr() string { return l.addr }

// Accept takes one pending connection. It returns conn.ErrWouldBlock when
// the backlog is empty and ErrRejected when the new socket could not be made
// non-blocking.
func (l *Listener) Accept() (conn.Socket, string, error) {
	nfd, sa, err := unix.Accept(l.fd)
	if err != nil {
		return nil, "", mapErr(err)
	}
	unix.CloseOnExec(nfd)
	if err := unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		return nil, "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return &Socket{fd: nfd}, formatSockaddr(sa), nil
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

func sockaddr(a *net.TCPAddr) (int, unix.Sockaddr, error) {
	if a.IP == nil || a.IP.To4() != nil {
		sa := &unix.SockaddrInet4{Port: a.Port}
		if a.IP != nil {
			copy(sa.Addr[:], a.IP.To4())
		}
		return unix.AF_INET, sa, nil
	}
	if ip6 := a.IP.To16(); ip6 != nil {
		sa := &unix.SockaddrInet6{Port: a.Port}
		copy(sa.Addr[:], ip6)
		return unix.AF_INET6, sa, nil
	}
	return 0, nil, fmt.Errorf("unsupported address %s", a)
}

func formatSockaddr(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return "unknown"
	}
}
