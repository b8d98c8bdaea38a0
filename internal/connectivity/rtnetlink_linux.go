//go:build linux

package connectivity

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Multicast groups and header alignment from linux/rtnetlink.h and
// linux/netlink.h.
const (
	rtmgrpLink       = 0x1
	rtmgrpIPv4IfAddr = 0x10
	rtmgrpIPv6IfAddr = 0x100
	nlmsgAlignTo     = 4
)

// routeSocket is a NETLINK_ROUTE socket subscribed to link and address
// changes. Reads time out every second so the owner can observe shutdown.
type routeSocket struct {
	fd int
}

func openRouteSocket() (*routeSocket, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, fmt.Errorf("open rtnetlink socket: %w", err)
	}
	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: rtmgrpLink | rtmgrpIPv4IfAddr | rtmgrpIPv6IfAddr,
	}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind rtnetlink socket: %w", err)
	}
	tv := unix.NsecToTimeval(int64(1e9))
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set rtnetlink timeout: %w", err)
	}
	return &routeSocket{fd: fd}, nil
}

// Read waits for one datagram and returns a description of the first
// relevant message in it, or "" on timeout or when nothing relevant arrived.
func (s *routeSocket) Read(buf []byte) (string, error) {
	n, _, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
			return "", nil
		}
		return "", err
	}
	return routeEventKind(buf[:n]), nil
}

func (s *routeSocket) Close() error {
	return unix.Close(s.fd)
}

// routeEventKind walks the netlink headers in msg and names the first link
// or address change it finds.
func routeEventKind(msg []byte) string {
	for len(msg) >= unix.SizeofNlMsghdr {
		length := binary.NativeEndian.Uint32(msg[0:4])
		msgType := binary.NativeEndian.Uint16(msg[4:6])
		if length < unix.SizeofNlMsghdr || int(length) > len(msg) {
			return ""
		}
		switch msgType {
		case unix.RTM_NEWLINK:
			return "link up"
		case unix.RTM_DELLINK:
			return "link removed"
		case unix.RTM_NEWADDR:
			return "address added"
		case unix.RTM_DELADDR:
			return "address removed"
		}
		aligned := (int(length) + nlmsgAlignTo - 1) &^ (nlmsgAlignTo - 1)
		if aligned > len(msg) {
			return ""
		}
		msg = msg[aligned:]
	}
	return ""
}
