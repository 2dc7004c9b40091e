//go:build linux

package sockets

import "golang.org/x/sys/unix"

const msgNoSignal = unix.MSG_NOSIGNAL

func socket(family, typ, proto int) (int, error) {
	return unix.Socket(family, typ|unix.SOCK_CLOEXEC, proto)
}

func accept(fd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(fd, unix.SOCK_CLOEXEC)
}
