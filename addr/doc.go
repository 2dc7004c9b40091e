// Package addr translates the caller's address-family, socket-type and
// protocol numbers into OS constants and resolves textual host/port pairs
// into candidate socket addresses.
//
// The numbering follows the runtime's closed enumerations:
//
//	family:   1 unix, 2 inet, 10 inet6
//	type:     1 stream, 2 datagram, 3 raw
//	protocol: 0 ip (OS default), 6 tcp, 17 udp, 41 ipv6
//
// Unknown values are rejected with errors.KindInvalidArgument by Native and
// panic in MustNative.
//
// Resolution keeps the order the system resolver returns; the sockets
// package tries the candidates front to back:
//
//	c, err := addr.DefaultResolver().Resolve(ctx, addr.Spec{
//		Family: addr.FamilyInet, Type: addr.SocketStream,
//		Protocol: addr.ProtocolTCP, Host: "localhost", Port: "http",
//	}, false)
package addr
