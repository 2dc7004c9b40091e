// Package hostlayer is a platform-abstraction layer that a managed-language
// runtime calls into for everything the host OS must mediate: networking,
// address resolution, memory-mapped files, monotonic time, threads and a
// process-wide lock.
//
// # Architecture Overview
//
//	hostlayer/           Root package with the guest Memory interface
//	├── errors/          Structured errors, errno and resolver mapping
//	├── result/          Two-slot result encoding for boundary callers
//	├── addr/            Family/type/protocol tables and host:port resolution
//	├── sockets/         Socket lifecycle, blocking and non-blocking I/O
//	├── mmap/            Shared file mappings
//	├── clock/           Monotonic nanotime and full-duration sleep
//	├── thread/          OS-thread-bound workers and the global lock
//	├── resource/        Typed handle tables
//	├── osfs/            Directory, environment and metadata glue
//	├── abi/             wazero host module exposing all of the above
//	└── cmd/fzhost/      Guest runner and interactive console
//
// # Quick Start
//
// Listen and accept from Go:
//
//	m := sockets.NewManager()
//	ln, err := m.Bind(ctx, addr.Spec{
//	    Family: addr.FamilyInet, Type: addr.SocketStream,
//	    Protocol: addr.ProtocolTCP, Host: "127.0.0.1", Port: "0",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ln.Close()
//
//	if err := m.Listen(ln, 16); err != nil {
//	    log.Fatal(err)
//	}
//	conn, err := m.Accept(ln)
//
// Expose the layer to a WebAssembly guest:
//
//	r := wazero.NewRuntime(ctx)
//	host := abi.New(nil)
//	defer host.Close()
//	if _, err := host.Instantiate(ctx, r); err != nil {
//	    log.Fatal(err)
//	}
//
// # Errors
//
// Every fallible operation returns a *errors.Error carrying a Phase, a Kind
// and the OS code. Boundary callers that cannot receive Go errors use the
// result package, which packs the code into a result.Slot.
package hostlayer
