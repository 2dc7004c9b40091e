package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/hostlayer/abi"
	"github.com/wippyai/hostlayer/addr"
	"github.com/wippyai/hostlayer/mmap"
	"github.com/wippyai/hostlayer/sockets"
	"github.com/wippyai/hostlayer/thread"
)

type options struct {
	wasmFile string
	module   string
	root     string
	envVars  string
	argv     string
	noFS     bool
	list     bool
}

func main() {
	var (
		opts        options
		interactive = flag.Bool("i", false, "Interactive console against the host layer")
		verbose     = flag.Bool("v", false, "Verbose development logging")
	)
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to core wasm module")
	flag.StringVar(&opts.module, "module", abi.DefaultModuleName, "Import module name of the host functions")
	flag.StringVar(&opts.root, "root", "", "Confine guest file system calls to this directory")
	flag.StringVar(&opts.envVars, "env", "", "Environment variables (KEY=VAL,KEY2=VAL2)")
	flag.StringVar(&opts.argv, "argv", "", "Guest arguments (comma-separated)")
	flag.BoolVar(&opts.noFS, "nofs", false, "Disable guest file system calls")
	flag.BoolVar(&opts.list, "list", false, "List module imports and exports and exit")
	flag.Parse()

	if *verbose {
		if err := setupLogging(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *interactive {
		if err := runInteractive(opts.root); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if opts.wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: fzhost -wasm <file.wasm> [-argv a,b] [-env K=V,...] [-root dir] [-nofs]")
		fmt.Fprintln(os.Stderr, "       fzhost -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       fzhost -i  (interactive console)")
		os.Exit(1)
	}

	code, err := run(context.Background(), opts, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func setupLogging() error {
	l, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	sockets.SetLogger(l)
	mmap.SetLogger(l)
	thread.SetLogger(l)
	abi.SetLogger(l)
	return nil
}

// run executes the guest's _start and returns its exit code.
func run(ctx context.Context, opts options, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return 1, fmt.Errorf("read file: %w", err)
	}

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return 1, fmt.Errorf("compile: %w", err)
	}

	if opts.list {
		listModule(stdout, opts.wasmFile, compiled)
		return 0, nil
	}

	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	host := abi.New(&abi.Config{
		Sockets:     sockets.NewManager(sockets.WithResolver(addr.DefaultResolver())),
		ModuleName:  opts.module,
		AllowedRoot: opts.root,
		EnableFS:    !opts.noFS,
	})
	defer host.Close()

	if _, err := host.Instantiate(ctx, rt); err != nil {
		return 1, fmt.Errorf("instantiate host: %w", err)
	}

	cfg := wazero.NewModuleConfig().
		WithStdin(stdin).
		WithStdout(stdout).
		WithStderr(stderr).
		WithSysNanotime().
		WithArgs(append([]string{opts.wasmFile}, splitList(opts.argv)...)...)
	for _, kv := range splitList(opts.envVars) {
		if k, v, ok := strings.Cut(kv, "="); ok {
			cfg = cfg.WithEnv(k, v)
		}
	}

	mod, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		if exitErr, ok := err.(*sys.ExitError); ok {
			return int(exitErr.ExitCode()), nil
		}
		return 1, fmt.Errorf("instantiate: %w", err)
	}
	return 0, mod.Close(ctx)
}

func listModule(w io.Writer, name string, compiled wazero.CompiledModule) {
	fmt.Fprintf(w, "Module: %s\n", name)

	fmt.Fprintf(w, "\nImported functions:\n")
	for _, def := range compiled.ImportedFunctions() {
		module, fn, _ := def.Import()
		fmt.Fprintf(w, "  %s.%s\n", module, signature(fn, def))
	}

	exports := compiled.ExportedFunctions()
	names := make([]string, 0, len(exports))
	for n := range exports {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "\nExported functions:\n")
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", signature(n, exports[n]))
	}
}

func signature(name string, def api.FunctionDefinition) string {
	var params []string
	for i, p := range def.ParamTypes() {
		pname := fmt.Sprintf("arg%d", i)
		if names := def.ParamNames(); i < len(names) && names[i] != "" {
			pname = names[i]
		}
		params = append(params, pname+": "+api.ValueTypeName(p))
	}
	var results []string
	for _, r := range def.ResultTypes() {
		results = append(results, api.ValueTypeName(r))
	}
	out := name + "(" + strings.Join(params, ", ") + ")"
	if len(results) > 0 {
		out += " -> " + strings.Join(results, ", ")
	}
	return out
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
