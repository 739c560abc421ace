package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultAPIPort = 8080
)

var (
	defaultAPIAddr = fmt.Sprintf("tcp://0.0.0.0:%d", defaultAPIPort)
)

func usage() {
	fmt.Fprintf(os.Stderr, "USAGE\n")
	fmt.Fprintf(os.Stderr, "  %s <mode> [flags]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "MODES\n")
	fmt.Fprintf(os.Stderr, "  processor    Receipt processor Lambda handler\n")
	fmt.Fprintf(os.Stderr, "  runner       Local pipeline runner fed from a queue\n")
	fmt.Fprintf(os.Stderr, "  provision    Create or update the cloud resources\n")
	fmt.Fprintf(os.Stderr, "  definition   Print the state machine and trigger pattern\n")
	fmt.Fprintf(os.Stderr, "  harness      Enqueue synthetic receipt events for the runner\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "VERSION\n")
	fmt.Fprintf(os.Stderr, "  %s (%s)\n", version, gitCommit)
	fmt.Fprintf(os.Stderr, "\n")
}

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var run func([]string) error
	switch strings.ToLower(os.Args[1]) {
	case "processor":
		run = runProcessor
	case "runner":
		run = runRunner
	case "provision":
		run = runProvision
	case "definition":
		run = runDefinition
	case "harness":
		run = runHarness
	default:
		usage()
		os.Exit(1)
	}

	if err := run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses args, then any flag not given on the command line is
// read from its environment name, e.g. table.name from TABLE_NAME.
func parseFlags(flagset *flag.FlagSet, args []string) error {
	if err := flagset.Parse(args); err != nil {
		return err
	}

	given := make(map[string]bool)
	flagset.Visit(func(f *flag.Flag) {
		given[f.Name] = true
	})

	var err error
	flagset.VisitAll(func(f *flag.Flag) {
		if err != nil || given[f.Name] {
			return
		}
		if value, ok := syscall.Getenv(envName(f.Name)); ok {
			if e := flagset.Set(f.Name, value); e != nil {
				err = errors.Wrapf(e, "environment %s", envName(f.Name))
			}
		}
	})
	return err
}

func newLogger(debug bool) log.Logger {
	logLevel := level.AllowInfo()
	if debug {
		logLevel = level.AllowAll()
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	return level.NewFilter(logger, logLevel)
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		w := tabwriter.NewWriter(os.Stderr, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			var (
				def = f.DefValue
				env = envName(f.Name)
			)
			if def == "" {
				def = "..."
			}
			fmt.Fprintf(w, "\t-%s %s\t%s (%s)\n", f.Name, def, f.Usage, env)
		})
		w.Flush()
		fmt.Fprintf(os.Stderr, "\n")
	}
}

func envName(name string) string {
	return strings.ToUpper(strings.Replace(name, ".", "_", -1))
}

func parseAddr(addr string, defaultPort int) (network, address string, err error) {
	network = "tcp"
	if i := strings.Index(addr, "://"); i >= 0 {
		network, addr = strings.ToLower(addr[:i]), addr[i+3:]
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// No port given.
		host, port = strings.Trim(addr, "[]"), ""
	}
	if port == "" {
		port = strconv.Itoa(defaultPort)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", "", errors.Errorf("%s: invalid port %q", addr, port)
	}
	if host == "::" {
		host = "0.0.0.0"
	}
	return network, net.JoinHostPort(host, port), nil
}

func registerMetrics(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}

func registerProfile(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/pprof/block", pprof.Handler("block"))
	mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	mux.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
}
