/*
procfuse is a FUSE filesystem that exposes a simulated kernel's internal
state as a browseable process filesystem. Every file's content is
generated at the moment it is read: per-process memory maps, open file
descriptors, saved registers, symbolicated kernel stacks, the memory
manager's object lists, mount and vfs inode tables, the kernel boot log
and writable boolean kernel variables under /sys. It includes a HTTP
dashboard for basic filesystem metrics and controlling operations and
runtime behavior.

The following signals are observed and handled by the filesystem:
  - SIGTERM or SIGINT (CTRL+C) gracefully unmounts the filesystem
  - SIGUSR1 forces a garbage collection (within Go)
  - SIGUSR2 dumps a diagnostic stacktrace to standard error (stderr)
*/
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/Abraao-Filho/serenity/internal/fusefs"
	"github.com/Abraao-Filho/serenity/internal/ksim"
	"github.com/Abraao-Filho/serenity/internal/logging"
	"github.com/Abraao-Filho/serenity/internal/procfs"
	"github.com/Abraao-Filho/serenity/internal/webserver"
	"github.com/spf13/cobra"
)

const (
	stackTraceBuffer = 1 << 24
	ringBufferSize   = 100
	tickInterval     = time.Second
)

// Version is the program version (filled in from the Makefile).
var Version string

type programOpts struct {
	mountDir         string
	dashboardAddress string
	traceReads       bool
	relaxedCache     bool
}

func rootCmd() *cobra.Command {
	var argDashAddress string
	var argTraceReads bool
	var argRelaxedCache bool

	cmd := &cobra.Command{
		Use:     helpTextUse,
		Short:   helpTextShort,
		Long:    helpTextLong,
		Version: Version,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return run(programOpts{
				mountDir:         args[0],
				dashboardAddress: argDashAddress,
				traceReads:       argTraceReads,
				relaxedCache:     argRelaxedCache,
			})
		},
	}
	cmd.Flags().StringVarP(&argDashAddress, "webaddr", "w", "", "Address to serve the diagnostics dashboard on (e.g. :8000; but disabled when empty)")
	cmd.Flags().BoolVarP(&argTraceReads, "trace", "t", false, "Log every read call with its byte count and key")
	cmd.Flags().BoolVarP(&argRelaxedCache, "relaxed-cache", "r", false, "Allow the kernel to cache directory listings between opens")

	cmd.AddCommand(dumpCmd())

	return cmd
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts programOpts) error {
	rbuf := logging.NewRingBuffer(ringBufferSize, os.Stdout)

	kern := ksim.NewKernel(rbuf)
	seedKernel(kern)

	core := procfs.Init(kern.Collaborators())

	fsOpts := fusefs.DefaultOptions()
	fsOpts.TraceReads.Store(opts.traceReads)
	fsOpts.StrictCache = !opts.relaxedCache

	fsys, err := fusefs.NewFS(core, fsOpts, rbuf)
	if err != nil {
		return fmt.Errorf("fs setup error: %w", err)
	}
	registerSysVariables(core, fsys, rbuf)

	c, err := fuse.Mount(opts.mountDir, fuse.AllowOther(), fuse.FSName("procfuse"), fuse.Subtype("procfs"))
	if err != nil {
		return fmt.Errorf("fs mount error: %w", err)
	}
	defer c.Close()
	defer fuse.Unmount(opts.mountDir) //nolint:errcheck

	var wg sync.WaitGroup
	errChan := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(errChan)
		if err := fs.Serve(c, fsys); err != nil {
			errChan <- fmt.Errorf("fs serve error: %w", err)
		}
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			kern.Tick()
		}
	}()

	if opts.dashboardAddress != "" {
		dash, err := webserver.NewFSDashboard(fsys, rbuf, Version, kern.BootID.String())
		if err != nil {
			return fmt.Errorf("dashboard setup error: %w", err)
		}
		srv := dash.Serve(opts.dashboardAddress)
		defer srv.Close()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sig {
			rbuf.Println("Signal received, unmounting the filesystem...")

			if err := fuse.Unmount(opts.mountDir); err != nil {
				rbuf.Printf("Unmount error: %v (try again later)\n", err)

				continue
			}

			return
		}
	}()

	sig1 := make(chan os.Signal, 1)
	signal.Notify(sig1, syscall.SIGUSR1)
	go func() {
		for range sig1 {
			rbuf.Println("Signal received, forcing garbage collection...")
			runtime.GC()
			debug.FreeOSMemory()
		}
	}()

	sig2 := make(chan os.Signal, 1)
	signal.Notify(sig2, syscall.SIGUSR2)
	go func() {
		for range sig2 {
			rbuf.Println("Signal received, printing stacktrace (to stderr)...")
			buf := make([]byte, stackTraceBuffer)
			stacklen := runtime.Stack(buf, true)
			os.Stderr.Write(buf[:stacklen])
		}
	}()

	wg.Wait()

	return <-errChan
}
