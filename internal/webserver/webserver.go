// Package webserver implements the diagnostics server.
package webserver

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"sync/atomic"
	"text/template"

	"github.com/Abraao-Filho/serenity/internal/fusefs"
	"github.com/Abraao-Filho/serenity/internal/logging"
	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
)

var (
	//go:embed templates/*.html
	templateFS    embed.FS
	indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

	// errInvalidArgument is for an invalid constructor argument.
	errInvalidArgument = errors.New("invalid argument")
)

// FSDashboard is the implementation of the filesystem dashboard.
type FSDashboard struct {
	version string
	bootID  string
	fsys    *fusefs.FS
	rbuf    *logging.RingBuffer
}

// NewFSDashboard returns a pointer to a new [FSDashboard].
func NewFSDashboard(fsys *fusefs.FS, rbuf *logging.RingBuffer, version, bootID string) (*FSDashboard, error) {
	if fsys == nil {
		return nil, fmt.Errorf("%w: need filesystem", errInvalidArgument)
	}
	if rbuf == nil {
		return nil, fmt.Errorf("%w: need ring buffer", errInvalidArgument)
	}

	return &FSDashboard{
		version: version,
		bootID:  bootID,
		fsys:    fsys,
		rbuf:    rbuf,
	}, nil
}

// Serve serves the diagnostics dashboard as part of a [http.Server].
func (d *FSDashboard) Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: d.dashboardMux()}

	go func() {
		defer func() {
			r := recover()
			if r != nil {
				fmt.Fprintf(os.Stderr, "(webserver) PANIC: %v\n", r)
				debug.PrintStack()
			}
		}()
		d.rbuf.Printf("serving dashboard on %s\n", addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.rbuf.Printf("HTTP error: %v\n", err)
		}
	}()

	return srv
}

func (d *FSDashboard) dashboardMux() *mux.Router {
	mux := mux.NewRouter()

	mux.HandleFunc("/", d.dashboardHandler)
	mux.HandleFunc("/metrics.json", d.metricsHandler)
	mux.HandleFunc("/gc", d.gcHandler)
	mux.HandleFunc("/reset", d.resetMetricsHandler)

	mux.HandleFunc("/set/trace-reads/{value}",
		d.booleanHandler("Read tracing", &d.fsys.Options.TraceReads))
	mux.HandleFunc("/sys/{name}/{value}", d.sysVariableHandler)

	return mux
}

type fsDashboardData struct {
	AllocBytes     string   `json:"allocBytes"`
	BootID         string   `json:"bootId"`
	CachedInodes   int      `json:"cachedInodes"`
	FDLimit        uint64   `json:"fdLimit"`
	Logs           []string `json:"logs"`
	NumGC          uint32   `json:"numGc"`
	RingBufferSize int      `json:"ringBufferSize"`
	StrictCache    string   `json:"strictCache"`
	SysBytes       string   `json:"sysBytes"`
	TotalAlloc     string   `json:"totalAlloc"`
	TotalErrors    int64    `json:"totalErrors"`
	TotalLookups   int64    `json:"totalLookups"`
	TotalReadBytes string   `json:"totalReadBytes"`
	TotalReaddirs  int64    `json:"totalReaddirs"`
	TotalReads     int64    `json:"totalReads"`
	TotalWrites    int64    `json:"totalWrites"`
	TraceReads     string   `json:"traceReads"`
	Uptime         string   `json:"uptime"`
	Version        string   `json:"version"`
}

func (d *FSDashboard) collectMetrics() fsDashboardData {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	lines := d.rbuf.Lines()
	slices.Reverse(lines)

	return fsDashboardData{
		AllocBytes:     humanize.IBytes(m.Alloc),
		BootID:         d.bootID,
		CachedInodes:   d.fsys.Core.CachedInodeCount(),
		FDLimit:        fdLimit(),
		Logs:           lines,
		NumGC:          m.NumGC,
		RingBufferSize: d.rbuf.Size(),
		StrictCache:    enabledOrDisabled(d.fsys.Options.StrictCache),
		SysBytes:       humanize.IBytes(m.Sys),
		TotalAlloc:     humanize.IBytes(m.TotalAlloc),
		TotalErrors:    d.fsys.Metrics.TotalErrors.Load(),
		TotalLookups:   d.fsys.Metrics.TotalLookups.Load(),
		TotalReadBytes: humanize.IBytes(uint64(d.fsys.Metrics.TotalReadBytes.Load())),
		TotalReaddirs:  d.fsys.Metrics.TotalReaddirs.Load(),
		TotalReads:     d.fsys.Metrics.TotalReads.Load(),
		TotalWrites:    d.fsys.Metrics.TotalWrites.Load(),
		TraceReads:     enabledOrDisabled(d.fsys.Options.TraceReads.Load()),
		Uptime:         humanize.Time(d.fsys.Core.MountEpoch()),
		Version:        d.version,
	}
}

func (d *FSDashboard) dashboardHandler(w http.ResponseWriter, _ *http.Request) {
	data := d.collectMetrics()

	if err := indexTemplate.Execute(w, data); err != nil {
		d.rbuf.Printf("HTTP template execution error: %v\n", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *FSDashboard) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	data := d.collectMetrics()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *FSDashboard) gcHandler(w http.ResponseWriter, _ *http.Request) {
	runtime.GC()
	debug.FreeOSMemory()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	d.rbuf.Printf("GC forced via API, current heap: %s.\n", humanize.IBytes(m.Alloc))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "GC forced, current heap: %s.\n", humanize.IBytes(m.Alloc))
}

func (d *FSDashboard) resetMetricsHandler(w http.ResponseWriter, _ *http.Request) {
	d.fsys.Metrics.TotalLookups.Store(0)
	d.fsys.Metrics.TotalReaddirs.Store(0)
	d.fsys.Metrics.TotalReads.Store(0)
	d.fsys.Metrics.TotalReadBytes.Store(0)
	d.fsys.Metrics.TotalWrites.Store(0)
	d.fsys.Metrics.TotalErrors.Store(0)

	d.rbuf.Println("Metrics reset via API.")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Metrics reset.")
}

// sysVariableHandler writes a registered kernel variable through the
// same write path a mounted consumer uses, so API toggles and writes
// to the mounted file under /sys are indistinguishable.
func (d *FSDashboard) sysVariableHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	val, err := strconv.ParseBool(vars["value"])
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid boolean value: %v", err), http.StatusBadRequest)

		return
	}

	core := d.fsys.Core

	sysDir, ok := core.Lookup(core.RootID(), "sys")
	if !ok {
		http.Error(w, "Variable directory is missing.", http.StatusInternalServerError)

		return
	}

	id, ok := core.Lookup(sysDir, vars["name"])
	if !ok {
		http.Error(w, "No such kernel variable.", http.StatusNotFound)

		return
	}

	payload := []byte("0")
	if val {
		payload = []byte("1")
	}
	if _, err := core.WriteAt(id, payload, 0); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)

		return
	}

	d.rbuf.Printf("Kernel variable %q set via API: %t.\n", vars["name"], val)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Kernel variable %q set: %t.\n", vars["name"], val)
}

func (d *FSDashboard) booleanHandler(desc string, target *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		val, err := strconv.ParseBool(vars["value"])
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid boolean value: %v", err), http.StatusBadRequest)

			return
		}
		target.Store(val)

		d.rbuf.Printf("%s set via API: %t.\n", desc, val)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "%s set: %t.\n", desc, val)
	}
}
