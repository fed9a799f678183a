package webdav

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/webdav"

	"ephys-cam/pkg/utils"
)

// Webdav exposes the recording output directories read-write over WebDAV so
// that videos can be pulled off the acquisition machine. Every mount is served
// under /<name>/.
type Webdav struct {
	lock   sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	port   int
	mounts map[string]string
}

func New(ctx context.Context, port int, mounts map[string]string) *Webdav {
	return &Webdav{
		ctx:    ctx,
		port:   port,
		mounts: mounts,
	}
}

func (w *Webdav) Start() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.cancel != nil {
		return
	}
	newCtx, cancel := context.WithCancel(w.ctx)
	w.cancel = cancel
	Serve(newCtx, w.port, w.mounts)
}

func (w *Webdav) Stop() {
	w.lock.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.lock.Unlock()
}

func (w *Webdav) Running() bool {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.cancel != nil
}

func (w *Webdav) Port() int {
	return w.port
}

// Handler builds the WebDAV handler for the given mounts without starting a
// server.
func Handler(mounts map[string]string) http.Handler {
	logger := utils.GetLogger()
	mux := http.NewServeMux()

	names := make([]string, 0, len(mounts))
	for name := range mounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prefix := path.Join("/", strings.Trim(name, "/"))
		mux.Handle(prefix+"/", &webdav.Handler{
			Prefix:     prefix,
			FileSystem: webdav.Dir(mounts[name]),
			LockSystem: webdav.NewMemLS(),
			Logger: func(r *http.Request, err error) {
				if err != nil {
					logger.Errorf("WEBDAV [%s]: %s, err: %s", r.Method, r.URL, err)
				}
			},
		})
	}

	return mux
}

func Serve(ctx context.Context, port int, mounts map[string]string) {
	logger := utils.GetLogger()

	svr := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: Handler(mounts),
	}

	go func() {
		if err := svr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("webdav server err: %s", err)
		}
	}()
	go func() {
		<-ctx.Done()
		srcCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svr.Shutdown(srcCtx); err != nil {
			logger.Errorf("shutdown webdav server err: %s", err)
		}
	}()
}
