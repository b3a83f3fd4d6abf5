package daemon

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/pomod-sh/pomod/internal/config"
)

// reloadDebounce collapses the burst of filesystem events an editor save
// produces into a single reload.
const reloadDebounce = 250 * time.Millisecond

// ConfigWatcher reloads the daemon configuration when the config file
// changes on disk. It watches the parent directory rather than the file
// itself because most editors save via rename, which invalidates a watch
// on the file path.
type ConfigWatcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	server     *Server
	log        zerolog.Logger

	debounceMu sync.Mutex
	debounce   *time.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
}

// WatchConfig starts watching configPath and pushes validated reloads into
// the server.
func WatchConfig(configPath string, server *Server, log zerolog.Logger) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(configPath)); err != nil {
		w.Close()
		return nil, err
	}

	cw := &ConfigWatcher{
		watcher:    w,
		configPath: configPath,
		server:     server,
		log:        log,
		stopCh:     make(chan struct{}),
	}
	go cw.eventLoop()
	log.Debug().Str("config", configPath).Msg("config watcher started")
	return cw, nil
}

// Close stops the watcher and cancels any pending reload. Safe to call more
// than once.
func (cw *ConfigWatcher) Close() {
	cw.stopOnce.Do(func() {
		close(cw.stopCh)
		cw.watcher.Close()

		cw.debounceMu.Lock()
		if cw.debounce != nil {
			cw.debounce.Stop()
		}
		cw.debounceMu.Unlock()
	})
}

func (cw *ConfigWatcher) eventLoop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Warn().Err(err).Msg("config watcher error")
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *ConfigWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(cw.configPath) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	cw.resetDebounce()
}

func (cw *ConfigWatcher) resetDebounce() {
	cw.debounceMu.Lock()
	defer cw.debounceMu.Unlock()

	if cw.debounce != nil {
		cw.debounce.Reset(reloadDebounce)
		return
	}
	cw.debounce = time.AfterFunc(reloadDebounce, cw.reload)
}

// reload re-reads the config file. A file that fails to load or validate is
// logged and ignored; the daemon keeps its current configuration.
func (cw *ConfigWatcher) reload() {
	select {
	case <-cw.stopCh:
		return
	default:
	}

	cfg, err := config.Load(cw.configPath)
	if err != nil {
		cw.log.Warn().Err(err).Msg("config change ignored")
		return
	}
	cw.log.Info().Str("config", cw.configPath).Msg("config file changed, reloading")
	cw.server.Reload(cfg)
}
