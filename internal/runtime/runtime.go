// Package runtime assembles the accessor cache, marker router, entry
// factory, and persistence store into one object with a single lifecycle.
// Most programs build a Runtime, load their modules into it, and close it
// on shutdown; the pieces remain individually usable for embedders that
// need finer control.
package runtime

import (
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/JMC2002/JmcModLib-sub001/internal/accessor"
	"github.com/JMC2002/JmcModLib-sub001/internal/entry"
	"github.com/JMC2002/JmcModLib-sub001/internal/log"
	"github.com/JMC2002/JmcModLib-sub001/internal/luadecl"
	"github.com/JMC2002/JmcModLib-sub001/internal/marker"
	"github.com/JMC2002/JmcModLib-sub001/internal/module"
	"github.com/JMC2002/JmcModLib-sub001/internal/router"
	"github.com/JMC2002/JmcModLib-sub001/internal/store"
)

// Runtime bundles the library's services behind one lifecycle.
type Runtime struct {
	opts    Options
	log     *log.Logger
	cache   *accessor.Cache
	router  *router.Router
	factory *entry.Factory
	store   store.Store
	watcher *store.Watcher

	mu        sync.Mutex
	modules   map[string]*module.Module
	manifests map[string]*luadecl.Manifest
	closed    bool
}

// New builds a Runtime from options. The factory is registered on the
// router for config markers, so scanning a module materializes its entries.
func New(opts Options) (*Runtime, error) {
	log.SetLevel(opts.LogLevel)
	log.SetStrict(opts.Strict)

	var st store.Store
	switch opts.StoreFormat {
	case "", "json":
		st = store.NewJSONStore(opts.StorePath)
	case "toml":
		st = store.NewTOMLStore(opts.StorePath)
	default:
		return nil, oops.With("format", opts.StoreFormat).
			Wrapf(accessor.ErrArgument, "unknown store format")
	}

	cache := accessor.NewCache()
	rt := &Runtime{
		opts:      opts,
		log:       log.New("runtime"),
		cache:     cache,
		router:    router.New(cache),
		factory:   entry.NewFactory(cache, st),
		store:     st,
		modules:   make(map[string]*module.Module),
		manifests: make(map[string]*luadecl.Manifest),
	}
	if err := rt.router.RegisterHandler(marker.KindConfig, rt.factory); err != nil {
		return nil, err
	}

	if opts.WatchStore {
		w, err := store.NewWatcher(opts.StorePath, rt.onStoreChanged)
		if err != nil {
			return nil, oops.With("path", opts.StorePath).Wrapf(err, "watch store")
		}
		rt.watcher = w
	}
	return rt, nil
}

// onStoreChanged is the file-watcher callback: re-read the on-disk document
// so external edits become visible, then reconcile every live entry against
// it. A reload failure keeps the current document; entries then reconcile
// against unchanged state, which is a no-op.
func (r *Runtime) onStoreChanged() {
	if rl, ok := r.store.(store.Reloader); ok {
		if err := rl.Reload(); err != nil {
			r.log.WithError(err).Warn("store reload failed, skipping sync")
			return
		}
	}
	r.factory.SyncAllFromFile()
}

// Cache returns the runtime's accessor cache.
func (r *Runtime) Cache() *accessor.Cache { return r.cache }

// Router returns the runtime's marker router.
func (r *Runtime) Router() *router.Router { return r.router }

// Factory returns the runtime's entry factory.
func (r *Runtime) Factory() *entry.Factory { return r.factory }

// Store returns the runtime's persistence store.
func (r *Runtime) Store() store.Store { return r.store }

// LoadModule scans a module, materializing entries for its config markers.
// Loading an already-loaded module is a logged no-op.
func (r *Runtime) LoadModule(mod *module.Module) {
	if mod == nil {
		r.log.Fatal("LoadModule: nil module")
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.WithField("module", mod.Name()).Warn("runtime closed, ignoring load")
		return
	}
	r.modules[mod.Name()] = mod
	r.mu.Unlock()

	r.router.ScanModule(mod)
}

// LoadManifest runs a Lua manifest under the given module name, registering
// the entries it declares. The runtime owns the manifest's Lua state and
// closes it when the module unloads.
func (r *Runtime) LoadManifest(moduleName, path string) error {
	m, err := luadecl.Load(r.factory, moduleName, path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if prev, ok := r.manifests[moduleName]; ok {
		prev.Close()
	}
	r.manifests[moduleName] = m
	r.mu.Unlock()
	return nil
}

// UnloadModule reverses a prior load: handlers revert their work, holder
// bindings drop, and any Lua manifest under the name closes. Returns false
// when the name was never loaded.
func (r *Runtime) UnloadModule(name string) bool {
	r.mu.Lock()
	mod, ok := r.modules[name]
	delete(r.modules, name)
	manifest := r.manifests[name]
	delete(r.manifests, name)
	r.mu.Unlock()

	if manifest != nil {
		manifest.Close()
	}
	if !ok {
		return false
	}
	r.router.UnscanModule(mod)
	return true
}

// Close unloads every module in reverse load-name order, flushes the store,
// and stops the file watcher. Safe to call once; later calls return nil.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, name := range names {
		r.UnloadModule(name)
	}

	err := r.store.Flush()
	if r.watcher != nil {
		if cerr := r.watcher.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return oops.Wrapf(err, "close runtime")
	}
	return nil
}
