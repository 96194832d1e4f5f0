// Package backends defines the interface an accelerator (device) needs to implement to hold the device side
// of a syncmem.SyncMem.
//
// A backend only deals with raw device memory: allocating and freeing buffers of a given number of bytes, and
// transferring bytes between host memory (Go slices) and the device. It knows nothing about coherence, which is
// handled by package syncmem, or about element types, handled by package syncdata.
//
// Backends register themselves by name (usually during package initialization) and are created from a
// configuration string, see New and NewWithConfig.
// Import github.com/gomlx/syncmem/backends/default to register all backends available in the platform.
//
// Unlike SyncMem itself, backends are safe for concurrent use: many independent cells share the same backend.
package backends

import (
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Backend is the API that needs to be implemented by a device backend.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "simplego".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// DataInterface is the sub-interface that defines the API to allocate Buffer and transfer data to/from it.
	DataInterface

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	// Buffers still allocated become invalid as well.
	Finalize()

	// IsFinalized returns true if the backend is finalized.
	IsFinalized() bool
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registryMu             sync.Mutex
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List the names of the registered backends, sorted.
func List() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the name of the default backend configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// SYNCMEM_BACKEND is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "simplego") and
// "<backend_configuration>" is backend specific (e.g.: "limit=64MiB" for simplego).
const SYNCMEM_BACKEND = "SYNCMEM_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment SYNCMEM_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
//
// It returns an error if no backend was registered.
func New() (Backend, error) {
	config, found := os.LookupEnv(SYNCMEM_BACKEND)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// MustNew returns a new default Backend or panics if it fails.
//
// See New for details.
func MustNew() Backend {
	backend, err := New()
	if err != nil {
		exceptions.Panicf("backends.MustNew(): %+v", err)
	}
	return backend
}

// NewWithConfig takes a configurations string formated as "<backend_name>:<backend_configuration>".
//
// The "<backend_name>" is the name of a registered backend (e.g.: "simplego") and
// "<backend_configuration>" is backend specific. If the name is empty, the backend named in DefaultConfig is used,
// or the first registered backend if DefaultConfig is not set.
func NewWithConfig(config string) (Backend, error) {
	registryMu.Lock()
	if len(registeredConstructors) == 0 {
		registryMu.Unlock()
		return nil, errors.New(`no registered backends for syncmem -- maybe import the default ones with ` +
			`import _ "github.com/gomlx/syncmem/backends/default"?`)
	}
	backendName := firstRegistered
	if name, _, _ := strings.Cut(DefaultConfig, ":"); name != "" {
		backendName = name
	}
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		if idx > 0 {
			backendName = config[:idx]
		}
		backendConfig = config[idx+1:]
	} else if config != "" {
		backendName = config
		backendConfig = ""
	}
	constructor, found := registeredConstructors[backendName]
	registryMu.Unlock()
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given, registered backends: %q",
			backendName, config, List())
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create backend %q with configuration %q", backendName, backendConfig)
	}
	klog.V(1).Infof("syncmem: created backend %s", backend.Description())
	return backend, nil
}
