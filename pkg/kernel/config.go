package kernel

import (
	"os"

	"github.com/BurntSushi/toml"
)

// ReapPolicy selects how a thread whose refcount has reached zero gets
// destroyed. original_source's thread.c describes destruction-on-
// refcount-zero two ways — immediate inline reaping and a background
// autoreaper thread — so this is left as a pluggable policy rather than
// picking one; Config.ReapPolicy is that choice.
type ReapPolicy int

const (
	// ReapImmediate destroys a thread inline, as soon as its refcount
	// reaches zero (in Join, or in Exit for a detached thread). This is
	// the default: it keeps the common case — a parent joining a child
	// it's about to forget about — simple, corresponding to the inline
	// option in thread_detach's comment ("the following code can be
	// enabled if you want to reap immediately").
	ReapImmediate ReapPolicy = iota

	// ReapAutoreaper defers destruction to a background goroutine (see
	// autoreaper.go) that destroys zero-refcount exited threads one at a
	// time as they are handed to it, matching the original's autoreaper
	// thread option.
	ReapAutoreaper
)

// Config holds the tunables original_source fixes as constants, plus
// the policy choices left open above.
type Config struct {
	// TLSMaxKeys is the fixed size of the TLS slot table.
	TLSMaxKeys int `toml:"tls_max_keys"`

	// MinDestructIterations bounds the number of TLS-destructor scan
	// passes Exit runs (MIN_DESTRUCT_ITER).
	MinDestructIterations int `toml:"min_destruct_iterations"`

	// MaxNameLen bounds a thread's human name (MAX_NAME_LEN).
	MaxNameLen int `toml:"max_name_len"`

	// DefaultStackBytes is used when Create is asked for stack_bytes ==
	// 0 ("default PAGE_SIZE if stack_bytes == 0").
	DefaultStackBytes int `toml:"default_stack_bytes"`

	// StackCloneDepth is the STACK_CLONE_DEPTH tunable (caller frames to
	// clone on fork). It is loaded and stored but nothing reads it:
	// ForkCurrent clones a Context, not raw stack frames, so no frame
	// count applies.
	StackCloneDepth int `toml:"stack_clone_depth"`

	// ReapPolicy selects immediate or autoreaper-driven destruction.
	ReapPolicy ReapPolicy `toml:"-"`
}

// DefaultConfig returns the tunables used when no config file is given,
// matching the constants implied by original_source's
// thread.c (TLS_MAX_KEYS, MAX_NAME_LEN, PAGE_SIZE, MIN_DESTRUCT_ITER).
func DefaultConfig() Config {
	return Config{
		TLSMaxKeys:            64,
		MinDestructIterations: 4,
		MaxNameLen:            32,
		DefaultStackBytes:     4096,
		StackCloneDepth:       1,
		ReapPolicy:            ReapImmediate,
	}
}

// LoadConfig reads tunables from a TOML file at path, starting from
// DefaultConfig for any field the file omits. Used by cmd/threadctl's
// -config flag, the same way runsc's Config is populated from flags and
// an optional file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
