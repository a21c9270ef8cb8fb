package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gputypes"
)

// Enumerations are looked up by their gputypes String names, ignoring case.

var formats = sync.OnceValue(func() map[string]gputypes.TextureFormat {
	m := make(map[string]gputypes.TextureFormat)
	for f := gputypes.TextureFormat(1); f < 0x100; f++ {
		if name := f.String(); name != "Unknown" && name != "" {
			m[strings.ToLower(name)] = f
		}
	}
	return m
})

// ParseTextureFormat returns the texture format with the given name, for
// example "RGBA8Unorm" or "depth32float".
func ParseTextureFormat(name string) (gputypes.TextureFormat, error) {
	if f, ok := formats()[strings.ToLower(name)]; ok {
		return f, nil
	}
	return gputypes.TextureFormatUndefined, fmt.Errorf("%w: unknown texture format %q", ErrInvalid, name)
}

// ParseCompare returns the depth compare function with the given name.
// An empty name is CompareFunctionUndefined.
func ParseCompare(name string) (gputypes.CompareFunction, error) {
	if name == "" {
		return gputypes.CompareFunctionUndefined, nil
	}
	for f := gputypes.CompareFunctionNever; f <= gputypes.CompareFunctionAlways; f++ {
		if strings.EqualFold(f.String(), name) {
			return f, nil
		}
	}
	return gputypes.CompareFunctionUndefined, fmt.Errorf("%w: unknown compare function %q", ErrInvalid, name)
}

// ParseLoadOp returns the load operation with the given name. An empty name
// is LoadOpUndefined, which lets the stream choose.
func ParseLoadOp(name string) (gputypes.LoadOp, error) {
	switch strings.ToLower(name) {
	case "", "undefined":
		return gputypes.LoadOpUndefined, nil
	case "load":
		return gputypes.LoadOpLoad, nil
	case "clear":
		return gputypes.LoadOpClear, nil
	}
	return gputypes.LoadOpUndefined, fmt.Errorf("%w: unknown load op %q", ErrInvalid, name)
}
