package toon

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/gogpu/naga"
)

//go:embed shaders/outline.wgsl
var outlineShaderWGSL string

//go:embed shaders/shaded.wgsl
var shadedShaderWGSL string

//go:embed shaders/light.wgsl
var lightShaderWGSL string

// Shader module names. Every module has a vs_main and an fs_main entry point.
const (
	OutlineShader = "toon/outline"
	ShadedShader  = "toon/shaded"
	LightShader   = "toon/light"
)

// Entry points shared by every built-in shader.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

var sources = map[string]string{
	OutlineShader: outlineShaderWGSL,
	ShadedShader:  shadedShaderWGSL,
	LightShader:   lightShaderWGSL,
}

// Source returns the WGSL source of a built-in shader module.
func Source(name string) (string, bool) {
	src, ok := sources[name]
	return src, ok
}

// ShaderNames returns the names of all built-in shader modules.
func ShaderNames() []string {
	return []string{OutlineShader, ShadedShader, LightShader}
}

// CompileToSPIRV compiles WGSL source to SPIR-V words.
func CompileToSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("toon: compile shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("toon: SPIR-V length %d not a multiple of 4", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}

var (
	compileOnce sync.Once
	compiled    map[string][]uint32
	compileErr  error
)

// CompiledShaders compiles every built-in module once and returns the SPIR-V
// keyed by module name.
func CompiledShaders() (map[string][]uint32, error) {
	compileOnce.Do(func() {
		out := make(map[string][]uint32, len(sources))
		for _, name := range ShaderNames() {
			code, err := CompileToSPIRV(sources[name])
			if err != nil {
				compileErr = fmt.Errorf("%s: %w", name, err)
				return
			}
			out[name] = code
		}
		compiled = out
	})
	return compiled, compileErr
}
