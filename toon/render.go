package toon

import (
	"fmt"
	"sync"

	"github.com/gogpu/meshpass"
)

// LightStats counts the outcome of one RenderLights call.
type LightStats struct {
	Issued  int
	Culled  int
	Skipped int
}

// Add returns the field-wise sum of s and o.
func (s LightStats) Add(o LightStats) LightStats {
	return LightStats{Issued: s.Issued + o.Issued, Culled: s.Culled + o.Culled, Skipped: s.Skipped + o.Skipped}
}

// RenderLights draws every light of a view additively into scene color, one
// full-screen draw per light. A light whose parameters cannot be assembled
// is skipped with a warning; the remaining lights still render. Lights with
// zero intensity are culled. Only stream failures are returned.
func RenderLights(s meshpass.Stream, in *LightInputs, lights []Light) (LightStats, error) {
	var stats LightStats
	log := meshpass.Logger()

	passes := make([]*LightPass, 0, len(lights))
	for i := range lights {
		if lights[i].Intensity == 0 {
			stats.Culled++
			continue
		}
		p := NewLightPass(lights[i])
		if err := p.Assemble(in); err != nil {
			log.Warn("toon: light skipped", "light", lights[i].Name, "err", err)
			stats.Skipped++
			continue
		}
		passes = append(passes, p)
	}
	if len(passes) == 0 {
		return stats, nil
	}

	// Assemble succeeded, so both target textures exist.
	targets, err := in.Targets()
	if err != nil {
		return stats, err
	}
	if err := s.BeginPass(string(LightPassID), targets); err != nil {
		return stats, fmt.Errorf("toon: lighting begin: %w", err)
	}
	for _, p := range passes {
		if err := p.Bind(s, in.Viewport); err != nil {
			_ = s.EndPass()
			return stats, fmt.Errorf("toon: light %q bind: %w", p.light.Name, err)
		}
		if err := p.Issue(s); err != nil {
			_ = s.EndPass()
			return stats, fmt.Errorf("toon: light %q draw: %w", p.light.Name, err)
		}
		stats.Issued++
	}
	if err := s.EndPass(); err != nil {
		return stats, fmt.Errorf("toon: lighting end: %w", err)
	}
	return stats, nil
}

// LightSource provides the lights and lighting inputs of a view.
type LightSource interface {
	Lights(view meshpass.ViewID) []Light
	LightInputs(view meshpass.ViewID) (LightInputs, bool)
}

// Lighting runs RenderLights after the mesh passes of every view. It
// implements meshpass.ViewPass.
type Lighting struct {
	src LightSource

	mu    sync.Mutex
	stats LightStats
}

// NewLighting creates the lighting view pass.
func NewLighting(src LightSource) *Lighting {
	return &Lighting{src: src}
}

// RenderView implements meshpass.ViewPass. A view without lighting inputs is
// skipped with a warning.
func (l *Lighting) RenderView(s meshpass.Stream, v *meshpass.View) error {
	lights := l.src.Lights(v.ID)
	if len(lights) == 0 {
		return nil
	}
	in, ok := l.src.LightInputs(v.ID)
	if !ok {
		meshpass.Logger().Warn("toon: view has no lighting inputs", "view", v.ID)
		l.add(LightStats{Skipped: len(lights)})
		return nil
	}
	if in.Viewport.Empty() && v.Targets != nil {
		in.Viewport = v.Targets.Viewport
	}
	stats, err := RenderLights(s, &in, lights)
	l.add(stats)
	return err
}

func (l *Lighting) add(s LightStats) {
	l.mu.Lock()
	l.stats = l.stats.Add(s)
	l.mu.Unlock()
}

// Stats returns the accumulated statistics of every rendered view.
func (l *Lighting) Stats() LightStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
