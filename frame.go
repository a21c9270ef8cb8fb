package meshpass

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/meshpass/internal/parallel"
)

// SceneQuery yields the drawable items of a pass for one view. The returned
// slice is read, never retained or modified.
type SceneQuery interface {
	Items(pass PassID, view ViewID) []DrawableItem
}

// View is one camera of a frame with the stream and targets it renders to.
type View struct {
	ID      ViewID
	Stream  Stream
	Targets *RenderTargetSet

	// Params are per-view shader constants bound ahead of the bindings of
	// every mesh pass command.
	Params Bindings

	// Hidden views are skipped entirely.
	Hidden bool
}

// ViewPass runs after the mesh passes of a view, for example the per-light
// lighting pass. Only stream failures are returned; anything recoverable is
// logged and skipped by the implementation.
type ViewPass interface {
	RenderView(stream Stream, view *View) error
}

// PassReport is the outcome of one pass in one view.
type PassReport struct {
	Pass      PassID
	Processor ProcessorStats
	Exec      ExecStats
	Err       error
}

// ViewReport is the outcome of one view.
type ViewReport struct {
	View     ViewID
	Skipped  bool
	Passes   []PassReport
	LightErr error
}

// FrameReport is the outcome of a frame.
type FrameReport struct {
	Frame uint64
	Views []ViewReport
}

// Processed returns the summed processor statistics of every pass and view.
func (r *FrameReport) Processed() ProcessorStats {
	var s ProcessorStats
	for _, v := range r.Views {
		for _, p := range v.Passes {
			s = s.Add(p.Processor)
		}
	}
	return s
}

// Frame drives the registered passes over a scene, frame after frame.
//
// Views render concurrently, each on its own stream. Within a view the
// passes run in registration order; items of a pass are classified by the
// worker pool into per-chunk buckets, merged, finalized and executed.
type Frame struct {
	reg      *Registry
	pool     *parallel.WorkerPool
	post     []ViewPass
	frameNum atomic.Uint64
}

// NewFrame creates a frame driver for reg. Call Close to release its workers.
func NewFrame(reg *Registry, post ...ViewPass) *Frame {
	return &Frame{
		reg:  reg,
		pool: parallel.NewWorkerPool(reg.opts.workers),
		post: post,
	}
}

// Close stops the worker pool.
func (f *Frame) Close() { f.pool.Close() }

// Run renders one frame. Rejected items, failed bindings and failed passes
// are reported in the FrameReport and never abort the frame. Only protocol
// violations and context cancellation are returned as errors.
func (f *Frame) Run(ctx context.Context, q SceneQuery, views []View) (*FrameReport, error) {
	num := f.frameNum.Add(1)
	report := &FrameReport{Frame: num, Views: make([]ViewReport, len(views))}
	passes := f.reg.Passes()

	g, ctx := errgroup.WithContext(ctx)
	for i := range views {
		view := &views[i]
		vr := &report.Views[i]
		vr.View = view.ID
		if view.Hidden {
			vr.Skipped = true
			continue
		}
		g.Go(func() error {
			return f.runView(ctx, q, view, passes, num, vr)
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

func (f *Frame) runView(ctx context.Context, q SceneQuery, view *View, passes []PassID, num uint64, vr *ViewReport) error {
	if view.Stream == nil {
		return fmt.Errorf("view %d: %w: %w", view.ID, ErrProtocolViolation, ErrNoStream)
	}
	log := f.reg.opts.log()

	for _, pass := range passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		pr := f.runPass(q, view, pass, num)
		vr.Passes = append(vr.Passes, pr)
		if pr.Err == nil {
			continue
		}
		if errors.Is(pr.Err, ErrProtocolViolation) {
			return pr.Err
		}
		log.Warn("meshpass: pass failed", "pass", pass, "view", view.ID, "err", pr.Err)
	}

	for _, p := range f.post {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.RenderView(view.Stream, view); err != nil {
			vr.LightErr = err
			log.Warn("meshpass: view pass failed", "view", view.ID, "err", err)
		}
	}
	return nil
}

func (f *Frame) runPass(q SceneQuery, view *View, pass PassID, num uint64) PassReport {
	pr := PassReport{Pass: pass}
	builder := NewDrawCommandBuilder(pass, view.ID, num)
	proc, err := f.reg.NewProcessor(pass, builder)
	if err != nil {
		pr.Err = err
		return pr
	}

	items := q.Items(pass, view.ID)
	chunks := f.pool.Chunks(len(items))
	buckets := make([]*CommandBucket, chunks)
	procs := make([]*PassProcessor, chunks)
	errs := make([]error, chunks)
	for c := range chunks {
		buckets[c] = NewCommandBucket(len(items)/chunks + 1)
		procs[c] = proc.WithSink(buckets[c])
	}

	f.pool.ForEachChunk(len(items), func(c, lo, hi int) {
		for _, it := range items[lo:hi] {
			if err := procs[c].Submit(it); err != nil {
				errs[c] = err
				return
			}
		}
	})

	for c := range chunks {
		pr.Processor = pr.Processor.Add(procs[c].Stats())
		if err := builder.Merge(buckets[c]); err != nil {
			errs[c] = err
		}
	}
	if err := errors.Join(errs...); err != nil {
		pr.Err = err
		return pr
	}

	list, err := builder.Finalize()
	if err != nil {
		pr.Err = err
		return pr
	}
	exec, err := f.reg.NewExecutor(pass)
	if err != nil {
		pr.Err = err
		return pr
	}
	if view.Params.Len() > 0 {
		exec.binder = ViewBinder{View: view.Params, Next: exec.binder}
	}
	pr.Err = exec.Execute(view.Stream, list, view.Targets)
	pr.Exec = exec.LastStats()
	return pr
}
