package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// FormCompiler promotes hot lambda forms to compiled code. Forms crossing
// the invocation threshold are compiled either inline or, when background
// compilation is enabled, on a worker goroutine fed by a bounded queue.
// A full queue drops the request; the form stays interpreted and asks again
// on a later invocation.
type FormCompiler struct {
	// Compilation queue for background processing
	pending chan *LambdaForm
	done    chan struct{}

	mu      sync.Mutex
	running bool

	background atomic.Bool

	// Statistics
	formsCompiled   atomic.Uint64
	fastPaths       atomic.Uint64
	dropped         atomic.Uint64
	compilationTime atomic.Uint64 // nanoseconds
}

// DefaultQueueSize is the capacity of the background compilation queue.
const DefaultQueueSize = 128

// formCompiler is the process-wide compiler used by every form.
var formCompiler = NewFormCompiler(DefaultQueueSize)

// NewFormCompiler creates a compiler with the given queue capacity. The
// background worker starts on the first queued request.
func NewFormCompiler(queue int) *FormCompiler {
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	return &FormCompiler{
		pending: make(chan *LambdaForm, queue),
		done:    make(chan struct{}),
	}
}

// Forms returns the process-wide form compiler.
func Forms() *FormCompiler { return formCompiler }

// SetBackground switches between inline and background compilation.
func (fc *FormCompiler) SetBackground(on bool) {
	fc.background.Store(on)
}

// Background reports whether requests are queued for the worker.
func (fc *FormCompiler) Background() bool { return fc.background.Load() }

// request asks for f to be compiled.
func (fc *FormCompiler) request(f *LambdaForm) {
	if f.IsCompiled() {
		return
	}
	if !fc.background.Load() {
		fc.compile(f)
		return
	}
	if !f.queued.CompareAndSwap(false, true) {
		return
	}
	fc.ensureWorker()
	select {
	case fc.pending <- f:
	default:
		// Queue full, skip this one
		f.queued.Store(false)
		fc.dropped.Add(1)
	}
}

// CompileNow compiles forms synchronously, regardless of thresholds. It is
// used for the boot list and for ahead-of-time installation.
func (fc *FormCompiler) CompileNow(forms ...*LambdaForm) {
	for _, f := range forms {
		fc.compile(f)
	}
}

func (fc *FormCompiler) compile(f *LambdaForm) {
	start := time.Now()
	installed, fast := f.compileOnce()
	if !installed {
		return
	}
	fc.formsCompiled.Add(1)
	if fast {
		fc.fastPaths.Add(1)
	}
	fc.compilationTime.Add(uint64(time.Since(start)))
}

func (fc *FormCompiler) ensureWorker() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.running {
		return
	}
	fc.running = true
	go fc.compilationWorker(fc.done)
}

// compilationWorker processes the compilation queue in the background.
func (fc *FormCompiler) compilationWorker(done <-chan struct{}) {
	for {
		select {
		case f := <-fc.pending:
			fc.compile(f)
			f.queued.Store(false)
		case <-done:
			return
		}
	}
}

// Flush compiles everything currently queued on the calling goroutine.
func (fc *FormCompiler) Flush() {
	for {
		select {
		case f := <-fc.pending:
			fc.compile(f)
			f.queued.Store(false)
		default:
			return
		}
	}
}

// Stop stops the background compilation worker. Pending requests are
// discarded.
func (fc *FormCompiler) Stop() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.running {
		close(fc.done)
		fc.running = false
		fc.done = make(chan struct{})
	}
}

// CompilerStats holds form compiler statistics.
type CompilerStats struct {
	FormsCompiled   uint64
	FastPaths       uint64
	Dropped         uint64
	CompilationTime time.Duration
	QueueLength     int
}

// Stats returns form compiler statistics.
func (fc *FormCompiler) Stats() CompilerStats {
	return CompilerStats{
		FormsCompiled:   fc.formsCompiled.Load(),
		FastPaths:       fc.fastPaths.Load(),
		Dropped:         fc.dropped.Load(),
		CompilationTime: time.Duration(fc.compilationTime.Load()),
		QueueLength:     len(fc.pending),
	}
}
