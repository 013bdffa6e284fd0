package worker

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/observability"
)

// Options configures a ProcessPool.
type Options struct {
	// Dir is the working directory of every worker.
	Dir string

	// Entrypoint is the script passed as the last argument to Command.
	Entrypoint string

	// Env is added to the inherited environment.
	Env map[string]string

	// Concurrency is the maximum number of workers (default 4).
	Concurrency int

	// Command is the interpreter invocation (default ["node"]).
	Command []string

	Logger *log.Logger
}

// WithDefaults returns a copy of o with zero fields filled in.
func (o Options) WithDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if len(o.Command) == 0 {
		o.Command = []string{"node"}
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// ProcessPool is a Pool of operating system processes.
type ProcessPool struct {
	opts   Options
	slots  chan struct{}
	idle   chan *process
	logger *log.Logger

	mu     sync.Mutex
	closed bool
}

// NewProcessPool creates a pool. No process is started until the first Run.
func NewProcessPool(opts Options) (*ProcessPool, error) {
	if opts.Dir == "" || opts.Entrypoint == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "worker pool needs a directory and an entrypoint")
	}
	opts = opts.WithDefaults()
	return &ProcessPool{
		opts:   opts,
		slots:  make(chan struct{}, opts.Concurrency),
		idle:   make(chan *process, opts.Concurrency),
		logger: opts.Logger.With("entrypoint", opts.Entrypoint),
	}, nil
}

// Options returns the effective pool options.
func (p *ProcessPool) Options() Options { return p.opts }

// Run implements Pool. req must not contain a newline.
func (p *ProcessPool) Run(ctx context.Context, req []byte) (Operation, error) {
	if bytes.ContainsRune(req, '\n') {
		return nil, errors.New(errors.ErrCodeInvalidInput, "request must be a single line")
	}
	if p.isClosed() {
		return nil, errors.New(errors.ErrCodePoolClosed, "worker pool for %s is closed", p.opts.Entrypoint)
	}

	start := time.Now()
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	observability.Pool().OnAcquire(ctx, p.opts.Entrypoint, time.Since(start))

	if p.isClosed() {
		<-p.slots
		return nil, errors.New(errors.ErrCodePoolClosed, "worker pool for %s is closed", p.opts.Entrypoint)
	}

	proc, err := p.dispatch(ctx, req)
	if err != nil {
		<-p.slots
		return nil, err
	}
	return &operation{pool: p, proc: proc}, nil
}

// dispatch writes req to an idle worker, or to a fresh one if there is none
// or the idle one has gone away.
func (p *ProcessPool) dispatch(ctx context.Context, req []byte) (*process, error) {
	select {
	case proc := <-p.idle:
		if err := proc.send(req); err == nil {
			return proc, nil
		}
		p.logger.Debug("discarding stale worker", "pid", proc.pid())
		proc.kill()
	default:
	}

	proc, err := p.spawn(ctx)
	if err != nil {
		return nil, err
	}
	if err := proc.send(req); err != nil {
		proc.kill()
		return nil, errors.Wrap(errors.ErrCodeWorkerIO, err, "send request to worker")
	}
	return proc, nil
}

func (p *ProcessPool) spawn(ctx context.Context) (*process, error) {
	proc, err := startProcess(p.opts, p.logger)
	observability.Pool().OnSpawn(ctx, p.opts.Entrypoint, err)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeWorkerSpawn, err, "start %s", p.opts.Entrypoint)
	}
	p.logger.Debug("started worker", "pid", proc.pid())
	return proc, nil
}

// release returns proc to the idle set, or kills it.
func (p *ProcessPool) release(proc *process, reusable bool) {
	reused := false
	if reusable && !p.isClosed() {
		select {
		case p.idle <- proc:
			reused = true
		default:
		}
	}
	if !reused {
		proc.kill()
	}
	observability.Pool().OnRelease(context.Background(), p.opts.Entrypoint, reused)
	<-p.slots
}

func (p *ProcessPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close kills idle workers. Busy workers are killed when their operation
// is closed.
func (p *ProcessPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case proc := <-p.idle:
			proc.kill()
		default:
			return nil
		}
	}
}

// operation borrows one worker for one exchange.
type operation struct {
	pool *ProcessPool
	proc *process

	once     sync.Once
	read     bool
	reusable bool
}

func (o *operation) ReadLines() ([]string, error) {
	lines, clean, err := o.proc.readResponse()
	o.read = true
	o.reusable = clean && err == nil
	if err != nil {
		return lines, errors.Wrap(errors.ErrCodeWorkerIO, err, "read worker response")
	}
	return lines, nil
}

func (o *operation) Close() error {
	o.once.Do(func() {
		o.pool.release(o.proc, o.read && o.reusable)
	})
	return nil
}

// process is one running worker.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *os.File
	stdout *bufio.Reader
	done   chan struct{}
}

func startProcess(opts Options, logger *log.Logger) (*process, error) {
	args := append(slices.Clone(opts.Command[1:]), opts.Entrypoint)
	cmd := exec.Command(opts.Command[0], args...)
	cmd.Dir = opts.Dir
	cmd.Env = os.Environ()
	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		cmd.Env = append(cmd.Env, k+"="+opts.Env[k])
	}
	cmd.Stderr = &logWriter{logger: logger}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	// A plain pipe rather than StdoutPipe: Wait must not close the read end
	// while a crashed worker's last lines are still buffered.
	stdout, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = w
	if err := cmd.Start(); err != nil {
		stdout.Close()
		w.Close()
		return nil, err
	}
	w.Close()

	proc := &process{cmd: cmd, stdin: stdin, out: stdout, stdout: bufio.NewReader(stdout), done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(proc.done)
	}()
	return proc, nil
}

func (p *process) pid() int { return p.cmd.Process.Pid }

func (p *process) send(req []byte) error {
	select {
	case <-p.done:
		return io.ErrClosedPipe
	default:
	}
	msg := make([]byte, 0, len(req)+1)
	msg = append(append(msg, req...), '\n')
	_, err := p.stdin.Write(msg)
	return err
}

// readResponse reads lines up to an empty line (clean = true) or the end of
// the stream (clean = false).
func (p *process) readResponse() (lines []string, clean bool, err error) {
	lines = []string{}
	for {
		line, err := p.stdout.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if err == io.EOF {
			if line != "" {
				lines = append(lines, line)
			}
			return lines, false, nil
		}
		if err != nil {
			return lines, false, err
		}
		if line == "" {
			return lines, true, nil
		}
		lines = append(lines, line)
	}
}

func (p *process) kill() {
	_ = p.stdin.Close()
	_ = p.cmd.Process.Kill()
	<-p.done
	_ = p.out.Close()
}

// logWriter forwards worker stderr to the logger line by line.
type logWriter struct {
	logger *log.Logger
	mu     sync.Mutex
	buf    []byte
}

func (w *logWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logger.Debug("worker stderr", "line", string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(b), nil
}
