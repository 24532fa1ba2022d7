// Package manager owns the loaded graphs and their instances and runs the
// per-frame evaluation on a pool of worker threads.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/AaronLay10/animgraph/internal/animgraph"
	"github.com/AaronLay10/animgraph/internal/motion"
	"github.com/AaronLay10/animgraph/internal/observability"
	"github.com/AaronLay10/animgraph/internal/pool"
	"github.com/AaronLay10/animgraph/internal/pose"
)

var (
	ErrGraphExists      = errors.New("graph already registered")
	ErrGraphNotFound    = errors.New("graph not found")
	ErrInstanceExists   = errors.New("instance already exists")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrThreadMismatch   = errors.New("leader and follower run on different threads")
)

// Asset is a registered graph together with the skeleton and motions its
// instances are created with.
type Asset struct {
	Name     string
	Graph    *animgraph.Graph
	Skeleton *pose.Skeleton
	Motions  *motion.MotionSet
}

type entry struct {
	inst   *animgraph.Instance
	asset  *Asset
	thread int
}

// FrameStats describes the last frame run by UpdateAll.
type FrameStats struct {
	Frame     uint64
	Instances int
	Duration  time.Duration
	Err       error
}

// Manager is safe for concurrent use. Instance state is only touched by
// UpdateAll and by Do, which never run at the same time.
type Manager struct {
	mu        sync.RWMutex
	graphs    map[string]*Asset
	instances map[string]*entry
	order     []*entry

	// frameMu serializes frames against Do.
	frameMu sync.Mutex
	frame   uint64
	last    FrameStats

	threads   int
	prealloc  int
	maxPasses int
	logger    *slog.Logger
	handlers  []animgraph.EventHandler

	pools     *pool.Partition
	scheduler *Scheduler
}

// Option configures a Manager.
type Option func(*Manager)

// WithThreads sets the number of worker threads, and so of pool partitions.
func WithThreads(n int) Option {
	return func(m *Manager) { m.threads = n }
}

// WithPosePrealloc sets how many poses each thread's pool starts with.
func WithPosePrealloc(n int) Option {
	return func(m *Manager) { m.prealloc = n }
}

// WithMaxTransitionPasses bounds the state switches per state machine and frame.
func WithMaxTransitionPasses(n int) Option {
	return func(m *Manager) { m.maxPasses = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithEventHandler registers h on every instance the manager creates.
func WithEventHandler(h animgraph.EventHandler) Option {
	return func(m *Manager) { m.handlers = append(m.handlers, h) }
}

// New creates a manager and starts its worker threads.
func New(opts ...Option) *Manager {
	m := &Manager{
		graphs:    make(map[string]*Asset),
		instances: make(map[string]*entry),
		threads:   1,
		prealloc:  16,
		maxPasses: 10,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.threads < 1 {
		m.threads = 1
	}
	m.pools = pool.NewPartition(m.threads, m.prealloc, 0)
	m.scheduler = NewScheduler(m.threads)
	return m
}

// Threads returns the number of worker threads.
func (m *Manager) Threads() int { return m.threads }

// AddGraph registers a graph under name. The graph is initialized if the
// loader has not done so.
func (m *Manager) AddGraph(name string, g *animgraph.Graph, skel *pose.Skeleton, motions *motion.MotionSet) (*Asset, error) {
	if g == nil || skel == nil {
		return nil, fmt.Errorf("graph %s: graph and skeleton are required", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.graphs[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrGraphExists, name)
	}
	if !g.Initialized() {
		g.InitAfterLoading()
	}
	a := &Asset{Name: name, Graph: g, Skeleton: skel, Motions: motions}
	m.graphs[name] = a
	m.logger.Info("graph registered", "graph", name, "nodes", len(g.Nodes()), "problems", len(g.Report().Problems))
	return a, nil
}

// RemoveGraph unregisters a graph and destroys its instances.
func (m *Manager) RemoveGraph(name string) error {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.graphs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGraphNotFound, name)
	}
	for _, e := range slices.Clone(m.order) {
		if e.asset == a {
			m.removeLocked(e)
		}
	}
	a.Graph.Destroy()
	delete(m.graphs, name)
	m.logger.Info("graph removed", "graph", name)
	return nil
}

// FindGraph returns the asset registered under name.
func (m *Manager) FindGraph(name string) (*Asset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.graphs[name]
	return a, ok
}

// Graphs returns the registered assets sorted by name.
func (m *Manager) Graphs() []*Asset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Asset, 0, len(m.graphs))
	for _, a := range m.graphs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// InstanceOption configures CreateInstance.
type InstanceOption func(*instanceConfig)

type instanceConfig struct {
	id     string
	leader string
}

// WithInstanceID sets the instance identifier instead of a generated one.
func WithInstanceID(id string) InstanceOption {
	return func(c *instanceConfig) { c.id = id }
}

// Following makes the new instance follow the root timing of leaderID. The
// instance is placed on the leader's thread.
func Following(leaderID string) InstanceOption {
	return func(c *instanceConfig) { c.leader = leaderID }
}

// CreateInstance creates an instance of the named graph on the least
// loaded thread.
func (m *Manager) CreateInstance(graph string, opts ...InstanceOption) (*animgraph.Instance, error) {
	var cfg instanceConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.graphs[graph]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, graph)
	}
	if cfg.id != "" {
		if _, exists := m.instances[cfg.id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrInstanceExists, cfg.id)
		}
	}

	var leader *entry
	thread := m.leastLoadedThreadLocked()
	if cfg.leader != "" {
		leader, ok = m.instances[cfg.leader]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, cfg.leader)
		}
		thread = leader.thread
	}

	instOpts := []animgraph.Option{
		animgraph.WithThreadIndex(thread),
		animgraph.WithPools(m.pools.ForThread(thread)),
		animgraph.WithLogger(m.logger),
		animgraph.WithMaxTransitionPasses(m.maxPasses),
	}
	if cfg.id != "" {
		instOpts = append(instOpts, animgraph.WithID(cfg.id))
	}
	for _, h := range m.handlers {
		instOpts = append(instOpts, animgraph.WithEventHandler(h))
	}
	inst := animgraph.NewInstance(a.Graph, a.Skeleton, a.Motions, instOpts...)
	if leader != nil {
		leader.inst.AddFollower(inst)
	}

	e := &entry{inst: inst, asset: a, thread: thread}
	m.instances[inst.ID()] = e
	m.order = append(m.order, e)
	m.logger.Debug("instance created", "instance", inst.ID(), "graph", graph, "thread", thread)
	return inst, nil
}

func (m *Manager) leastLoadedThreadLocked() int {
	load := make([]int, m.threads)
	for _, e := range m.order {
		load[e.thread]++
	}
	best := 0
	for i, n := range load {
		if n < load[best] {
			best = i
		}
	}
	return best
}

// RemoveInstance destroys the instance with the given id.
func (m *Manager) RemoveInstance(id string) error {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	m.removeLocked(e)
	return nil
}

func (m *Manager) removeLocked(e *entry) {
	e.inst.Destroy()
	delete(m.instances, e.inst.ID())
	if i := slices.Index(m.order, e); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
}

// Follow links two existing instances. Both must run on the same thread
// since the follower reads the leader's state during its own update.
func (m *Manager) Follow(leaderID, followerID string) error {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	m.mu.RLock()
	defer m.mu.RUnlock()

	leader, ok := m.instances[leaderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, leaderID)
	}
	follower, ok := m.instances[followerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, followerID)
	}
	if leader.thread != follower.thread {
		return fmt.Errorf("%w: %d and %d", ErrThreadMismatch, leader.thread, follower.thread)
	}
	leader.inst.AddFollower(follower.inst)
	return nil
}

// FindInstance returns the instance with the given id.
func (m *Manager) FindInstance(id string) (*animgraph.Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.instances[id]
	if !ok {
		return nil, false
	}
	return e.inst, true
}

// GraphOf returns the name of the graph an instance was created from.
func (m *Manager) GraphOf(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.instances[id]
	if !ok {
		return "", false
	}
	return e.asset.Name, true
}

// Instances returns the live instances in creation order.
func (m *Manager) Instances() []*animgraph.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*animgraph.Instance, len(m.order))
	for i, e := range m.order {
		out[i] = e.inst
	}
	return out
}

// Do runs fn on an instance between frames.
func (m *Manager) Do(id string, fn func(inst *animgraph.Instance) error) error {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	inst, ok := m.FindInstance(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return fn(inst)
}

// UpdateAll evaluates one frame of every instance: Update followed by
// Output, one task per worker thread. Leaders are evaluated before their
// followers.
func (m *Manager) UpdateAll(ctx context.Context, dt float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.frameMu.Lock()
	defer m.frameMu.Unlock()

	batches := m.batches()
	n := 0
	for _, b := range batches {
		n += len(b)
	}

	m.frame++
	ctx, span := observability.StartFrameSpan(ctx, m.frame, n, dt)
	defer span.End()

	start := time.Now()
	err := m.scheduler.Run(ctx, batches, func(inst *animgraph.Instance) {
		inst.Update(dt)
		inst.Output(nil)
	})
	m.last = FrameStats{Frame: m.frame, Instances: n, Duration: time.Since(start), Err: err}
	if err != nil {
		observability.RecordError(span, err)
		m.logger.Error("frame failed", "frame", m.frame, "error", err)
	}
	return err
}

// LastFrame returns statistics of the most recent UpdateAll.
func (m *Manager) LastFrame() FrameStats {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	return m.last
}

func (m *Manager) batches() [][]*animgraph.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	batches := make([][]*animgraph.Instance, m.threads)
	for _, e := range m.order {
		batches[e.thread] = append(batches[e.thread], e.inst)
	}
	for _, b := range batches {
		sort.SliceStable(b, func(i, j int) bool { return leaderDepth(b[i]) < leaderDepth(b[j]) })
	}
	return batches
}

func leaderDepth(inst *animgraph.Instance) int {
	d := 0
	for l := inst.Leader(); l != nil && d < 64; l = l.Leader() {
		d++
	}
	return d
}

// PoolUsage returns the poses and ref datas in use across all threads. It
// waits for a running frame to finish.
func (m *Manager) PoolUsage() (poses, refDatas int) {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	for i := 0; i < m.pools.NumThreads(); i++ {
		p := m.pools.ForThread(i)
		poses += p.Poses.NumUsed()
		refDatas += p.RefData.NumUsed()
	}
	return poses, refDatas
}

// Close destroys all instances and stops the worker threads.
func (m *Manager) Close() {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	m.mu.Lock()
	for _, e := range slices.Clone(m.order) {
		m.removeLocked(e)
	}
	m.mu.Unlock()
	m.scheduler.Stop()
}
