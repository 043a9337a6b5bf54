// Package lifecycle — дерево подсистем приложения с явными зависимостями.
// Узел стартует после родителя и своих deps, получает дочерний контекст
// родителя и останавливается в порядке, обратном фактическому запуску.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"telegram-inbox/internal/infra/logger"
)

// StartFunc запускает узел. Возвращённый контекст (если не nil) становится
// родительским для дочерних узлов.
type StartFunc func(ctx context.Context) (context.Context, error)

// StopFunc останавливает узел. Контекст узла к этому моменту уже отменён.
type StopFunc func(ctx context.Context) error

type nodeStatus int

const (
	statusRegistered nodeStatus = iota
	statusStarting
	statusRunning
	statusStopping
	statusStopped
	statusFailed
)

const rootName = "root"

type node struct {
	name   string
	parent string
	deps   []string

	start StartFunc
	stop  StopFunc

	ctx    context.Context
	cancel context.CancelFunc
	status nodeStatus
	err    error
}

// Manager управляет жизненным циклом узлов. Потокобезопасен.
type Manager struct {
	mu         sync.Mutex
	nodes      map[string]*node
	startOrder []string
}

// New создаёт менеджер с уже запущенным корнем rootCtx.
func New(rootCtx context.Context) *Manager {
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	return &Manager{
		nodes: map[string]*node{
			rootName: {name: rootName, ctx: rootCtx, status: statusRunning},
		},
	}
}

// Register добавляет узел name под parent (пусто — корень). deps стартуют раньше.
func (m *Manager) Register(name string, parent string, deps []string, start StartFunc, stop StopFunc) error {
	if name == "" || name == rootName {
		return fmt.Errorf("lifecycle: invalid node name %q", name)
	}
	if parent == "" {
		parent = rootName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.nodes[name]; exists {
		return fmt.Errorf("lifecycle: node %q already registered", name)
	}
	if _, parentExists := m.nodes[parent]; !parentExists {
		return fmt.Errorf("lifecycle: parent %q not found for node %q", parent, name)
	}

	uniqueDeps := slices.Clone(deps)
	slices.Sort(uniqueDeps)
	uniqueDeps = slices.Compact(uniqueDeps)
	uniqueDeps = slices.DeleteFunc(uniqueDeps, func(d string) bool { return d == parent })
	if slices.Contains(uniqueDeps, name) {
		return fmt.Errorf("lifecycle: node %q cannot depend on itself", name)
	}

	m.nodes[name] = &node{
		name:   name,
		parent: parent,
		deps:   uniqueDeps,
		start:  start,
		stop:   stop,
		status: statusRegistered,
	}
	return nil
}

// StartAll запускает все узлы. Имена обходятся по алфавиту, фактический
// порядок определяют родители и зависимости.
func (m *Manager) StartAll() error {
	m.mu.Lock()
	names := make([]string, 0, len(m.nodes))
	for name := range m.nodes {
		if name != rootName {
			names = append(names, name)
		}
	}
	m.mu.Unlock()
	slices.Sort(names)

	var errs error
	for _, name := range names {
		if err := m.startNode(name); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	logger.Debugf("lifecycle start order: %v", m.StartOrder())
	return errs
}

// StartOrder возвращает копию фактического порядка запуска.
func (m *Manager) StartOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.startOrder)
}

// Context возвращает контекст запущенного узла.
func (m *Manager) Context(name string) (context.Context, error) {
	if name == "" {
		name = rootName
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[name]
	if !ok {
		return nil, fmt.Errorf("lifecycle: node %q not registered", name)
	}
	if n.ctx == nil {
		return nil, fmt.Errorf("lifecycle: node %q has no context", name)
	}
	return n.ctx, nil
}

func (m *Manager) startNode(name string) error {
	m.mu.Lock()
	n, exists := m.nodes[name]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("lifecycle: node %q not registered", name)
	}
	switch n.status { //nolint:exhaustive // остальные статусы означают «запускать»
	case statusRunning:
		m.mu.Unlock()
		return nil
	case statusStarting:
		m.mu.Unlock()
		return fmt.Errorf("lifecycle: detected cycle while starting %q", name)
	case statusFailed:
		err := n.err
		m.mu.Unlock()
		return fmt.Errorf("lifecycle: node %q failed earlier: %w", name, err)
	}
	n.status = statusStarting
	m.mu.Unlock()

	logger.Debugf("starting node %s", name)

	for _, dep := range append([]string{n.parent}, n.deps...) {
		if err := m.startNode(dep); err != nil {
			m.setNodeFailed(name, err)
			logger.Errorf("failed to start node %s: %v", name, err)
			return err
		}
	}

	parentCtx, err := m.Context(n.parent)
	if err != nil {
		m.setNodeFailed(name, err)
		return err
	}

	childCtx, cancel := context.WithCancel(parentCtx)
	finalCtx := childCtx

	if n.start != nil {
		startedCtx, errStart := n.start(childCtx)
		if errStart != nil {
			cancel()
			m.setNodeFailed(name, errStart)
			return errStart
		}
		if startedCtx != nil && startedCtx != childCtx {
			// Отмена childCtx гасит и контекст, возвращённый узлом.
			bridged, bridgedCancel := context.WithCancel(startedCtx)
			stopAfter := context.AfterFunc(childCtx, bridgedCancel)
			oldCancel := cancel
			cancel = func() {
				oldCancel()
				stopAfter()
				bridgedCancel()
			}
			finalCtx = bridged
		}
	}

	m.mu.Lock()
	n.ctx = finalCtx
	n.cancel = cancel
	n.status = statusRunning
	n.err = nil
	if !slices.Contains(m.startOrder, name) {
		m.startOrder = append(m.startOrder, name)
	}
	m.mu.Unlock()

	logger.Debugf("node %s is running", name)
	return nil
}

// Shutdown останавливает узлы в обратном порядке запуска.
func (m *Manager) Shutdown() error {
	order := m.StartOrder()
	logger.Debugf("shutdown order: %v", order)

	var errs error
	for i := len(order) - 1; i >= 0; i-- {
		if err := m.stopNode(order[i]); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func (m *Manager) stopNode(name string) error {
	m.mu.Lock()
	n, exists := m.nodes[name]
	if !exists || n.status != statusRunning {
		m.mu.Unlock()
		return nil
	}
	n.status = statusStopping
	cancel := n.cancel
	stopFn := n.stop
	nodeCtx := n.ctx
	m.mu.Unlock()

	logger.Debugf("stopping node %s", name)

	if cancel != nil {
		cancel()
	}
	var err error
	if stopFn != nil {
		err = stopFn(nodeCtx)
	}

	m.mu.Lock()
	if err != nil {
		n.status = statusFailed
		n.err = err
	} else {
		n.status = statusStopped
		n.err = nil
	}
	m.mu.Unlock()

	if err != nil {
		logger.Errorf("node %s stopped with error: %v", name, err)
	}
	return err
}

func (m *Manager) setNodeFailed(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[name]; ok {
		n.status = statusFailed
		n.err = err
	}
}
