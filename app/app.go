// Package app 管理服务进程的生命周期.
//
// Application 启动已注册的服务器，等待退出信号，停止服务器后按优先级执行清理任务.
// 链路追踪组件通过 AddCleanup 注册自身的关闭钩子.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"github.com/Tsukikage7/tracing-bundle/logger"
)

// ErrRunning 应用正在运行.
var ErrRunning = errors.New("app: 应用正在运行")

// Server 服务器接口.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Name() string
	Addr() string
}

// Application 应用程序，管理多个服务器的生命周期.
type Application struct {
	opts   *options
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	servers  []Server
	cleanups []Cleanup
	running  bool
}

// New 创建应用程序.
func New(opts ...Option) *Application {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		panic("app: logger is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Application{
		opts:     o,
		ctx:      ctx,
		cancel:   cancel,
		cleanups: slices.Clone(o.cleanups),
	}
}

// Use 注册服务器.
func (a *Application) Use(servers ...Server) *Application {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.servers = append(a.servers, servers...)
	return a
}

// AddCleanup 在运行期注册清理任务.
func (a *Application) AddCleanup(name string, fn CleanupFunc, priority int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanups = append(a.cleanups, Cleanup{Name: name, Fn: fn, Priority: priority})
}

// Cleanups 返回已注册清理任务的名称，按执行顺序排列.
func (a *Application) Cleanups() []string {
	cleanups := a.sortedCleanups()
	names := make([]string, 0, len(cleanups))
	for _, c := range cleanups {
		names = append(names, c.Name)
	}
	return names
}

// Run 运行应用程序，阻塞直到收到退出信号、调用 Stop 或服务器启动失败.
func (a *Application) Run() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrRunning
	}
	a.running = true
	servers := slices.Clone(a.servers)
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	for _, hook := range a.opts.beforeStart {
		if err := hook(a.ctx); err != nil {
			return err
		}
	}

	a.opts.logger.With(
		logger.String("name", a.opts.name),
		logger.String("version", a.opts.version),
	).Info("[App] 应用启动")

	errCh := a.start(servers)
	runErr := a.wait(errCh)

	a.shutdown(servers)
	return runErr
}

// Stop 主动停止应用程序.
func (a *Application) Stop() {
	a.cancel()
}

// Context 获取应用上下文.
func (a *Application) Context() context.Context {
	return a.ctx
}

// Name 获取应用名称.
func (a *Application) Name() string {
	return a.opts.name
}

// Version 获取应用版本.
func (a *Application) Version() string {
	return a.opts.version
}

func (a *Application) start(servers []Server) <-chan error {
	errCh := make(chan error, len(servers))
	if len(servers) == 0 {
		a.opts.logger.Warn("[App] 未注册任何服务器")
		return errCh
	}

	for _, srv := range servers {
		go func(s Server) {
			a.opts.logger.With(
				logger.String("server", s.Name()),
				logger.String("addr", s.Addr()),
			).Info("[App] 启动服务器")
			if err := s.Start(a.ctx); err != nil {
				errCh <- err
			}
		}(srv)
	}
	return errCh
}

func (a *Application) wait(errCh <-chan error) error {
	signals := a.opts.signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.opts.logger.With(logger.String("signal", sig.String())).Info("[App] 收到退出信号")
	case <-a.ctx.Done():
		a.opts.logger.Info("[App] 上下文已取消")
	case err := <-errCh:
		a.opts.logger.With(logger.Err(err)).Error("[App] 服务器启动失败")
		return err
	}
	return nil
}

func (a *Application) shutdown(servers []Server) {
	a.opts.logger.With(
		logger.Duration("timeout", a.opts.gracefulTimeout),
	).Info("[App] 开始关闭")

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.gracefulTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(s Server) {
			defer wg.Done()
			if err := s.Stop(ctx); err != nil {
				a.opts.logger.With(
					logger.String("server", s.Name()),
					logger.Err(err),
				).Error("[App] 服务器停止失败")
			}
		}(srv)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.opts.logger.Warn("[App] 关闭超时")
	}

	a.runCleanups()

	for _, hook := range a.opts.afterStop {
		if err := hook(context.Background()); err != nil {
			a.opts.logger.With(logger.Err(err)).Error("[App] 停止后钩子执行失败")
		}
	}

	a.opts.logger.Info("[App] 应用已停止")
}

func (a *Application) sortedCleanups() []Cleanup {
	a.mu.Lock()
	cleanups := slices.Clone(a.cleanups)
	a.mu.Unlock()

	slices.SortStableFunc(cleanups, func(x, y Cleanup) int {
		return x.Priority - y.Priority
	})
	return cleanups
}

// runCleanups 按优先级执行清理任务，每个任务各自拥有 gracefulTimeout 的时限.
func (a *Application) runCleanups() {
	for _, c := range a.sortedCleanups() {
		ctx, cancel := context.WithTimeout(context.Background(), a.opts.gracefulTimeout)
		err := c.Fn(ctx)
		cancel()
		if err != nil {
			a.opts.logger.With(
				logger.String("cleanup", c.Name),
				logger.Err(err),
			).Error("[App] 清理任务失败")
			continue
		}
		a.opts.logger.With(logger.String("cleanup", c.Name)).Info("[App] 清理任务完成")
	}
}
