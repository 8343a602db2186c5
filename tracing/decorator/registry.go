package decorator

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Tsukikage7/tracing-bundle/logger"
	"go.uber.org/dig"
)

// Registration 装饰器注册项.
//
// 通常在装饰器所在包的 init 中调用 Register:
//
//	func init() {
//	    decorator.Register(decorator.Registration{
//	        Package: "github.com/acme/orders/tracing",
//	        Name:    "tenant",
//	        Enable:  true,
//	        New:     func() (decorator.SpanDecorator, error) { return &tenantDecorator{}, nil },
//	    })
//	}
type Registration struct {
	// Package 装饰器所在包路径，用于按 decoratorPackages 筛选
	Package string
	// Name 装饰器名称，同一包内唯一
	Name string
	// Enable 为 false 时不参与发现
	Enable bool
	// New 构造函数
	New func() (SpanDecorator, error)
}

func (r Registration) key() string {
	return r.Package + "." + r.Name
}

// Injectable 需要依赖注入的装饰器.
//
// 仅在开启 enableDynamicInjection 且配置了容器时调用.
type Injectable interface {
	Inject(c *dig.Container) error
}

var (
	registryMu    sync.RWMutex
	registrations = make(map[string]Registration)

	defaultInjector atomic.Pointer[dig.Container]
)

// Register 注册装饰器，重复注册或构造函数为空时 panic.
func Register(reg Registration) {
	if reg.New == nil {
		panic(fmt.Errorf("%w: %s", ErrNilConstructor, reg.key()))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registrations[reg.key()]; dup {
		panic("decorator: Register called twice for " + reg.key())
	}
	registrations[reg.key()] = reg
}

// unregister 移除注册项，仅供测试清理.
func unregister(pkg, name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registrations, Registration{Package: pkg, Name: name}.key())
}

// Discover 返回位于 packages 内且已启用的注册项，按包路径和名称排序.
func Discover(packages []string) []Registration {
	if len(packages) == 0 {
		return nil
	}

	registryMu.RLock()
	defer registryMu.RUnlock()

	var found []Registration
	for _, reg := range registrations {
		if reg.Enable && inPackages(reg.Package, packages) {
			found = append(found, reg)
		}
	}

	slices.SortFunc(found, func(a, b Registration) int {
		return cmp.Or(cmp.Compare(a.Package, b.Package), cmp.Compare(a.Name, b.Name))
	})
	return found
}

func inPackages(pkg string, packages []string) bool {
	for _, p := range packages {
		p = strings.TrimSuffix(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		if pkg == p || strings.HasPrefix(pkg, p+"/") {
			return true
		}
	}
	return false
}

// ConfigureInjector 设置进程级依赖注入容器.
func ConfigureInjector(c *dig.Container) {
	defaultInjector.Store(c)
}

// Options 装饰器组装选项.
type Options struct {
	// Env 环境标签，为 nil 时读取 EnvTags
	Env map[string]string
	// Packages 发现装饰器的包路径
	Packages []string
	// EnableDynamicInjection 是否对 Injectable 装饰器执行注入
	EnableDynamicInjection bool
	// Injector 依赖注入容器，为 nil 时使用 ConfigureInjector 设置的容器
	Injector *dig.Container
	// Extra 显式传入的装饰器
	Extra []SpanDecorator
	// Logger 日志记录器
	Logger logger.Logger
}

// Build 组装装饰器列表.
//
// 顺序: 环境标签、发现的装饰器、显式装饰器、标准标签.
// 发现的装饰器实例化或注入失败时返回 ErrInstantiate.
func Build(opts Options) ([]SpanDecorator, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	injector := opts.Injector
	if injector == nil {
		injector = defaultInjector.Load()
	}

	decorators := []SpanDecorator{Environment(opts.Env)}

	for _, reg := range Discover(opts.Packages) {
		d, err := reg.New()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInstantiate, reg.key(), err)
		}
		if d == nil {
			return nil, fmt.Errorf("%w: %s: 构造函数返回 nil", ErrInstantiate, reg.key())
		}

		if inj, ok := d.(Injectable); ok && opts.EnableDynamicInjection {
			if injector == nil {
				log.With(logger.String("decorator", reg.key())).
					Warn("[Tracing] 已开启动态注入但未配置注入容器，装饰器依赖未注入")
			} else if err := inj.Inject(injector); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInstantiate, reg.key(), err)
			}
		}

		log.With(logger.String("decorator", reg.key())).Debug("[Tracing] 已加载 span 装饰器")
		decorators = append(decorators, d)
	}

	for _, d := range opts.Extra {
		if d != nil {
			decorators = append(decorators, d)
		}
	}

	return append(decorators, StandardTags()), nil
}
