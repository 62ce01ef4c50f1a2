// Package driver 车辆驱动注册表：按名称选择 MAVLink 或模拟器链路
package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/k3suav/antenna-scan/pkg/clock"
	"github.com/k3suav/antenna-scan/pkg/config"
	"github.com/k3suav/antenna-scan/pkg/supervisor"
	"github.com/sirupsen/logrus"
)

// Link 打开后的车辆链路
type Link interface {
	supervisor.Vehicle
	Close() error
}

// Options 打开链路所需的参数
type Options struct {
	Vehicle config.VehicleConfig
	Antenna config.AntennaConfig
	Clock   clock.Clock
	Logger  *logrus.Logger
}

// Driver 车辆驱动接口
type Driver interface {
	// Name 返回驱动名称（与 vehicle.driver 配置一致）
	Name() string
	// Open 建立车辆链路
	Open(ctx context.Context, opts Options) (Link, error)
}

// OpenFunc 将函数适配为 Driver
type OpenFunc func(ctx context.Context, opts Options) (Link, error)

// New 用名称和打开函数创建驱动
func New(name string, open OpenFunc) Driver {
	return funcDriver{name: name, open: open}
}

type funcDriver struct {
	name string
	open OpenFunc
}

func (d funcDriver) Name() string { return d.name }

func (d funcDriver) Open(ctx context.Context, opts Options) (Link, error) {
	return d.open(ctx, opts)
}

// Registry 驱动注册表
type Registry struct {
	drivers map[string]Driver
	mu      sync.RWMutex
}

var (
	// 全局注册表
	globalRegistry = NewRegistry()
)

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register 注册驱动到全局注册表
func Register(d Driver) {
	globalRegistry.Register(d)
}

// Get 从全局注册表获取驱动
func Get(name string) (Driver, error) {
	return globalRegistry.Get(name)
}

// List 列出全局注册表中的所有驱动
func List() []string {
	return globalRegistry.List()
}

// Clear 清空全局注册表
func Clear() {
	globalRegistry.Clear()
}

// Open 按名称打开链路
func Open(ctx context.Context, name string, opts Options) (Link, error) {
	return globalRegistry.Open(ctx, name, opts)
}

// Register 注册驱动
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Name()] = d
}

// Get 获取驱动
func (r *Registry) Get(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("vehicle driver '%s' not found in registry", name)
	}
	return d, nil
}

// Open 获取驱动并打开链路
func (r *Registry) Open(ctx context.Context, name string, opts Options) (Link, error) {
	d, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	link, err := d.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s link: %w", name, err)
	}
	return link, nil
}

// List 列出所有已注册的驱动名称（已排序）
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear 清空注册表（主要用于测试）
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = make(map[string]Driver)
}
