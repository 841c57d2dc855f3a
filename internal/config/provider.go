package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"rpclink/internal/utils"
)

// Provider 配置提供者接口
type Provider interface {
	// Load 加载配置
	Load(source string) error
	// Get 获取当前配置
	Get() *Config
	// Watch 注册配置变化回调
	Watch(callback func(*Config))
	// Close 关闭提供者，释放监听资源
	Close() error
}

// FileProvider 文件配置提供者，支持YAML/JSON与热加载
type FileProvider struct {
	mu       sync.RWMutex
	config   *Config
	filePath string
	watchers []func(*Config)
	notifier *fsnotify.Watcher
	logger   *zap.Logger
	closeCh  chan struct{}
	wg       sync.WaitGroup
}

// NewFileProvider 创建文件配置提供者
func NewFileProvider(logger *zap.Logger) *FileProvider {
	return &FileProvider{
		config:  DefaultConfig(),
		logger:  utils.EnsureLogger(logger),
		closeCh: make(chan struct{}),
	}
}

// Load 加载配置文件
func (p *FileProvider) Load(source string) error {
	cfg, err := parseFile(source)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.config = cfg
	p.filePath = source
	p.mu.Unlock()

	return nil
}

// Get 获取当前配置
func (p *FileProvider) Get() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// Watch 注册配置变化回调
// 首次注册时启动文件监听，之后配置文件被修改会触发重新加载
func (p *FileProvider) Watch(callback func(*Config)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.watchers = append(p.watchers, callback)
	if p.notifier != nil {
		return
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Warn("failed to create file watcher", zap.Error(err))
		return
	}
	if err := notifier.Add(p.filePath); err != nil {
		p.logger.Warn("failed to watch config file",
			zap.String("path", p.filePath), zap.Error(err))
		notifier.Close()
		return
	}

	p.notifier = notifier
	p.wg.Add(1)
	go p.watchLoop()
}

// watchLoop 监听文件事件并热加载配置
func (p *FileProvider) watchLoop() {
	defer p.wg.Done()

	for {
		select {
		case event, ok := <-p.notifier.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			p.reload()
		case err, ok := <-p.notifier.Errors:
			if !ok {
				return
			}
			p.logger.Warn("config watcher error", zap.Error(err))
		case <-p.closeCh:
			return
		}
	}
}

// reload 重新加载配置并通知观察者
// 加载失败时保留旧配置
func (p *FileProvider) reload() {
	p.mu.RLock()
	path := p.filePath
	p.mu.RUnlock()

	cfg, err := parseFile(path)
	if err != nil {
		p.logger.Warn("config reload failed, keeping previous config",
			zap.String("path", path), zap.Error(err))
		return
	}

	p.mu.Lock()
	p.config = cfg
	watchers := make([]func(*Config), len(p.watchers))
	copy(watchers, p.watchers)
	p.mu.Unlock()

	p.logger.Info("config reloaded", zap.String("path", path))
	for _, watcher := range watchers {
		go watcher(cfg)
	}
}

// Close 关闭提供者
func (p *FileProvider) Close() error {
	p.mu.Lock()
	notifier := p.notifier
	p.notifier = nil
	p.mu.Unlock()

	if notifier == nil {
		return nil
	}
	close(p.closeCh)
	err := notifier.Close()
	p.wg.Wait()
	return err
}

// parseFile 根据文件扩展名解析配置
func parseFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParseFailed, err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParseFailed, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// StaticProvider 内存配置提供者（用于测试与嵌入场景）
type StaticProvider struct {
	mu       sync.RWMutex
	config   *Config
	watchers []func(*Config)
}

// NewStaticProvider 创建内存配置提供者
func NewStaticProvider(cfg *Config) *StaticProvider {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &StaticProvider{config: cfg}
}

// Load 内存提供者不需要实际加载
func (p *StaticProvider) Load(source string) error {
	return nil
}

// Get 获取当前配置
func (p *StaticProvider) Get() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// Set 替换配置并通知观察者
func (p *StaticProvider) Set(cfg *Config) {
	p.mu.Lock()
	p.config = cfg
	watchers := make([]func(*Config), len(p.watchers))
	copy(watchers, p.watchers)
	p.mu.Unlock()

	for _, watcher := range watchers {
		watcher(cfg)
	}
}

// Watch 注册配置变化回调
func (p *StaticProvider) Watch(callback func(*Config)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchers = append(p.watchers, callback)
}

// Close 关闭提供者
func (p *StaticProvider) Close() error {
	return nil
}
