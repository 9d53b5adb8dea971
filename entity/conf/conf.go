package conf

import (
	"fmt"
	"log"
	"sync"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	// 配置读写锁，确保并发安全
	configMu sync.RWMutex
	// 文件提供者
	f *file.File
	// 缓存的配置实例
	appConf = Default()
)

// Default 返回默认配置
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:        ":8888",
			MetricsAddr: ":9090",
		},
		Log: LogConfig{
			Path:  "logs/app.log",
			Level: "debug",
		},
		Model: ModelConfig{
			MaxRetries: 2,
		},
		Search: SearchConfig{
			Provider: "serper",
			Serper: SerperConfig{
				Endpoint: "https://google.serper.dev/search",
				Results:  5,
				QPS:      5,
			},
			Internal: InternalSearchConfig{
				TimeoutSeconds: 120,
			},
			MaxConcurrency: 4,
		},
		Storage: StorageConfig{
			Redis: RedisConfig{
				TTLSeconds: 7 * 24 * 3600,
			},
		},
		Report: ReportConfig{
			ReportStructure:     consts.DefaultReportStructure,
			NumberOfQueries:     3,
			Mode:                consts.ModeHybridRAG,
			MaxSearchIterations: 3,
			MaxFollowUpQueries:  3,
			MaxSectionWords:     500,
		},
		Setting: SettingConfig{
			MaxCycles:      10,
			AgentMaxStep:   30,
			MaxLimitToken:  60000,
			MaxConcurrency: 4,
		},
	}
}

// Init 初始化配置
func Init(path string) error {
	// 加载配置
	cfg, provider, err := loadConfig(path)
	if err != nil {
		return fmt.Errorf("Init config failed, load config err: %v", err)
	}
	configMu.Lock()
	appConf = cfg
	f = provider
	configMu.Unlock()

	// 启动配置文件监听
	startConfigWatch()

	// 初始化日志
	if err := slog.InitFile(cfg.Log.Path, slog.WithLevel(cfg.Log.Level), slog.WithColor(false)); err != nil {
		return fmt.Errorf("Init log failed, err: %+v", err)
	}

	slog.Info("Init config: %+v", cfg.Redacted())
	return nil
}

// Load 加载并校验配置，不修改全局配置
func Load(path string) (*AppConfig, error) {
	cfg, _, err := loadConfig(path)
	return cfg, err
}

// loadConfig 加载配置
func loadConfig(path string) (*AppConfig, *file.File, error) {
	// 创建文件提供者
	provider := file.Provider(path)

	k := koanf.New(".")
	if err := k.Load(provider, yaml.Parser()); err != nil {
		return nil, nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// 在默认值之上解析，缺省字段保留默认值
	config := Default()
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}
	return config, provider, nil
}

// Validate 校验配置
func (c *AppConfig) Validate() error {
	switch c.Report.Mode {
	case consts.ModeWebSearch, consts.ModeHybridRAG:
	default:
		return fmt.Errorf("invalid report.mode %q, want %s or %s", c.Report.Mode, consts.ModeWebSearch, consts.ModeHybridRAG)
	}
	if c.Report.MaxSearchIterations <= 0 {
		return fmt.Errorf("report.max_search_iterations must be positive, got %d", c.Report.MaxSearchIterations)
	}
	if c.Report.NumberOfQueries <= 0 {
		return fmt.Errorf("report.number_of_queries must be positive, got %d", c.Report.NumberOfQueries)
	}
	if c.Setting.MaxCycles <= 0 {
		return fmt.Errorf("setting.max_cycles must be positive, got %d", c.Setting.MaxCycles)
	}
	if c.Report.ReportStructure == "" {
		c.Report.ReportStructure = consts.DefaultReportStructure
	}
	if c.Setting.MaxConcurrency <= 0 {
		c.Setting.MaxConcurrency = 1
	}
	if c.Search.MaxConcurrency <= 0 {
		c.Search.MaxConcurrency = 1
	}
	return nil
}

// Redacted 返回隐藏密钥后的副本，用于打印日志
func (c *AppConfig) Redacted() AppConfig {
	cp := *c
	mask := func(m Model) Model {
		if m.APIKey != "" {
			m.APIKey = "***"
		}
		return m
	}
	cp.Model.DefaultModel = mask(cp.Model.DefaultModel)
	cp.Model.PlannerModel = mask(cp.Model.PlannerModel)
	cp.Model.WriterModel = mask(cp.Model.WriterModel)
	cp.Model.ExecutorModel = mask(cp.Model.ExecutorModel)
	if cp.Search.Serper.APIKey != "" {
		cp.Search.Serper.APIKey = "***"
	}
	if cp.Storage.Redis.Password != "" {
		cp.Storage.Redis.Password = "***"
	}
	if cp.Storage.PostgresDSN != "" {
		cp.Storage.PostgresDSN = "***"
	}
	return cp
}

// GetCfg 获取配置
func GetCfg() *AppConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConf
}

// startConfigWatch 启动配置文件监听
func startConfigWatch() {
	if f == nil {
		log.Printf("file provider not initialized")
		return
	}

	// 监听文件变化并在变化时重新加载配置
	f.Watch(func(event interface{}, err error) {
		if err != nil {
			log.Printf("Config file watch error: %v", err)
			return
		}

		// 配置文件发生变化，重新加载
		log.Printf("Config file changed. Reloading...")
		k := koanf.New(".")
		if err := k.Load(f, yaml.Parser()); err != nil {
			log.Printf("Failed to load reloaded config: %v", err)
			return
		}

		// 重新解析配置到结构体
		config := Default()
		if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
			log.Printf("Failed to unmarshal reloaded config: %v", err)
			return
		}
		if err := config.Validate(); err != nil {
			log.Printf("Reloaded config rejected: %v", err)
			return
		}

		// 更新全局配置实例
		configMu.Lock()
		appConf = config
		configMu.Unlock()

		log.Printf("Config reloaded: %+v", config.Redacted())
	})
}
