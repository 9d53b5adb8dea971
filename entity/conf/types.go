package conf

// MCPServerConfig MCP服务器配置
type MCPServerConfig struct {
	Command string            `yaml:"command" mapstructure:"command"`             // MCP服务器启动命令
	Args    []string          `yaml:"args" mapstructure:"args"`                   // 命令行参数列表
	Env     map[string]string `yaml:"env,omitempty" mapstructure:"env,omitempty"` // 环境变量映射，可选配置
	URL     string            `yaml:"url,omitempty" mapstructure:"url,omitempty"` // 配置后使用 SSE 连接
	Headers []string          `yaml:"headers,omitempty" mapstructure:"headers,omitempty"`
}

// MCPConfig MCP配置
type MCPConfig struct {
	Servers map[string]MCPServerConfig `yaml:"servers" mapstructure:"servers"` // MCP服务器配置映射，key为服务器名称
}

// Model 单个模型配置
type Model struct {
	ModelID string `yaml:"model_id" mapstructure:"model_id"` // 模型ID
	BaseURL string `yaml:"base_url" mapstructure:"base_url"` // 模型服务的基础URL地址
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`   // 模型服务的API密钥
}

// ModelConfig 模型配置，未配置的角色回落到默认模型
type ModelConfig struct {
	DefaultModel  Model `yaml:"default_model" mapstructure:"default_model"`   // 默认模型
	PlannerModel  Model `yaml:"planner_model" mapstructure:"planner_model"`   // 大纲与查询生成
	WriterModel   Model `yaml:"writer_model" mapstructure:"writer_model"`     // 章节撰写
	ExecutorModel Model `yaml:"executor_model" mapstructure:"executor_model"` // 工具调用执行者
	MaxRetries    int   `yaml:"max_retries" mapstructure:"max_retries"`       // 传输失败重试次数
}

// SerperConfig serper 网络搜索配置
type SerperConfig struct {
	Endpoint string  `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string  `yaml:"api_key" mapstructure:"api_key"`
	Results  int     `yaml:"results" mapstructure:"results"` // 每次查询返回条数
	QPS      float64 `yaml:"qps" mapstructure:"qps"`         // 每秒请求上限
}

// InternalSearchConfig 内部知识检索服务配置
type InternalSearchConfig struct {
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// SearchConfig 搜索配置
type SearchConfig struct {
	Provider       string               `yaml:"provider" mapstructure:"provider"` // serper | mcp
	Serper         SerperConfig         `yaml:"serper" mapstructure:"serper"`
	Internal       InternalSearchConfig `yaml:"internal" mapstructure:"internal"`
	MaxConcurrency int                  `yaml:"max_concurrency" mapstructure:"max_concurrency"` // 单批查询并发数
}

// RedisConfig redis 配置
type RedisConfig struct {
	Addr       string `yaml:"addr" mapstructure:"addr"`
	Password   string `yaml:"password" mapstructure:"password"`
	DB         int    `yaml:"db" mapstructure:"db"`
	TTLSeconds int    `yaml:"ttl_seconds" mapstructure:"ttl_seconds"` // checkpoint 过期时间，0 表示不过期
}

// StorageConfig 存储配置，未配置时使用内存实现
type StorageConfig struct {
	Redis       RedisConfig `yaml:"redis" mapstructure:"redis"`
	PostgresDSN string      `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
}

// ReportConfig 报告工作流配置
type ReportConfig struct {
	ReportStructure     string `yaml:"report_structure" mapstructure:"report_structure"`           // 报告结构说明
	NumberOfQueries     int    `yaml:"number_of_queries" mapstructure:"number_of_queries"`         // 每次生成的查询数
	Mode                string `yaml:"mode" mapstructure:"mode"`                                   // web_search | hybrid_rag
	MaxSearchIterations int    `yaml:"max_search_iterations" mapstructure:"max_search_iterations"` // 章节研究最大轮数
	MaxFollowUpQueries  int    `yaml:"max_follow_up_queries" mapstructure:"max_follow_up_queries"` // 评分时追加查询数
	MaxSectionWords     int    `yaml:"max_section_words" mapstructure:"max_section_words"`         // 章节字数上限
}

// SettingConfig 应用运行配置
type SettingConfig struct {
	MaxCycles      int `yaml:"max_cycles" mapstructure:"max_cycles"`           // 计划-执行循环最大执行步数
	AgentMaxStep   int `yaml:"agent_max_step" mapstructure:"agent_max_step"`   // 每个 agent 最大执行步骤数
	MaxLimitToken  int `yaml:"max_limit_token" mapstructure:"max_limit_token"` // 最大限制token数
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"` // 章节并行研究上限
}

// ServerConfig 服务配置
type ServerConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
}

// LogConfig 日志配置
type LogConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Level string `yaml:"level" mapstructure:"level"`
}

// AppConfig 应用配置
type AppConfig struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`   // HTTP服务配置
	Log     LogConfig     `yaml:"log" mapstructure:"log"`         // 日志配置
	MCP     MCPConfig     `yaml:"mcp" mapstructure:"mcp"`         // MCP服务相关配置
	Model   ModelConfig   `yaml:"model" mapstructure:"model"`     // 大语言模型相关配置
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`   // 搜索相关配置
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"` // 存储相关配置
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`   // 报告工作流配置
	Setting SettingConfig `yaml:"setting" mapstructure:"setting"` // 应用运行时配置参数
}
