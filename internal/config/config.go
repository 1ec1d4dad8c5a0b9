package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 分析配置（凭证与参数由外部配置层提供）
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Analysis AnalysisConfig `yaml:"analysis"`
	AI       AIConfig       `yaml:"ai"`
}

// DatabaseConfig 数据库连接配置
type DatabaseConfig struct {
	Type     string `yaml:"type"` // mysql/sqlserver/postgres
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
}

// AnalysisConfig 分析参数
type AnalysisConfig struct {
	SampleSize       int    `yaml:"sample_size"`
	MinSample        int    `yaml:"min_sample"`
	Workers          int    `yaml:"workers"`
	IncludeThreshold string `yaml:"include_threshold"`
}

// AIConfig AI 评级配置
type AIConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// Load 读取 YAML 配置文件并应用环境变量覆盖
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.ApplyEnv()
	return &cfg, nil
}

// ApplyEnv 敏感项优先取环境变量
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DASHSCOPE_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
}

// DSN 按数据库类型构造连接字符串
func (d DatabaseConfig) DSN() (string, error) {
	switch d.Type {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?timeout=30s&readTimeout=30s&writeTimeout=30s",
			d.Username, d.Password, d.Host, d.Port, d.Database), nil
	case "sqlserver":
		return fmt.Sprintf("server=%s;port=%s;user id=%s;password=%s;database=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database), nil
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			d.Host, d.Port, d.Username, d.Password, d.Database), nil
	default:
		return "", fmt.Errorf("不支持的数据库类型: %s", d.Type)
	}
}

// EffectiveSchema MySQL 的 schema 缺省取数据库名，Postgres 缺省 public
func (d DatabaseConfig) EffectiveSchema() string {
	if d.Schema != "" {
		return d.Schema
	}
	switch d.Type {
	case "mysql":
		return d.Database
	case "postgres":
		return "public"
	}
	return ""
}
