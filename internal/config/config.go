package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config 服务配置
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Import   ImportConfig   `toml:"import"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `toml:"type"` // sqlite
	DSN  string `toml:"dsn"`  // data source name
}

// ImportConfig 导入相关配置
type ImportConfig struct {
	RulesPath          string   `toml:"rules_path"`           // 分类规则 JSON 文件路径
	AttachmentDir      string   `toml:"attachment_dir"`       // 附件存储目录
	FilenameKeyedTypes []string `toml:"filename_keyed_types"` // 按文件名派生分类的产品类型
}

// LogConfig 日志配置
type LogConfig struct {
	Mode string `toml:"mode"` // dev, prod
}

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// 设置默认值
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Database.Type == "" {
		config.Database.Type = "sqlite"
	}
	if config.Database.DSN == "" {
		config.Database.DSN = "./data/testcases.db"
	}
	if config.Import.RulesPath == "" {
		config.Import.RulesPath = "./config/category_rules.json"
	}
	if config.Import.AttachmentDir == "" {
		config.Import.AttachmentDir = "./data/attachments"
	}
	if config.Log.Mode == "" {
		config.Log.Mode = "dev"
	}

	return &config, nil
}

// IsFilenameKeyed 判断产品类型是否属于按文件名派生分类的产品族
func (c *ImportConfig) IsFilenameKeyed(productType string) bool {
	for _, t := range c.FilenameKeyedTypes {
		if t == productType {
			return true
		}
	}
	return false
}

// GetAddr 获取服务器监听地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
