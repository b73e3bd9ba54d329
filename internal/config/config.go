package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Provider ProviderConfig `mapstructure:"provider"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Notify string `mapstructure:"notify"` // 通知侧信道（邮件/WhatsApp 消费方订阅）
	Alert  string `mapstructure:"alert"`  // 资金不一致等需要人工介入的告警
}

type BusinessConfig struct {
	Currency                 string  `mapstructure:"currency"`
	FrontendURL              string  `mapstructure:"frontend_url"`                // 支付回调后浏览器跳转地址
	SellerFeeRate            float64 `mapstructure:"seller_fee_rate"`             // 商品订单平台费率，如 0.03
	OrganizerFeeRate         float64 `mapstructure:"organizer_fee_rate"`          // 主办方订单费率，如 0.06
	EventFeeRate             float64 `mapstructure:"event_fee_rate"`              // 活动门票费率，如 0.06
	MaxRetryCount            int     `mapstructure:"max_retry_count"`             // outbox 消息最大重试次数
	StaleProcessingMinutes   int     `mapstructure:"stale_processing_minutes"`    // 提现 processing 超过该时长视为卡单，主动查单
	CompensateIntervalSecond int     `mapstructure:"compensate_interval_seconds"` // 补偿任务轮询间隔
}

type ProviderConfig struct {
	Default       string `mapstructure:"default"`
	SandboxSecret string `mapstructure:"sandbox_secret"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}

// FeeRate 按余额主体类型取平台费率
func (c *BusinessConfig) FeeRate(entityType string) float64 {
	switch entityType {
	case "organizer":
		return c.OrganizerFeeRate
	case "event":
		return c.EventFeeRate
	default:
		return c.SellerFeeRate
	}
}
