package config

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	DBURL            string `mapstructure:"DB_URL"`
	RedisAddr        string `mapstructure:"REDIS_ADDR"`
	MQTTBroker       string `mapstructure:"MQTT_BROKER"`
	MQTTClientID     string `mapstructure:"MQTT_CLIENT_ID"`
	HTTPAddr         string `mapstructure:"HTTP_ADDR"`
	NotifyWebhookURL string `mapstructure:"NOTIFY_WEBHOOK_URL"`
	StatsdAddr       string `mapstructure:"STATSD_ADDR"`
	MDNSLocalName    string `mapstructure:"MDNS_LOCAL_NAME"`
	RelayURL         string `mapstructure:"RELAY_URL"`
	RelayAgentID     string `mapstructure:"RELAY_AGENT_ID"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`
}

// LoadConfig reads configuration from .env or environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("CONFIG: no .env file loaded:", err)
	}

	viper.AutomaticEnv()

	viper.SetDefault("HTTP_ADDR", ":5069")
	viper.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	viper.SetDefault("MQTT_CLIENT_ID", "homepanel-backend")
	viper.SetDefault("MDNS_LOCAL_NAME", "homepanel.local")
	viper.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		DBURL:            viper.GetString("DB_URL"),
		RedisAddr:        viper.GetString("REDIS_ADDR"),
		MQTTBroker:       viper.GetString("MQTT_BROKER"),
		MQTTClientID:     viper.GetString("MQTT_CLIENT_ID"),
		HTTPAddr:         viper.GetString("HTTP_ADDR"),
		NotifyWebhookURL: viper.GetString("NOTIFY_WEBHOOK_URL"),
		StatsdAddr:       viper.GetString("STATSD_ADDR"),
		MDNSLocalName:    viper.GetString("MDNS_LOCAL_NAME"),
		RelayURL:         viper.GetString("RELAY_URL"),
		RelayAgentID:     viper.GetString("RELAY_AGENT_ID"),
		LogLevel:         viper.GetString("LOG_LEVEL"),
	}
	return cfg, nil
}
