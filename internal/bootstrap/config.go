package bootstrap

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort           string        `mapstructure:"SERVER_PORT"`
	GrpcPort             string        `mapstructure:"GRPC_PORT"`
	StorageBackend       string        `mapstructure:"STORAGE_BACKEND"`
	MongoUri             string        `mapstructure:"MONGO_URI"`
	MongoDatabase        string        `mapstructure:"MONGO_DATABASE"`
	RedisUrl             string        `mapstructure:"REDIS_URL"`
	RedisPassword        string        `mapstructure:"REDIS_PASSWORD"`
	AmqpUrl              string        `mapstructure:"AMQP_URL"`
	AmqpExchange         string        `mapstructure:"AMQP_EXCHANGE"`
	LockBackend          string        `mapstructure:"LOCK_BACKEND"`
	LockTTL              time.Duration `mapstructure:"LOCK_TTL"`
	SessionTTL           time.Duration `mapstructure:"SESSION_TTL"`
	StorageTimeout       time.Duration `mapstructure:"STORAGE_TIMEOUT"`
	AdminToken           string        `mapstructure:"ADMIN_TOKEN"`
	IsLocalCors          bool          `mapstructure:"LOCAL_CORS"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	PageLimitLeaderboard int           `mapstructure:"PAGE_LIMIT_LEADERBOARD"`
	PageLimitDonations   int           `mapstructure:"PAGE_LIMIT_DONATIONS"`
	SeedAchievements     bool          `mapstructure:"SEED_ACHIEVEMENTS"`
}

var defaults = map[string]any{
	"SERVER_PORT":            "8080",
	"GRPC_PORT":              "8082",
	"STORAGE_BACKEND":        "mongo",
	"MONGO_URI":              "mongodb://localhost:27017/?replicaSet=rs0",
	"MONGO_DATABASE":         "givetrack",
	"REDIS_URL":              "localhost:6379",
	"REDIS_PASSWORD":         "",
	"AMQP_URL":               "",
	"AMQP_EXCHANGE":          "givetrack.events",
	"LOCK_BACKEND":           "memory",
	"LOCK_TTL":               "10s",
	"SESSION_TTL":            "11h",
	"STORAGE_TIMEOUT":        "5s",
	"ADMIN_TOKEN":            "",
	"LOCAL_CORS":             false,
	"LOG_LEVEL":              "info",
	"PAGE_LIMIT_LEADERBOARD": 50,
	"PAGE_LIMIT_DONATIONS":   10,
	"SEED_ACHIEVEMENTS":      true,
}

// Setup loads cfgPath as a dotenv file when it exists, then reads every key
// from the environment with the defaults above as fallback.
func Setup(cfgPath string) (*Config, error) {
	if cfgPath != "" {
		if err := godotenv.Load(cfgPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
