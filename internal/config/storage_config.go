package config

import "strings"

const (
	StoreDriverMemory = "memory"
	StoreDriverFile   = "file"
	StoreDriverRedis  = "redis"
)

type StorageConfig interface {
	GetStoreDriver() string
	GetStoreDir() string
	GetStoreEncryptionKey() string
	GetStorePrefix() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Storage struct {
	StoreDriver   string `env:"STORE_DRIVER" envDefault:"file"`
	StoreDir      string `env:"STORE_DIR" envDefault:"./data/store"`
	EncryptionKey string `env:"STORE_ENCRYPTION_KEY"`
	Prefix        string `env:"STORE_PREFIX" envDefault:"authlink"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetStoreDriver() string        { return strings.ToLower(s.StoreDriver) }
func (s Storage) GetStoreDir() string           { return s.StoreDir }
func (s Storage) GetStoreEncryptionKey() string { return s.EncryptionKey }
func (s Storage) GetStorePrefix() string        { return s.Prefix }
func (s Storage) GetRedisAddr() string          { return s.RedisAddr }
func (s Storage) GetRedisPassword() string      { return s.RedisPassword }
func (s Storage) GetRedisDB() int               { return s.RedisDB }
