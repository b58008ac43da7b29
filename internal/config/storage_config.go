package config

type StorageConfig interface {
	GetStoreDriver() string
	GetSQLiteDSN() string
	GetBoltPath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKeyPrefix() string
	GetProvisionFile() string
}

func (s *Settings) GetStoreDriver() string    { return s.StoreDriver }
func (s *Settings) GetSQLiteDSN() string      { return s.SQLiteDSN }
func (s *Settings) GetBoltPath() string       { return s.BoltPath }
func (s *Settings) GetRedisAddr() string      { return s.RedisAddr }
func (s *Settings) GetRedisPassword() string  { return s.RedisPassword }
func (s *Settings) GetRedisDB() int           { return s.RedisDB }
func (s *Settings) GetRedisKeyPrefix() string { return s.RedisKeyPrefix }
func (s *Settings) GetProvisionFile() string  { return s.ProvisionFile }
