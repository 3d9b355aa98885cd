package main

import "time"

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=5000"`
	MaxHistoryLimit      int           `env:"MAX_HISTORY_LIMIT,default=200"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=30s"`
	PongWait             time.Duration `env:"PONG_WAIT,default=60s"`
	WriteWait            time.Duration `env:"WRITE_WAIT,default=10s"`
	ReadLimit            int64         `env:"READ_LIMIT,default=65536"`
	StorageGCInterval    time.Duration `env:"STORAGE_GC_INTERVAL,default=5m"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}
