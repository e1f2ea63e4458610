package config

import (
	"fmt"
	"time"
)

// HTTPConfig HTTP服务器配置(Gin)
type HTTPConfig struct {
	Host         string `mapstructure:"host" json:"host"`                 // 服务器绑定IP
	Port         int    `mapstructure:"port" json:"port"`                 // HTTP端口
	ReadTimeout  int    `mapstructure:"readtimeout" json:"readtimeout"`   // 读取超时(秒)
	WriteTimeout int    `mapstructure:"writetimeout" json:"writetimeout"` // 写入超时(秒)
	IdleTimeout  int    `mapstructure:"idletimeout" json:"idletimeout"`   // 空闲超时(秒)
}

var HttpConfig = new(HTTPConfig)

// Addr 监听地址，端口默认8000
func (h *HTTPConfig) Addr() string {
	port := h.Port
	if port <= 0 {
		port = 8000
	}
	return fmt.Sprintf("%s:%d", h.Host, port)
}

func seconds(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

func (h *HTTPConfig) GetReadTimeout() time.Duration  { return seconds(h.ReadTimeout, 30) }
func (h *HTTPConfig) GetWriteTimeout() time.Duration { return seconds(h.WriteTimeout, 90) }
func (h *HTTPConfig) GetIdleTimeout() time.Duration  { return seconds(h.IdleTimeout, 120) }
