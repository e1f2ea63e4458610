package config

// Application 应用程序配置
type Application struct {
	Mode string `mapstructure:"mode" json:"mode"` // dev, test, prod
	Name string `mapstructure:"name" json:"name"`
}

var ApplicationConfig = new(Application)

// IsDev 开发模式下 gin 输出调试日志
func (a *Application) IsDev() bool {
	return a == nil || a.Mode == "" || a.Mode == "dev"
}
