package config

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"jasdaq.com/pkg/logger"
)

// Load 读取 config/{service}.yaml（找不到再找当前目录），环境变量覆盖
// 例如 MATCHING_SERVICE_HTTP_ADDR 覆盖 http.addr
func Load(service string, out interface{}, paths ...string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	logger.Info(context.Background(), "config loaded",
		zap.String("service", service), zap.String("file", v.ConfigFileUsed()))
	return v, nil
}

// LoadAndWatch 在 Load 的基础上监听文件变更，热更新到 out
// onChange 可以为空；只有重新解析成功才会回调
func LoadAndWatch(service string, out interface{}, onChange func()) (*viper.Viper, error) {
	v, err := Load(service, out)
	if err != nil {
		return nil, err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if err := v.Unmarshal(out); err != nil {
			logger.Error(context.Background(), "reload config failed",
				zap.String("service", service), zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info(context.Background(), "config reloaded",
			zap.String("service", service), zap.String("file", e.Name))
		if onChange != nil {
			onChange()
		}
	})
	v.WatchConfig()
	return v, nil
}

// matching-service -> MATCHING_SERVICE
func envPrefix(service string) string {
	return strings.ToUpper(strings.ReplaceAll(service, "-", "_"))
}
