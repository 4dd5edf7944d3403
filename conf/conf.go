package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vigilab/vigil/hist/hconf"
	"github.com/vigilab/vigil/pkg/cfg"
	"github.com/vigilab/vigil/pkg/logx"
	"github.com/vigilab/vigil/pkg/ormx"
	"github.com/vigilab/vigil/storage"

	"github.com/toolkits/pkg/logger"
)

type ConfigType struct {
	Global GlobalConfig
	Log    logx.Config
	DB     ormx.DBConfig
	Redis  storage.RedisConfig
	Hist   hconf.Hist
}

type GlobalConfig struct {
	RunMode string
}

func InitConfig(configDir string) (*ConfigType, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		logger.Errorf("dir %s not exist\n", configDir)
		os.Exit(1)
	}

	var found bool
	err := filepath.Walk(configDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			ext := filepath.Ext(path)
			if ext == ".toml" || ext == ".json" {
				found = true
			}
		}
		return nil
	})
	if err != nil || !found {
		logger.Errorf("fail to found config file, config dir path: %v and err is %v\n", configDir, err)
		os.Exit(1)
	}

	var config = new(ConfigType)

	if err := cfg.LoadConfigByDir(configDir, config); err != nil {
		return nil, fmt.Errorf("failed to load configs of directory: %s error: %s", configDir, err)
	}

	config.Hist.PreCheck()

	return config, nil
}
