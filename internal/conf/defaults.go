// defaults.go: default configuration values applied before reading any file.
package conf

import (
	"github.com/spf13/viper"
)

func setDefaultConfig() {
	viper.SetDefault("main.name", "labelkit")
	viper.SetDefault("main.log.enabled", false)
	viper.SetDefault("main.log.path", "logs/labelkit.log")

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.datadir", "data")
	viper.SetDefault("server.projectsdir", "data/projects")
	viper.SetDefault("server.debug", false)

	viper.SetDefault("export.trainsplit", 0.8)
	viper.SetDefault("export.valsplit", 0.2)
	viper.SetDefault("export.shuffle", true)
	viper.SetDefault("export.seed", 42)
}
