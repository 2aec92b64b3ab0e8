// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "Wayfind")
	viper.SetDefault("main.logpath", "logs")

	viper.SetDefault("storage.backend", string(StorageSQLite))
	viper.SetDefault("storage.path", "wayfind.db")

	viper.SetDefault("snapshot.nearbyradiuskm", 50.0)
	viper.SetDefault("snapshot.popularminrating", 4.0)

	viper.SetDefault("objectstore.endpoint", "")
	viper.SetDefault("objectstore.bucket", "wayfind-media")
	viper.SetDefault("objectstore.accesskey", "")
	viper.SetDefault("objectstore.secretkey", "")
	viper.SetDefault("objectstore.usessl", true)

	viper.SetDefault("catalog.baseurl", "")
	viper.SetDefault("catalog.timeout", 10*time.Second)
	viper.SetDefault("catalog.cachettl", 5*time.Minute)

	viper.SetDefault("imagecache.ttl", 7*24*time.Hour)

	viper.SetDefault("preload.settledelay", 800*time.Millisecond)
	viper.SetDefault("preload.dispatchbatchsize", 3)
	viper.SetDefault("preload.dispatchpause", 200*time.Millisecond)
	viper.SetDefault("preload.fetchtimeout", 8*time.Second)

	viper.SetDefault("governor.sampleinterval", 30*time.Second)
	viper.SetDefault("governor.ceilingmb", 100.0)
	viper.SetDefault("governor.avgimagesizemb", 0.5)
	viper.SetDefault("governor.minhitrate", 0.3)
	viper.SetDefault("governor.maxerrorratio", 0.5)
	viper.SetDefault("governor.maxavglatencyms", 2000.0)

	viper.SetDefault("viewport.bufferfactor", 1.4)
	viper.SetDefault("viewport.debouncedelay", 300*time.Millisecond)

	viper.SetDefault("enhancer.phase1batchsize", 20)
	viper.SetDefault("enhancer.phase1pause", 50*time.Millisecond)
	viper.SetDefault("enhancer.phase2batchsize", 10)
	viper.SetDefault("enhancer.phase2pause", 250*time.Millisecond)
}
