package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

var v *viper.Viper

const (
	// DefaultIngestAddr is the TCP address the ingest server listens on
	// when no config or environment override is set.
	DefaultIngestAddr = ":1935"
	// DefaultRemuxSink is the remux sink selected by `flvdemux remux` when
	// --to is not given.
	DefaultRemuxSink = "fmp4"
)

func init() {
	v = viper.New()

	v.SetDefault("ingest.addr", DefaultIngestAddr)
	v.SetDefault("ingest.proxy_protocol", false)
	v.SetDefault("liveview.addr", ":8099")
	v.SetDefault("remux.sink", DefaultRemuxSink)

	v.SetDefault("flvdemux.home", filepath.Join(xdg.Home, ".flvdemux"))

	v.AutomaticEnv()
	v.BindEnv("ingest.addr", "FLVDEMUX_INGEST_ADDR")
	v.BindEnv("ingest.proxy_protocol", "FLVDEMUX_INGEST_PROXY_PROTOCOL")
	v.BindEnv("liveview.addr", "FLVDEMUX_LIVEVIEW_ADDR")
	v.BindEnv("remux.sink", "FLVDEMUX_REMUX_SINK")
	v.BindEnv("flvdemux.home", "FLVDEMUX_HOME")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths := []string{
		".",
		"$HOME/.flvdemux",
		"/etc/flvdemux",
	}
	for _, path := range configPaths {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
	}
}

// GetIngestAddr returns the TCP address the ingest server should listen on.
func GetIngestAddr() string {
	return v.GetString("ingest.addr")
}

// GetIngestProxyProtocol reports whether the ingest listener should expect
// a PROXY protocol header on each connection.
func GetIngestProxyProtocol() bool {
	return v.GetBool("ingest.proxy_protocol")
}

// GetLiveviewAddr returns the HTTP address the liveview server should
// listen on.
func GetLiveviewAddr() string {
	return v.GetString("liveview.addr")
}

// GetRemuxSink returns the remux sink selected by config or environment:
// one of "fmp4", "ts", "webm".
func GetRemuxSink() string {
	return v.GetString("remux.sink")
}

// GetHome returns the configured flvdemux home directory.
func GetHome() string {
	return v.GetString("flvdemux.home")
}
