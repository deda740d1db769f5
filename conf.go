package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

var conf *Conf

type Conf struct {
	App struct {
		Version string `toml:"version"`
		Title   string `toml:"title"`
	} `toml:"app"`
	Output struct {
		Directory      string   `toml:"directory"`
		LogDir         string   `toml:"logDir"`
		OutputTerminal bool     `toml:"outputTerminal"`
		Formats        []string `toml:"formats"`
	} `toml:"output"`
	Task struct {
		Workers   int `toml:"workers"`
		Timedelay int `toml:"timedelay"`
		Timeout   int `toml:"timeout"`
	} `toml:"task"`
	Tm struct {
		Name   string `toml:"name"`
		Max    int    `toml:"max"`
		Format string `toml:"format"`
		URL    string `toml:"url"`
		Token  string `toml:"token"`
	} `toml:"tm"`
	Server struct {
		Listen string `toml:"listen"`
	} `toml:"server"`
}

// InitConf 初始化配置
func InitConf(cfgFile string) {
	if cfgFile == "" {
		cfgFile = "conf.toml"
	}
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("config file(%s) not exist", cfgFile)
		os.Exit(1)
	}
	c, err := loadConf(cfgFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	conf = c
}

func loadConf(cfgFile string) (*Conf, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(cfgFile)
	v.AutomaticEnv() // read in environment variables that match
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("read config file(%s) error, details: %s\n", v.ConfigFileUsed(), err)
	}
	// 设置默认值
	v.SetDefault("app.version", "v 0.1.0")
	v.SetDefault("app.title", "Tile Viewport")
	v.SetDefault("output.directory", "output")
	v.SetDefault("output.outputTerminal", true)
	v.SetDefault("output.formats", []string{})
	v.SetDefault("task.workers", 4)
	v.SetDefault("task.timedelay", 0)
	v.SetDefault("task.timeout", 30)
	v.SetDefault("tm.name", "tiles")
	v.SetDefault("tm.max", 3)
	v.SetDefault("tm.format", PNG)
	v.SetDefault("server.listen", "")

	var c Conf
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", cfgFile, err)
	}
	if c.Tm.URL == "" {
		return nil, fmt.Errorf("config %s: tm.url is required", cfgFile)
	}
	return &c, nil
}
