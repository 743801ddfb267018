package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// Config structs

type Config struct {
	IsDebug bool `yaml:"is_debug"`

	DataDir string `yaml:"data_dir"`

	MySQL MySQL `yaml:"mysql"`
	Redis Redis `yaml:"redis"`
	Etcd  Etcd  `yaml:"etcd"`
	Nats  Nats  `yaml:"nats"`
	Grpc  Grpc  `yaml:"grpc"`
	HTTP  HTTP  `yaml:"http"`

	Sale Sale `yaml:"sale"`
	Auth Auth `yaml:"auth"`

	Env Env `yaml:"env"`
}

type MySQL struct {
	Main MySQLServer `yaml:"main"`
}

type MySQLServer struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Pass         string `yaml:"pass"`
	DB           string `yaml:"db"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type Redis struct {
	Main RedisServer `yaml:"main"`
}

type RedisServer struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
	Pass    string `yaml:"pass"`
	Timeout int    `yaml:"timeout"`
	TTL     int    `yaml:"ttl"` // seconds, snapshots and receipts
}

type Etcd struct {
	Main EtcdServer `yaml:"main"`
}

type EtcdServer struct {
	Enable bool   `yaml:"enable"`
	Url    string `yaml:"url"`
}

// Nats is used when etcd has no nats address registered.
type Nats struct {
	Url    string `yaml:"url"`
	Stream string `yaml:"stream"`
}

type Grpc struct {
	Addr string `yaml:"addr"` // listen address of the query service
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Sale struct {
	// CreditDecimals is how many base units make one credit, as a power of ten.
	CreditDecimals int32 `yaml:"credit_decimals"`
	// EnforceWindows rejects sales outside the machine's presale/pubsale windows.
	EnforceWindows bool `yaml:"enforce_windows"`
}

type Auth struct {
	// Keys maps a bearer token to the address it signs for.
	Keys map[string]string `yaml:"keys"`
}

type Env struct {
	XlogMode  string `yaml:"xlog_mode"`
	XlogColor bool   `yaml:"xlog_color"`
}

// Global variables

const DEVDATA = "/usr/local/vmledger/devdata"

var Shared *Config // single instance of the config

var ErrNoDataDir = errors.New("config: data_dir is required")

var (
	fConfig string // config file path
)

func init() {
	pflag.StringVar(&fConfig, "config", "", "specify the config file")
}

// Default is the config used for anything the file leaves out.
func Default() *Config {
	return &Config{
		DataDir: DEVDATA,
		MySQL: MySQL{Main: MySQLServer{
			Host:         "127.0.0.1",
			Port:         3306,
			DB:           "vmledger",
			MaxOpenConns: 8,
		}},
		Redis: Redis{Main: RedisServer{Addr: "127.0.0.1:6379", TTL: 3600}},
		Etcd:  Etcd{Main: EtcdServer{Url: "127.0.0.1:2379"}},
		Nats:  Nats{Url: "nats://127.0.0.1:4222", Stream: "VM"},
		Grpc:  Grpc{Addr: ":12341"},
		HTTP:  HTTP{Addr: ":8080"},
		Sale:  Sale{CreditDecimals: 9},
	}
}

// Load reads a yaml file over Default.
func Load(configFile string) (c *Config, err error) {
	file, err := os.Open(configFile)
	if err != nil {
		return
	}
	defer file.Close()

	c = Default()
	err = yaml.NewDecoder(file).Decode(c)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", configFile, err)
	}
	if c.DataDir == "" {
		return nil, ErrNoDataDir
	}
	return
}

// Initialize the Shared config with the given config file path
func Init(configFile string) {
	c, err := Load(configFile)
	if err != nil {
		panic(err)
	}
	Shared = c
}

// EasyInit picks --config, then config/config.yml, then the DEVDATA copy.
// pflag.Parse must have run.
func EasyInit() {
	fpath := fConfig
	if fpath == "" {
		fpath = "config/config.yml"
	}

	if _, err := os.Stat(fpath); os.IsNotExist(err) {
		fpath = DEVDATA + "/config.yml"
		printf(fmt.Sprintf("use config: %s (DEVDATA)", fpath))
	} else {
		printf(fmt.Sprintf("use config: %s", fpath))
	}

	Init(fpath)
}

// Print the given string to the standard output
func printf(s string) {
	fmt.Printf("%s %s\n", time.Now().Format("2006/01/02 15:04:05"), s)
}
