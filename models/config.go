package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はサーバー全体の設定です。config.json または config.yaml から読み込みます。
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	Ranking  RankingConfig  `json:"ranking" yaml:"ranking"`
	Race     RaceConfig     `json:"race" yaml:"race"`
	GameData GameDataConfig `json:"gameData" yaml:"gameData"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

type ServerConfig struct {
	Port         int      `json:"port" yaml:"port"`
	AllowOrigins []string `json:"allowOrigins" yaml:"allowOrigins"`
}

// StoreConfig は共有ストアの実装を選びます（"redis" または "memory"）
type StoreConfig struct {
	Backend string `json:"backend" yaml:"backend"`
}

type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

// PostgresConfig 構造体はデータベース接続の設定情報を保持します。
type PostgresConfig struct {
	DBHost     string `json:"db_host" yaml:"db_host"`
	DBPort     int    `json:"db_port" yaml:"db_port"`
	DBUser     string `json:"db_user" yaml:"db_user"`
	DBPassword string `json:"db_password" yaml:"db_password"`
	DBName     string `json:"db_name" yaml:"db_name"`
	DBSSLMode  string `json:"db_sslmode" yaml:"db_sslmode"`
	URL        string `json:"url" yaml:"url"` // 指定されていれば他の項目より優先
}

// RankingConfig はランキングの保存先を選びます（"store" または "postgres"）
type RankingConfig struct {
	Backend      string `json:"backend" yaml:"backend"`
	DefaultLimit int    `json:"defaultLimit" yaml:"defaultLimit"`
}

type RaceConfig struct {
	MinWinTime        Duration `json:"minWinTime" yaml:"minWinTime"`
	ReaperInterval    Duration `json:"reaperInterval" yaml:"reaperInterval"`
	InactivityTimeout Duration `json:"inactivityTimeout" yaml:"inactivityTimeout"`
	HeartbeatInterval Duration `json:"heartbeatInterval" yaml:"heartbeatInterval"`
	ProgressDebounce  Duration `json:"progressDebounce" yaml:"progressDebounce"`
}

type GameDataConfig struct {
	URL     string   `json:"url" yaml:"url"`
	File    string   `json:"file" yaml:"file"`
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

type LogConfig struct {
	Development bool `json:"development" yaml:"development"`
}

// DefaultConfig は設定ファイルに無い項目の既定値です
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Store:  StoreConfig{Backend: "redis"},
		Redis:  RedisConfig{Addr: "localhost:6379", KeyPrefix: "wikirace:"},
		Postgres: PostgresConfig{
			DBHost:    "localhost",
			DBPort:    5432,
			DBSSLMode: "disable",
		},
		Ranking: RankingConfig{Backend: "store", DefaultLimit: 30},
		Race: RaceConfig{
			MinWinTime:        Duration(time.Second),
			ReaperInterval:    Duration(15 * time.Second),
			InactivityTimeout: Duration(5 * time.Minute),
			HeartbeatInterval: Duration(5 * time.Second),
			ProgressDebounce:  Duration(500 * time.Millisecond),
		},
		GameData: GameDataConfig{Timeout: Duration(10 * time.Second)},
	}
}

// Duration は "5m" や "500ms" のような文字列で書ける time.Duration です
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		// 数値はミリ秒として扱う
		*d = Duration(time.Duration(val) * time.Millisecond)
	case int:
		*d = Duration(time.Duration(val) * time.Millisecond)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}
