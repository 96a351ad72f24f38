package params

import (
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Exchange struct {
	PaymentSymbol   string
	PaymentDecimals uint8
	// Custodian holds bid escrow. It is also the EIP-712 verifying contract.
	Custodian common.Address
	ChainID   *big.Int
}

type Storage struct {
	DataDir string
	DBPath  string // Pebble directory; defaults to DataDir/votebook.db
}

type Log struct {
	File  string // defaults to DataDir/node.log
	Level string
}

type API struct {
	Addr        string
	CORSOrigins []string
}

// Kafka publishing is off when Brokers is empty
type Kafka struct {
	Brokers []string
	Topic   string
}

type Node struct {
	// DevSeed registers and enables one asset and funds the dev accounts at
	// startup when the store is empty. Never enable outside local devnets.
	DevSeed bool
}

type Config struct {
	Exchange Exchange
	Storage  Storage
	Log      Log
	API      API
	Kafka    Kafka
	Node     Node
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			PaymentSymbol:   "USDC",
			PaymentDecimals: 18,
			Custodian:       common.HexToAddress("0x000000000000000000000000000000000000C057"),
			ChainID:         big.NewInt(1337),
		},
		Storage: Storage{
			DataDir: "data",
		},
		Log: Log{
			Level: "info",
		},
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Kafka: Kafka{
			Topic: "votebook.events",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if v := os.Getenv("PAYMENT_SYMBOL"); v != "" {
		cfg.Exchange.PaymentSymbol = v
	}
	if v := os.Getenv("PAYMENT_DECIMALS"); v != "" {
		d, err := strconv.ParseUint(v, 10, 8)
		if err != nil || d > 77 {
			return Config{}, errors.Newf("PAYMENT_DECIMALS: invalid value %q", v)
		}
		cfg.Exchange.PaymentDecimals = uint8(d)
	}
	if v := os.Getenv("CUSTODIAN_ADDRESS"); v != "" {
		if !common.IsHexAddress(v) {
			return Config{}, errors.Newf("CUSTODIAN_ADDRESS: invalid address %q", v)
		}
		cfg.Exchange.Custodian = common.HexToAddress(v)
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, ok := new(big.Int).SetString(v, 10)
		if !ok || id.Sign() <= 0 {
			return Config{}, errors.Newf("CHAIN_ID: invalid value %q", v)
		}
		cfg.Exchange.ChainID = id
	}

	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.DBPath = getEnv("DB_PATH", filepath.Join(cfg.Storage.DataDir, "votebook.db"))
	cfg.Log.File = getEnv("LOG_FILE", filepath.Join(cfg.Storage.DataDir, "node.log"))
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.API.CORSOrigins = splitList(v)
	}

	// Brokers from comma-separated list
	// Example: "localhost:9092,localhost:9093"
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	if v := os.Getenv("DEV_SEED"); v != "" {
		seed, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, errors.Newf("DEV_SEED: invalid value %q", v)
		}
		cfg.Node.DevSeed = seed
	}

	return cfg, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
