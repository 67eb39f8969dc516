package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hyperledger/fabric-chaincode-go/shim"
)

// Config is read from the environment. With CHAINCODE_SERVER_ADDRESS unset
// the peer launches the chaincode; otherwise it runs as an external service.
type Config struct {
	Version       string
	ServerAddress string
	CCID          string
	TLSDisabled   bool
	TLSKeyPath    string
	TLSCertPath   string
	TLSCAPath     string
}

// LoadConfig reads the chaincode configuration from the environment and
// checks that server mode has an ID and, unless disabled, TLS material.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Version:       getEnv("CHAINCODE_VERSION", "1.0"),
		ServerAddress: getEnv("CHAINCODE_SERVER_ADDRESS", ""),
		CCID:          getEnv("CHAINCODE_ID", ""),
		TLSKeyPath:    getEnv("CHAINCODE_TLS_KEY", ""),
		TLSCertPath:   getEnv("CHAINCODE_TLS_CERT", ""),
		TLSCAPath:     getEnv("CHAINCODE_CLIENT_CA_CERT", ""),
	}
	disabled, err := strconv.ParseBool(getEnv("CHAINCODE_TLS_DISABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHAINCODE_TLS_DISABLED: %v", err)
	}
	cfg.TLSDisabled = disabled

	if cfg.ServerAddress != "" && cfg.CCID == "" {
		return nil, fmt.Errorf("CHAINCODE_ID is required when CHAINCODE_SERVER_ADDRESS is set")
	}
	if cfg.ServerAddress != "" && !cfg.TLSDisabled && (cfg.TLSKeyPath == "" || cfg.TLSCertPath == "") {
		return nil, fmt.Errorf("CHAINCODE_TLS_KEY and CHAINCODE_TLS_CERT are required with TLS enabled")
	}
	return cfg, nil
}

// TLSProperties reads the key material named by the config.
func (c *Config) TLSProperties() (shim.TLSProperties, error) {
	if c.TLSDisabled {
		return shim.TLSProperties{Disabled: true}, nil
	}
	key, err := os.ReadFile(c.TLSKeyPath)
	if err != nil {
		return shim.TLSProperties{}, fmt.Errorf("failed to read TLS key: %v", err)
	}
	cert, err := os.ReadFile(c.TLSCertPath)
	if err != nil {
		return shim.TLSProperties{}, fmt.Errorf("failed to read TLS cert: %v", err)
	}
	props := shim.TLSProperties{Key: key, Cert: cert}
	if c.TLSCAPath != "" {
		ca, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return shim.TLSProperties{}, fmt.Errorf("failed to read client CA cert: %v", err)
		}
		props.ClientCACerts = ca
	}
	return props, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
