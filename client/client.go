// Package client submits TrueRoots transactions through a Fabric gateway.
package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hyperledger/fabric-sdk-go/pkg/core/config"
	"github.com/hyperledger/fabric-sdk-go/pkg/gateway"

	"trueroots-chaincode/chaincode"
	"trueroots-chaincode/provenance"
)

// Contract is the subset of *gateway.Contract the client uses.
type Contract interface {
	SubmitTransaction(name string, args ...string) ([]byte, error)
	EvaluateTransaction(name string, args ...string) ([]byte, error)
}

// Config locates the connection profile and the signing identity.
type Config struct {
	ConnectionProfile string
	WalletPath        string
	Label             string
	Channel           string
	Chaincode         string
	MSPID             string
	CertPath          string
	KeyPath           string
}

// LoadConfig reads the client configuration from the environment.
func LoadConfig() Config {
	return Config{
		ConnectionProfile: getEnv("FABRIC_CONFIG", "connection-profile.yaml"),
		WalletPath:        getEnv("FABRIC_WALLET", "wallet"),
		Label:             getEnv("FABRIC_IDENTITY", "appUser"),
		Channel:           getEnv("FABRIC_CHANNEL", "channel1"),
		Chaincode:         getEnv("FABRIC_CHAINCODE", "trueroots"),
		MSPID:             getEnv("MSP_ID", "Org1MSP"),
		CertPath:          getEnv("CERT_PATH", ""),
		KeyPath:           getEnv("KEY_PATH", ""),
	}
}

// Client submits and evaluates contract transactions.
type Client struct {
	contract Contract
	gw       *gateway.Gateway
}

// New wraps an existing contract handle.
func New(c Contract) *Client {
	return &Client{contract: c}
}

// Connect opens a gateway connection, adding the identity to the wallet on
// first use.
func Connect(cfg Config) (*Client, error) {
	wallet, err := gateway.NewFileSystemWallet(cfg.WalletPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %v", err)
	}
	if !wallet.Exists(cfg.Label) {
		if err := populateWallet(wallet, cfg); err != nil {
			return nil, fmt.Errorf("failed to populate wallet: %v", err)
		}
	}

	gw, err := gateway.Connect(
		gateway.WithConfig(config.FromFile(filepath.Clean(cfg.ConnectionProfile))),
		gateway.WithIdentity(wallet, cfg.Label),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gateway: %v", err)
	}
	network, err := gw.GetNetwork(cfg.Channel)
	if err != nil {
		gw.Close()
		return nil, fmt.Errorf("failed to get network: %v", err)
	}
	return &Client{contract: network.GetContract(cfg.Chaincode), gw: gw}, nil
}

func populateWallet(wallet *gateway.Wallet, cfg Config) error {
	cert, err := os.ReadFile(filepath.Clean(cfg.CertPath))
	if err != nil {
		return err
	}
	key, err := os.ReadFile(filepath.Clean(cfg.KeyPath))
	if err != nil {
		return err
	}
	return wallet.Put(cfg.Label, gateway.NewX509Identity(cfg.MSPID, string(cert), string(key)))
}

// Close releases the gateway connection, if any.
func (c *Client) Close() {
	if c.gw != nil {
		c.gw.Close()
	}
}

// Initialize sets the role registry. A definition committed with
// --init-required takes it as the peer CLI's --isInit call instead.
func (c *Client) Initialize(admin, lab, processor string, rewardAssetID, baseReward uint64) error {
	return c.submit("Initialize", admin, lab, processor, u64(rewardAssetID), u64(baseReward))
}

// CreateBatch records a new batch. Fields that appear in the provenance
// snapshot are checked for the separator first.
func (c *Client) CreateBatch(b chaincode.BatchRecord) error {
	if err := checkFields(b.BatchID, b.Geo, b.Species); err != nil {
		return err
	}
	return c.submit("CreateBatch", b.BatchID, b.Collector, u64(b.CollectedAt), b.Geo, b.Species, u64(b.QuantityKg))
}

// VerifyQc records the lab result; the signing identity must be the lab.
func (c *Client) VerifyQc(labCertCID string, authenticityScore, qcAt uint64) error {
	if err := checkFields(labCertCID); err != nil {
		return err
	}
	return c.submit("VerifyQc", labCertCID, u64(authenticityScore), u64(qcAt))
}

// ProcessBatch records processing; the signing identity must be the processor.
func (c *Client) ProcessBatch(finalImageCID, consumerQRPayload string, procAt uint64) error {
	if err := checkFields(finalImageCID, consumerQRPayload); err != nil {
		return err
	}
	return c.submit("ProcessBatch", finalImageCID, consumerQRPayload, u64(procAt))
}

// ShipBatch marks the batch shipped.
func (c *Client) ShipBatch() error {
	return c.submit("ShipBatch")
}

// MarkRewardDistributed records the attestation. The caller pays the
// reward separately.
func (c *Client) MarkRewardDistributed() error {
	return c.submit("MarkRewardDistributed")
}

// UpdateAuthorities replaces the lab, the processor and the base reward.
func (c *Client) UpdateAuthorities(newLab, newProcessor string, newBaseReward uint64) error {
	return c.submit("UpdateAuthorities", newLab, newProcessor, u64(newBaseReward))
}

// Provenance evaluates the provenance query and decodes the snapshot.
func (c *Client) Provenance() (provenance.Record, error) {
	out, err := c.evaluate("Provenance")
	if err != nil {
		return provenance.Record{}, err
	}
	return provenance.Parse(string(out))
}

// ReadBatch returns the batch with its optional QC and processing records.
func (c *Client) ReadBatch() (*chaincode.BatchView, error) {
	var v chaincode.BatchView
	if err := c.evaluateJSON("ReadBatch", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadRoles returns the role registry.
func (c *Client) ReadRoles() (*chaincode.RoleView, error) {
	var v chaincode.RoleView
	if err := c.evaluateJSON("ReadRoles", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) submit(name string, args ...string) error {
	if _, err := c.contract.SubmitTransaction(name, args...); err != nil {
		return fmt.Errorf("submit %s: %w", name, err)
	}
	return nil
}

func (c *Client) evaluate(name string, args ...string) ([]byte, error) {
	out, err := c.contract.EvaluateTransaction(name, args...)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", name, err)
	}
	return out, nil
}

func (c *Client) evaluateJSON(name string, v interface{}) error {
	out, err := c.evaluate(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out, v); err != nil {
		return fmt.Errorf("failed to decode %s result: %v", name, err)
	}
	return nil
}

func checkFields(vals ...string) error {
	for _, v := range vals {
		if err := provenance.CheckField(v); err != nil {
			return err
		}
	}
	return nil
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
