/*
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"log"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"trueroots-chaincode/chaincode"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Panicf("Error loading config: %v", err)
	}

	cc, err := contractapi.NewChaincode(&chaincode.SmartContract{})
	if err != nil {
		log.Panicf("Error creating trueroots chaincode: %v", err)
	}
	cc.Info.Title = "TrueRoots batch provenance"
	cc.Info.Version = cfg.Version

	if cfg.ServerAddress == "" {
		if err := cc.Start(); err != nil {
			log.Panicf("Error starting trueroots chaincode: %v", err)
		}
		return
	}

	tls, err := cfg.TLSProperties()
	if err != nil {
		log.Panicf("Error loading TLS material: %v", err)
	}
	server := &shim.ChaincodeServer{
		CCID:     cfg.CCID,
		Address:  cfg.ServerAddress,
		CC:       cc,
		TLSProps: tls,
	}
	log.Printf("Starting trueroots chaincode service %s on %s", cfg.CCID, cfg.ServerAddress)
	if err := server.Start(); err != nil {
		log.Panicf("Error starting trueroots chaincode service: %v", err)
	}
}
