/*
SPDX-License-Identifier: Apache-2.0
*/

package chaincode

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"trueroots-chaincode/provenance"
)

// Event is the payload of the chaincode event emitted by every successful
// state-changing transaction. The event name is the operation name.
type Event struct {
	Operation string `json:"operation"`
	TxID      string `json:"txId"`
	Caller    string `json:"caller"`
	Status    Status `json:"status"`
}

// SmartContract records the custody lifecycle of a single herb batch.
type SmartContract struct {
	contractapi.Contract
}

// Initialize sets the authorities and reward parameters. It succeeds once per
// deployment.
func (s *SmartContract) Initialize(ctx contractapi.TransactionContextInterface, admin, lab, processor string, rewardAssetID, baseReward uint64) error {
	return s.submit(ctx, Initialize{
		Admin:            admin,
		Lab:              lab,
		Processor:        processor,
		RewardAssetID:    rewardAssetID,
		BaseRewardAmount: baseReward,
	})
}

// CreateBatch records the collection facts. Any caller may create the batch.
func (s *SmartContract) CreateBatch(ctx contractapi.TransactionContextInterface, batchID, collector string, collectedAt uint64, geo, species string, quantityKg uint64) error {
	return s.submit(ctx, CreateBatch{
		BatchID:     batchID,
		Collector:   collector,
		CollectedAt: collectedAt,
		Geo:         geo,
		Species:     species,
		QuantityKg:  quantityKg,
	})
}

// VerifyQc attaches the lab result. Only the lab may call it.
func (s *SmartContract) VerifyQc(ctx contractapi.TransactionContextInterface, labCertCID string, authenticityScore, qcAt uint64) error {
	return s.submit(ctx, VerifyQc{
		LabCertCID:        labCertCID,
		AuthenticityScore: authenticityScore,
		QCAt:              qcAt,
	})
}

// ProcessBatch attaches the processing output. Only the processor may call it.
func (s *SmartContract) ProcessBatch(ctx contractapi.TransactionContextInterface, finalImageCID, consumerQRPayload string, procAt uint64) error {
	return s.submit(ctx, ProcessBatch{
		FinalImageCID:     finalImageCID,
		ConsumerQRPayload: consumerQRPayload,
		ProcAt:            procAt,
	})
}

// ShipBatch marks the batch shipped. Admin or processor.
func (s *SmartContract) ShipBatch(ctx contractapi.TransactionContextInterface) error {
	return s.submit(ctx, ShipBatch{})
}

// MarkRewardDistributed attests that the collector reward was paid. The
// payment itself happens outside this contract.
func (s *SmartContract) MarkRewardDistributed(ctx contractapi.TransactionContextInterface) error {
	return s.submit(ctx, MarkRewardDistributed{})
}

// UpdateAuthorities replaces the lab, the processor and the base reward.
func (s *SmartContract) UpdateAuthorities(ctx contractapi.TransactionContextInterface, newLab, newProcessor string, newBaseReward uint64) error {
	return s.submit(ctx, UpdateAuthorities{
		Lab:              newLab,
		Processor:        newProcessor,
		BaseRewardAmount: newBaseReward,
	})
}

// Provenance returns the delimited provenance snapshot.
func (s *SmartContract) Provenance(ctx contractapi.TransactionContextInterface) (string, error) {
	st, err := LoadState(ctx.GetStub())
	if err != nil {
		return "", err
	}
	return Snapshot(st)
}

// ReadBatch returns the full batch record with its attached records.
func (s *SmartContract) ReadBatch(ctx contractapi.TransactionContextInterface) (*BatchView, error) {
	st, err := LoadState(ctx.GetStub())
	if err != nil {
		return nil, err
	}
	b, ok := st.Batch.Get()
	if !ok {
		return nil, ErrNoBatch
	}
	view := &BatchView{Status: st.Status, Batch: b}
	if r, ok := st.Roles.Get(); ok {
		view.RewardDistributed = r.RewardDistributed
	}
	if q, ok := st.QC.Get(); ok {
		view.QC = &q
	}
	if p, ok := st.Processing.Get(); ok {
		view.Processing = &p
	}
	return view, nil
}

// ReadRoles returns the role registry.
func (s *SmartContract) ReadRoles(ctx contractapi.TransactionContextInterface) (*RoleView, error) {
	st, err := LoadState(ctx.GetStub())
	if err != nil {
		return nil, err
	}
	r, ok := st.Roles.Get()
	if !ok {
		return nil, ErrNotInitialized
	}
	return &RoleView{
		Admin:             r.Admin,
		Lab:               r.Lab,
		Processor:         r.Processor,
		RewardAssetID:     r.RewardAssetID,
		BaseRewardAmount:  r.BaseRewardAmount,
		RewardDistributed: r.RewardDistributed,
	}, nil
}

// ReadLayout returns the durable slot schema.
func (s *SmartContract) ReadLayout(ctx contractapi.TransactionContextInterface) (*Layout, error) {
	l := SlotLayout()
	return &l, nil
}

// Snapshot renders st in the provenance format. Records that have not been
// attached yet become empty segments.
func Snapshot(st State) (string, error) {
	b, ok := st.Batch.Get()
	if !ok {
		return "", ErrNoBatch
	}
	rec := provenance.Record{
		BatchID: b.BatchID,
		Status:  string(st.Status),
		Species: b.Species,
		Geo:     b.Geo,
	}
	if q, ok := st.QC.Get(); ok {
		rec.LabCertCID = q.LabCertCID
	}
	if p, ok := st.Processing.Get(); ok {
		rec.FinalImageCID = p.FinalImageCID
		rec.ConsumerQR = p.ConsumerQRPayload
	}
	return provenance.Encode(rec), nil
}

// submit runs one state-changing operation as a single transaction: nothing
// is written unless every check passes.
func (s *SmartContract) submit(ctx contractapi.TransactionContextInterface, op Operation) error {
	caller, err := s.callerID(ctx)
	if err != nil {
		return err
	}
	stub := ctx.GetStub()
	before, err := LoadState(stub)
	if err != nil {
		return err
	}
	after, err := Apply(before, caller, op)
	if err != nil {
		return fmt.Errorf("%w (%s)", err, op.OperationName())
	}
	if err := SaveState(stub, before, after); err != nil {
		return err
	}

	ev, err := json.Marshal(Event{
		Operation: op.OperationName(),
		TxID:      stub.GetTxID(),
		Caller:    caller,
		Status:    after.Status,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}
	return stub.SetEvent(op.OperationName(), ev)
}

// callerID returns the submitting client's identity, the value the role
// registry compares against.
func (s *SmartContract) callerID(ctx contractapi.TransactionContextInterface) (string, error) {
	var identity cid.ClientIdentity = ctx.GetClientIdentity()
	if identity == nil {
		return "", fmt.Errorf("failed to read client identity: none in context")
	}
	id, err := identity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to read client identity: %v", err)
	}
	return id, nil
}
