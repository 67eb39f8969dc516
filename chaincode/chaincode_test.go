package chaincode

import (
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/stretchr/testify/require"
)

const (
	admin     = "x509::CN=admin::CN=ca"
	lab       = "x509::CN=lab::CN=ca"
	processor = "x509::CN=processor::CN=ca"
	stranger  = "x509::CN=collector::CN=ca"
)

type fakeIdentity struct {
	id string
}

var _ cid.ClientIdentity = (*fakeIdentity)(nil)

func (f *fakeIdentity) GetID() (string, error) {
	if f.id == "" {
		return "", errors.New("no identity")
	}
	return f.id, nil
}

func (f *fakeIdentity) GetMSPID() (string, error) { return "Org1MSP", nil }

func (f *fakeIdentity) GetAttributeValue(string) (string, bool, error) { return "", false, nil }

func (f *fakeIdentity) AssertAttributeValue(string, string) error { return nil }

func (f *fakeIdentity) GetX509Certificate() (*x509.Certificate, error) { return nil, nil }

type testEnv struct {
	stub *shimtest.MockStub
	cc   *SmartContract
	txn  int
}

func setupStub(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		stub: shimtest.NewMockStub("trueroots", nil),
		cc:   &SmartContract{},
	}
}

// as opens a new mock transaction submitted by caller.
func (e *testEnv) as(caller string) *contractapi.TransactionContext {
	e.txn++
	e.stub.MockTransactionStart(fmt.Sprintf("tx%d", e.txn))
	ctx := new(contractapi.TransactionContext)
	ctx.SetStub(e.stub)
	ctx.SetClientIdentity(&fakeIdentity{id: caller})
	return ctx
}

func (e *testEnv) snapshot() map[string]string {
	out := map[string]string{}
	for k, v := range e.stub.State {
		out[k] = string(v)
	}
	return out
}

func (e *testEnv) status(t *testing.T) Status {
	t.Helper()
	st, err := LoadState(e.stub)
	require.NoError(t, err)
	return st.Status
}

func (e *testEnv) drainEvents() []string {
	var names []string
	for {
		select {
		case ev := <-e.stub.ChaincodeEventsChannel:
			names = append(names, ev.EventName)
		default:
			return names
		}
	}
}

// initialized returns an env after Initialize and CreateBatch.
func initialized(t *testing.T) *testEnv {
	t.Helper()
	e := setupStub(t)
	require.NoError(t, e.cc.Initialize(e.as(admin), admin, lab, processor, 0, 1_000_000))
	require.NoError(t, e.cc.CreateBatch(e.as(stranger), "B1", "C1", 1700000000, "12.97,77.59", "Ashwagandha", 5))
	return e
}

func TestNewChaincode(t *testing.T) {
	_, err := contractapi.NewChaincode(&SmartContract{})
	require.NoError(t, err)
}

func TestHappyPath(t *testing.T) {
	e := setupStub(t)

	require.NoError(t, e.cc.Initialize(e.as(admin), admin, lab, processor, 0, 1_000_000))
	require.Equal(t, StatusInitialized, e.status(t))

	require.NoError(t, e.cc.CreateBatch(e.as(stranger), "B1", "C1", 1700000000, "12.97,77.59", "Ashwagandha", 5))
	require.Equal(t, StatusCollected, e.status(t))

	require.NoError(t, e.cc.VerifyQc(e.as(lab), "cidLab1", 96, 1700001000))
	require.Equal(t, StatusQCVerified, e.status(t))

	require.NoError(t, e.cc.ProcessBatch(e.as(processor), "cidImg1", "QR1", 1700002000))
	require.Equal(t, StatusProcessed, e.status(t))

	require.NoError(t, e.cc.ShipBatch(e.as(processor)))
	require.Equal(t, StatusShipped, e.status(t))

	require.NoError(t, e.cc.MarkRewardDistributed(e.as(admin)))
	roles, err := e.cc.ReadRoles(e.as(stranger))
	require.NoError(t, err)
	require.True(t, roles.RewardDistributed)

	out, err := e.cc.Provenance(e.as(stranger))
	require.NoError(t, err)
	require.Equal(t, "B1|SHIPPED|Ashwagandha|12.97,77.59|cidLab1|cidImg1|QR1", out)

	require.Equal(t, []string{
		"Initialize", "CreateBatch", "VerifyQc", "ProcessBatch", "ShipBatch", "MarkRewardDistributed",
	}, e.drainEvents())
}

func TestInitialize(t *testing.T) {
	e := setupStub(t)
	require.NoError(t, e.cc.Initialize(e.as(admin), admin, lab, processor, 7, 500))

	roles, err := e.cc.ReadRoles(e.as(stranger))
	require.NoError(t, err)
	require.Equal(t, &RoleView{Admin: admin, Lab: lab, Processor: processor, RewardAssetID: 7, BaseRewardAmount: 500}, roles)

	before := e.snapshot()
	err = e.cc.Initialize(e.as(stranger), stranger, stranger, stranger, 0, 0)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Equal(t, before, e.snapshot())
}

func TestInitializeCannotReplaceAdmin(t *testing.T) {
	e := setupStub(t)
	require.NoError(t, e.cc.Initialize(e.as(admin), admin, lab, processor, 0, 0))

	for _, caller := range []string{stranger, lab, admin} {
		err := e.cc.Initialize(e.as(caller), caller, caller, caller, 1, 1)
		require.ErrorIs(t, err, ErrAlreadyInitialized)
	}
	roles, err := e.cc.ReadRoles(e.as(stranger))
	require.NoError(t, err)
	require.Equal(t, admin, roles.Admin)
	require.Equal(t, lab, roles.Lab)
	require.Equal(t, processor, roles.Processor)

	// The original admin keeps its rights.
	require.NoError(t, e.cc.UpdateAuthorities(e.as(admin), lab, processor, 9))
	require.ErrorIs(t, e.cc.UpdateAuthorities(e.as(stranger), stranger, stranger, 9), ErrNotAdmin)
}

func TestOperationsBeforeInitialize(t *testing.T) {
	e := setupStub(t)

	err := e.cc.CreateBatch(e.as(stranger), "B1", "C1", 1, "1,2", "Tulsi", 1)
	require.ErrorIs(t, err, ErrNotInitialized)
	err = e.cc.VerifyQc(e.as(lab), "cid", 50, 1)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = e.cc.ReadRoles(e.as(stranger))
	require.ErrorIs(t, err, ErrNotInitialized)
	require.Empty(t, e.stub.State)
}

func TestCreateBatch(t *testing.T) {
	e := initialized(t)

	batch, err := e.cc.ReadBatch(e.as(stranger))
	require.NoError(t, err)
	require.Equal(t, BatchRecord{
		BatchID: "B1", Collector: "C1", CollectedAt: 1700000000,
		Geo: "12.97,77.59", Species: "Ashwagandha", QuantityKg: 5,
	}, batch.Batch)
	require.Nil(t, batch.QC)
	require.Nil(t, batch.Processing)

	// Duplicate with any arguments
	before := e.snapshot()
	err = e.cc.CreateBatch(e.as(admin), "B2", "C2", 1, "0,0", "Neem", 9)
	require.ErrorIs(t, err, ErrBatchAlreadyExists)
	require.Equal(t, before, e.snapshot())

	err = e.cc.CreateBatch(e.as(admin), "B2", "C2", 1, "0,0", "Neem", 0)
	require.ErrorIs(t, err, ErrBatchAlreadyExists)
}

func TestCreateBatchQuantity(t *testing.T) {
	e := setupStub(t)
	require.NoError(t, e.cc.Initialize(e.as(admin), admin, lab, processor, 0, 0))

	before := e.snapshot()
	err := e.cc.CreateBatch(e.as(stranger), "B1", "C1", 1, "1,2", "Tulsi", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Equal(t, before, e.snapshot())

	require.NoError(t, e.cc.CreateBatch(e.as(stranger), "B1", "C1", 1, "1,2", "Tulsi", 1))
}

func TestVerifyQcNotLab(t *testing.T) {
	e := initialized(t)
	for _, caller := range []string{admin, processor, stranger} {
		before := e.snapshot()
		err := e.cc.VerifyQc(e.as(caller), "cidLab1", 50, 1)
		require.ErrorIs(t, err, ErrNotLab, caller)
		require.Equal(t, before, e.snapshot())
		require.Equal(t, StatusCollected, e.status(t))
	}
}

func TestVerifyQcScore(t *testing.T) {
	e := initialized(t)
	before := e.snapshot()
	err := e.cc.VerifyQc(e.as(lab), "cidLab1", 101, 1)
	require.ErrorIs(t, err, ErrScoreOutOfRange)
	require.Equal(t, before, e.snapshot())

	require.NoError(t, e.cc.VerifyQc(e.as(lab), "cidLab1", 100, 1))

	e = initialized(t)
	require.NoError(t, e.cc.VerifyQc(e.as(lab), "cidLab1", 0, 1))
	batch, err := e.cc.ReadBatch(e.as(stranger))
	require.NoError(t, err)
	require.Equal(t, &QCRecord{LabCertCID: "cidLab1", AuthenticityScore: 0, QCAt: 1}, batch.QC)
}

func TestVerifyQcTwice(t *testing.T) {
	e := initialized(t)
	require.NoError(t, e.cc.VerifyQc(e.as(lab), "cidLab1", 90, 1))
	err := e.cc.VerifyQc(e.as(lab), "cidLab2", 90, 2)
	require.ErrorIs(t, err, ErrInvalidPhase)
}

func TestProcessBatchOutOfOrder(t *testing.T) {
	e := initialized(t)
	before := e.snapshot()
	err := e.cc.ProcessBatch(e.as(processor), "cidImg1", "QR1", 1)
	require.ErrorIs(t, err, ErrInvalidPhase)
	require.Equal(t, before, e.snapshot())
	require.Equal(t, StatusCollected, e.status(t))
}

func TestProcessBatchRecordsCaller(t *testing.T) {
	e := initialized(t)
	require.NoError(t, e.cc.VerifyQc(e.as(lab), "cidLab1", 90, 1))

	err := e.cc.ProcessBatch(e.as(admin), "cidImg1", "QR1", 2)
	require.ErrorIs(t, err, ErrNotProcessor)

	require.NoError(t, e.cc.ProcessBatch(e.as(processor), "cidImg1", "QR1", 2))
	batch, err := e.cc.ReadBatch(e.as(stranger))
	require.NoError(t, err)
	require.Equal(t, &ProcessingRecord{Processor: processor, ProcAt: 2, FinalImageCID: "cidImg1", ConsumerQRPayload: "QR1"}, batch.Processing)
}

func TestShipBatch(t *testing.T) {
	e := initialized(t)
	err := e.cc.ShipBatch(e.as(admin))
	require.ErrorIs(t, err, ErrInvalidPhase)

	require.NoError(t, e.cc.VerifyQc(e.as(lab), "cidLab1", 90, 1))
	require.NoError(t, e.cc.ProcessBatch(e.as(processor), "cidImg1", "QR1", 2))

	err = e.cc.ShipBatch(e.as(lab))
	require.ErrorIs(t, err, ErrNotProcessor)

	require.NoError(t, e.cc.ShipBatch(e.as(admin)))
	require.Equal(t, StatusShipped, e.status(t))

	// Terminal
	err = e.cc.ShipBatch(e.as(processor))
	require.ErrorIs(t, err, ErrInvalidPhase)
}

func TestMarkRewardDistributed(t *testing.T) {
	e := initialized(t)

	err := e.cc.MarkRewardDistributed(e.as(admin))
	require.ErrorIs(t, err, ErrInvalidPhase)

	require.NoError(t, e.cc.VerifyQc(e.as(lab), "cidLab1", 90, 1))

	err = e.cc.MarkRewardDistributed(e.as(processor))
	require.ErrorIs(t, err, ErrNotAdmin)

	require.NoError(t, e.cc.MarkRewardDistributed(e.as(admin)))

	before := e.snapshot()
	err = e.cc.MarkRewardDistributed(e.as(admin))
	require.ErrorIs(t, err, ErrRewardAlreadyDistributed)
	require.Equal(t, before, e.snapshot())

	// Still rejected after the batch moves on.
	require.NoError(t, e.cc.ProcessBatch(e.as(processor), "cidImg1", "QR1", 2))
	require.NoError(t, e.cc.ShipBatch(e.as(processor)))
	err = e.cc.MarkRewardDistributed(e.as(admin))
	require.ErrorIs(t, err, ErrRewardAlreadyDistributed)
}

func TestUpdateAuthorities(t *testing.T) {
	e := initialized(t)
	const newLab = "x509::CN=lab2::CN=ca"
	const newProc = "x509::CN=proc2::CN=ca"

	before := e.snapshot()
	err := e.cc.UpdateAuthorities(e.as(lab), newLab, newProc, 1)
	require.ErrorIs(t, err, ErrNotAdmin)
	require.Equal(t, before, e.snapshot())

	require.NoError(t, e.cc.UpdateAuthorities(e.as(admin), newLab, newProc, 42))
	roles, err := e.cc.ReadRoles(e.as(stranger))
	require.NoError(t, err)
	require.Equal(t, admin, roles.Admin)
	require.Equal(t, uint64(42), roles.BaseRewardAmount)

	err = e.cc.VerifyQc(e.as(lab), "cidLab1", 90, 1)
	require.ErrorIs(t, err, ErrNotLab)
	require.NoError(t, e.cc.VerifyQc(e.as(newLab), "cidLab1", 90, 1))

	err = e.cc.ProcessBatch(e.as(processor), "cidImg1", "QR1", 2)
	require.ErrorIs(t, err, ErrNotProcessor)
	require.NoError(t, e.cc.ProcessBatch(e.as(newProc), "cidImg1", "QR1", 2))
}

func TestProvenance(t *testing.T) {
	e := setupStub(t)
	require.NoError(t, e.cc.Initialize(e.as(admin), admin, lab, processor, 0, 0))

	_, err := e.cc.Provenance(e.as(stranger))
	require.ErrorIs(t, err, ErrNoBatch)

	require.NoError(t, e.cc.CreateBatch(e.as(stranger), "B1", "C1", 1, "1,2", "Tulsi", 3))
	out, err := e.cc.Provenance(e.as(stranger))
	require.NoError(t, err)
	require.Equal(t, "B1|COLLECTED|Tulsi|1,2|||", out)

	// A recorded empty CID is still distinguishable in the record itself.
	require.NoError(t, e.cc.VerifyQc(e.as(lab), "", 80, 2))
	out, err = e.cc.Provenance(e.as(stranger))
	require.NoError(t, err)
	require.Equal(t, "B1|QC_VERIFIED|Tulsi|1,2|||", out)
	batch, err := e.cc.ReadBatch(e.as(stranger))
	require.NoError(t, err)
	require.NotNil(t, batch.QC)
}

func TestEventPayload(t *testing.T) {
	e := setupStub(t)
	require.NoError(t, e.cc.Initialize(e.as(admin), admin, lab, processor, 0, 0))

	ev := <-e.stub.ChaincodeEventsChannel
	require.Equal(t, "Initialize", ev.EventName)
	var payload Event
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	require.Equal(t, Event{Operation: "Initialize", TxID: "tx1", Caller: admin, Status: StatusInitialized}, payload)

	// Rejected transactions emit nothing.
	_ = e.cc.Initialize(e.as(admin), admin, lab, processor, 0, 0)
	require.Empty(t, e.drainEvents())
}

func TestMissingIdentity(t *testing.T) {
	e := setupStub(t)
	err := e.cc.Initialize(e.as(""), admin, lab, processor, 0, 0)
	require.Error(t, err)
	require.Empty(t, e.stub.State)
}

func TestReadLayout(t *testing.T) {
	e := setupStub(t)
	l, err := e.cc.ReadLayout(e.as(stranger))
	require.NoError(t, err)
	require.Equal(t, 8, l.UintSlots)
	require.Equal(t, 12, l.BytesSlots)
	require.Len(t, l.Keys, 20)
}

func TestErrorText(t *testing.T) {
	e := initialized(t)
	err := e.cc.VerifyQc(e.as(stranger), "cidLab1", 50, 1)
	require.EqualError(t, err, "E_LAB: caller is not the lab (VerifyQc)")
	code, ok := CodeOf(errors.New(err.Error()))
	require.True(t, ok)
	require.Equal(t, CodeNotLab, code)
}
