/*
SPDX-License-Identifier: Apache-2.0
*/

package chaincode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hyperledger/fabric-chaincode-go/shim"
)

// Store is the part of the chaincode stub the state layer needs.
type Store interface {
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
	DelState(key string) error
}

var _ Store = shim.ChaincodeStubInterface(nil)

type slotKind byte

const (
	kindUint  slotKind = 'u'
	kindBytes slotKind = 'b'
)

const slotPrefix = "SLOT_"

const (
	slotAdmin       = "admin"
	slotLab         = "auth_lab"
	slotProcessor   = "auth_proc"
	slotRewardAsset = "reward_asa"
	slotBaseReward  = "base_reward"
	slotRewardDone  = "reward_done"
	slotBatchID     = "batch_id"
	slotCollector   = "collector"
	slotCollectedAt = "collected_at"
	slotGeo         = "geo"
	slotSpecies     = "species"
	slotQuantityKg  = "quantity_kg"
	slotStatus      = "status"
	slotLabCertCID  = "lab_cert_cid"
	slotQCAt        = "qc_at"
	slotScore       = "authenticity_score"
	slotProcBy      = "processor"
	slotProcAt      = "proc_at"
	slotFinalImage  = "final_img_cid"
	slotConsumerQR  = "consumer_qr"
)

// The slot schema is fixed; adding or removing entries breaks existing
// deployments.
var slots = []struct {
	name string
	kind slotKind
}{
	{slotAdmin, kindBytes},
	{slotLab, kindBytes},
	{slotProcessor, kindBytes},
	{slotRewardAsset, kindUint},
	{slotBaseReward, kindUint},
	{slotRewardDone, kindUint},
	{slotBatchID, kindBytes},
	{slotCollector, kindBytes},
	{slotCollectedAt, kindUint},
	{slotGeo, kindBytes},
	{slotSpecies, kindBytes},
	{slotQuantityKg, kindUint},
	{slotStatus, kindBytes},
	{slotLabCertCID, kindBytes},
	{slotQCAt, kindUint},
	{slotScore, kindUint},
	{slotProcBy, kindBytes},
	{slotProcAt, kindUint},
	{slotFinalImage, kindBytes},
	{slotConsumerQR, kindBytes},
}

func slotKey(name string) string {
	return slotPrefix + name
}

// slotSet is the decoded content of the slots that are present.
type slotSet struct {
	uints map[string]uint64
	bytes map[string]string
}

func newSlotSet() slotSet {
	return slotSet{uints: map[string]uint64{}, bytes: map[string]string{}}
}

// SlotLayout reports the durable schema.
func SlotLayout() Layout {
	var l Layout
	for _, s := range slots {
		switch s.kind {
		case kindUint:
			l.UintSlots++
		case kindBytes:
			l.BytesSlots++
		}
		l.Keys = append(l.Keys, slotKey(s.name))
	}
	return l
}

func encodeUint(v uint64) []byte {
	b := make([]byte, 9)
	b[0] = byte(kindUint)
	binary.BigEndian.PutUint64(b[1:], v)
	return b
}

func encodeBytes(v string) []byte {
	return append([]byte{byte(kindBytes)}, v...)
}

// LoadState reads every slot from the world state.
func LoadState(store Store) (State, error) {
	set := newSlotSet()
	for _, s := range slots {
		raw, err := store.GetState(slotKey(s.name))
		if err != nil {
			return State{}, fmt.Errorf("failed to read slot %s: %v", s.name, err)
		}
		if raw == nil {
			continue
		}
		if len(raw) == 0 || slotKind(raw[0]) != s.kind {
			return State{}, fmt.Errorf("%w: slot %s has wrong kind", ErrCorruptState, s.name)
		}
		switch s.kind {
		case kindUint:
			if len(raw) != 9 {
				return State{}, fmt.Errorf("%w: slot %s has length %d", ErrCorruptState, s.name, len(raw))
			}
			set.uints[s.name] = binary.BigEndian.Uint64(raw[1:])
		case kindBytes:
			set.bytes[s.name] = string(raw[1:])
		}
	}
	return decodeState(set)
}

// SaveState writes the slots that differ between before and after.
func SaveState(store Store, before, after State) error {
	old := rawSlots(encodeState(before))
	cur := rawSlots(encodeState(after))
	for _, s := range slots {
		key := slotKey(s.name)
		v, ok := cur[key]
		if !ok {
			if _, had := old[key]; had {
				if err := store.DelState(key); err != nil {
					return fmt.Errorf("failed to delete slot %s: %v", s.name, err)
				}
			}
			continue
		}
		if bytes.Equal(old[key], v) {
			continue
		}
		if err := store.PutState(key, v); err != nil {
			return fmt.Errorf("failed to write slot %s: %v", s.name, err)
		}
	}
	return nil
}

func rawSlots(set slotSet) map[string][]byte {
	out := make(map[string][]byte, len(set.uints)+len(set.bytes))
	for name, v := range set.uints {
		out[slotKey(name)] = encodeUint(v)
	}
	for name, v := range set.bytes {
		out[slotKey(name)] = encodeBytes(v)
	}
	return out
}

func encodeState(st State) slotSet {
	set := newSlotSet()
	if st.Status != "" {
		set.bytes[slotStatus] = string(st.Status)
	}
	if r, ok := st.Roles.Get(); ok {
		set.bytes[slotAdmin] = r.Admin
		set.bytes[slotLab] = r.Lab
		set.bytes[slotProcessor] = r.Processor
		set.uints[slotRewardAsset] = r.RewardAssetID
		set.uints[slotBaseReward] = r.BaseRewardAmount
		set.uints[slotRewardDone] = 0
		if r.RewardDistributed {
			set.uints[slotRewardDone] = 1
		}
	}
	if b, ok := st.Batch.Get(); ok {
		set.bytes[slotBatchID] = b.BatchID
		set.bytes[slotCollector] = b.Collector
		set.bytes[slotGeo] = b.Geo
		set.bytes[slotSpecies] = b.Species
		set.uints[slotCollectedAt] = b.CollectedAt
		set.uints[slotQuantityKg] = b.QuantityKg
	}
	if q, ok := st.QC.Get(); ok {
		set.bytes[slotLabCertCID] = q.LabCertCID
		set.uints[slotScore] = q.AuthenticityScore
		set.uints[slotQCAt] = q.QCAt
	}
	if p, ok := st.Processing.Get(); ok {
		set.bytes[slotProcBy] = p.Processor
		set.bytes[slotFinalImage] = p.FinalImageCID
		set.bytes[slotConsumerQR] = p.ConsumerQRPayload
		set.uints[slotProcAt] = p.ProcAt
	}
	return set
}

// group reads the slots of one record. The first byte slot is the record's
// presence marker; if it is set, all the others must be too.
func (set slotSet) group(byteNames, uintNames []string) (bool, error) {
	if _, ok := set.bytes[byteNames[0]]; !ok {
		for _, n := range byteNames[1:] {
			if _, ok := set.bytes[n]; ok {
				return false, fmt.Errorf("%w: slot %s set without %s", ErrCorruptState, n, byteNames[0])
			}
		}
		for _, n := range uintNames {
			if _, ok := set.uints[n]; ok {
				return false, fmt.Errorf("%w: slot %s set without %s", ErrCorruptState, n, byteNames[0])
			}
		}
		return false, nil
	}
	for _, n := range byteNames[1:] {
		if _, ok := set.bytes[n]; !ok {
			return false, fmt.Errorf("%w: slot %s missing", ErrCorruptState, n)
		}
	}
	for _, n := range uintNames {
		if _, ok := set.uints[n]; !ok {
			return false, fmt.Errorf("%w: slot %s missing", ErrCorruptState, n)
		}
	}
	return true, nil
}

func decodeState(set slotSet) (State, error) {
	var st State
	st.Status = Status(set.bytes[slotStatus])

	ok, err := set.group(
		[]string{slotAdmin, slotLab, slotProcessor},
		[]string{slotRewardAsset, slotBaseReward, slotRewardDone})
	if err != nil {
		return State{}, err
	}
	if ok {
		st.Roles = Some(RoleRegistry{
			Admin:             set.bytes[slotAdmin],
			Lab:               set.bytes[slotLab],
			Processor:         set.bytes[slotProcessor],
			RewardAssetID:     set.uints[slotRewardAsset],
			BaseRewardAmount:  set.uints[slotBaseReward],
			RewardDistributed: set.uints[slotRewardDone] != 0,
		})
	}

	ok, err = set.group(
		[]string{slotBatchID, slotCollector, slotGeo, slotSpecies},
		[]string{slotCollectedAt, slotQuantityKg})
	if err != nil {
		return State{}, err
	}
	if ok {
		st.Batch = Some(BatchRecord{
			BatchID:     set.bytes[slotBatchID],
			Collector:   set.bytes[slotCollector],
			CollectedAt: set.uints[slotCollectedAt],
			Geo:         set.bytes[slotGeo],
			Species:     set.bytes[slotSpecies],
			QuantityKg:  set.uints[slotQuantityKg],
		})
	}

	ok, err = set.group([]string{slotLabCertCID}, []string{slotScore, slotQCAt})
	if err != nil {
		return State{}, err
	}
	if ok {
		st.QC = Some(QCRecord{
			LabCertCID:        set.bytes[slotLabCertCID],
			AuthenticityScore: set.uints[slotScore],
			QCAt:              set.uints[slotQCAt],
		})
	}

	ok, err = set.group(
		[]string{slotFinalImage, slotProcBy, slotConsumerQR},
		[]string{slotProcAt})
	if err != nil {
		return State{}, err
	}
	if ok {
		st.Processing = Some(ProcessingRecord{
			Processor:         set.bytes[slotProcBy],
			ProcAt:            set.uints[slotProcAt],
			FinalImageCID:     set.bytes[slotFinalImage],
			ConsumerQRPayload: set.bytes[slotConsumerQR],
		})
	}
	return st, nil
}
