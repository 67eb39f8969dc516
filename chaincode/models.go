package chaincode

// Status is the lifecycle phase of the batch.
type Status string

const (
	StatusInitialized Status = "INITIALIZED"
	StatusCollected   Status = "COLLECTED"
	// StatusQCPending is accepted by VerifyQc but never assigned.
	StatusQCPending  Status = "QC_PENDING"
	StatusQCVerified Status = "QC_VERIFIED"
	StatusProcessed  Status = "PROCESSED"
	StatusShipped    Status = "SHIPPED"
)

// Optional holds a value that is either present or absent.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns a present Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether a value is present.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// RoleRegistry holds the authorities and reward configuration.
type RoleRegistry struct {
	Admin             string
	Lab               string
	Processor         string
	RewardAssetID     uint64 // 0 means native currency
	BaseRewardAmount  uint64
	RewardDistributed bool
}

// BatchRecord holds the collection facts of the batch.
type BatchRecord struct {
	BatchID     string `json:"batchId"`
	Collector   string `json:"collector"`
	CollectedAt uint64 `json:"collectedAt"`
	Geo         string `json:"geo"`
	Species     string `json:"species"`
	QuantityKg  uint64 `json:"quantityKg"`
}

// QCRecord is attached by the lab.
type QCRecord struct {
	LabCertCID        string `json:"labCertCid"`
	AuthenticityScore uint64 `json:"authenticityScore"`
	QCAt              uint64 `json:"qcAt"`
}

// ProcessingRecord is attached by the processor.
type ProcessingRecord struct {
	Processor         string `json:"processor"`
	ProcAt            uint64 `json:"procAt"`
	FinalImageCID     string `json:"finalImageCid"`
	ConsumerQRPayload string `json:"consumerQrPayload"`
}

// State is the whole contract state of one deployment. It is a plain value;
// copying it yields an independent state.
type State struct {
	Roles      Optional[RoleRegistry]
	Status     Status
	Batch      Optional[BatchRecord]
	QC         Optional[QCRecord]
	Processing Optional[ProcessingRecord]
}

// BatchView is the JSON shape returned by ReadBatch.
type BatchView struct {
	Status            Status            `json:"status"`
	RewardDistributed bool              `json:"rewardDistributed"`
	Batch             BatchRecord       `json:"batch"`
	QC                *QCRecord         `json:"qc,omitempty" metadata:"qc,optional"`
	Processing        *ProcessingRecord `json:"processing,omitempty" metadata:"processing,optional"`
}

// RoleView is the JSON shape returned by ReadRoles.
type RoleView struct {
	Admin             string `json:"admin"`
	Lab               string `json:"lab"`
	Processor         string `json:"processor"`
	RewardAssetID     uint64 `json:"rewardAssetId"`
	BaseRewardAmount  uint64 `json:"baseRewardAmount"`
	RewardDistributed bool   `json:"rewardDistributed"`
}

// Layout describes the durable slot schema.
type Layout struct {
	UintSlots  int      `json:"uintSlots"`
	BytesSlots int      `json:"bytesSlots"`
	Keys       []string `json:"keys"`
}
