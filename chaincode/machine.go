package chaincode

import "fmt"

// Operation is one state-changing call.
type Operation interface {
	OperationName() string
}

// Initialize sets the role registry once.
type Initialize struct {
	Admin            string
	Lab              string
	Processor        string
	RewardAssetID    uint64
	BaseRewardAmount uint64
}

// CreateBatch records the single batch.
type CreateBatch struct {
	BatchID     string
	Collector   string
	CollectedAt uint64
	Geo         string
	Species     string
	QuantityKg  uint64
}

// VerifyQc records the lab result.
type VerifyQc struct {
	LabCertCID        string
	AuthenticityScore uint64
	QCAt              uint64
}

// ProcessBatch records processing by the caller.
type ProcessBatch struct {
	FinalImageCID     string
	ConsumerQRPayload string
	ProcAt            uint64
}

// ShipBatch moves a processed batch to shipped.
type ShipBatch struct{}

// MarkRewardDistributed sets the reward flag.
type MarkRewardDistributed struct{}

// UpdateAuthorities replaces lab, processor and base reward.
type UpdateAuthorities struct {
	Lab              string
	Processor        string
	BaseRewardAmount uint64
}

func (Initialize) OperationName() string            { return "Initialize" }
func (CreateBatch) OperationName() string           { return "CreateBatch" }
func (VerifyQc) OperationName() string              { return "VerifyQc" }
func (ProcessBatch) OperationName() string          { return "ProcessBatch" }
func (ShipBatch) OperationName() string             { return "ShipBatch" }
func (MarkRewardDistributed) OperationName() string { return "MarkRewardDistributed" }
func (UpdateAuthorities) OperationName() string     { return "UpdateAuthorities" }

// maxAuthenticityScore is the inclusive upper bound of a lab score.
const maxAuthenticityScore = 100

type handler func(st *State, caller string, op Operation) error

var handlers = map[string]handler{
	"Initialize": func(st *State, _ string, op Operation) error {
		o, err := as[Initialize](op)
		if err != nil {
			return err
		}
		return st.initialize(o)
	},
	"CreateBatch": func(st *State, _ string, op Operation) error {
		o, err := as[CreateBatch](op)
		if err != nil {
			return err
		}
		return st.createBatch(o)
	},
	"VerifyQc": func(st *State, caller string, op Operation) error {
		o, err := as[VerifyQc](op)
		if err != nil {
			return err
		}
		return st.verifyQc(caller, o)
	},
	"ProcessBatch": func(st *State, caller string, op Operation) error {
		o, err := as[ProcessBatch](op)
		if err != nil {
			return err
		}
		return st.processBatch(caller, o)
	},
	"ShipBatch": func(st *State, caller string, _ Operation) error {
		return st.shipBatch(caller)
	},
	"MarkRewardDistributed": func(st *State, caller string, _ Operation) error {
		return st.markRewardDistributed(caller)
	},
	"UpdateAuthorities": func(st *State, caller string, op Operation) error {
		o, err := as[UpdateAuthorities](op)
		if err != nil {
			return err
		}
		return st.updateAuthorities(caller, o)
	},
}

func as[T Operation](op Operation) (T, error) {
	o, ok := op.(T)
	if !ok {
		return o, fmt.Errorf("operation %s passed as %T", op.OperationName(), op)
	}
	return o, nil
}

// Apply runs op on behalf of caller. On success it returns the new state; on
// failure it returns st unchanged together with the error.
func Apply(st State, caller string, op Operation) (State, error) {
	h, ok := handlers[op.OperationName()]
	if !ok {
		return st, fmt.Errorf("unknown operation %s", op.OperationName())
	}
	next := st
	if err := h(&next, caller, op); err != nil {
		return st, err
	}
	return next, nil
}

func (st *State) registry() (RoleRegistry, error) {
	r, ok := st.Roles.Get()
	if !ok {
		return RoleRegistry{}, ErrNotInitialized
	}
	return r, nil
}

func (st *State) requireAdmin(caller string) (RoleRegistry, error) {
	r, err := st.registry()
	if err != nil {
		return r, err
	}
	if caller != r.Admin {
		return r, ErrNotAdmin
	}
	return r, nil
}

func (st *State) requireLab(caller string) error {
	r, err := st.registry()
	if err != nil {
		return err
	}
	if caller != r.Lab {
		return ErrNotLab
	}
	return nil
}

func (st *State) requireProcessor(caller string) error {
	r, err := st.registry()
	if err != nil {
		return err
	}
	if caller != r.Processor {
		return ErrNotProcessor
	}
	return nil
}

func (st *State) requireStatus(allowed ...Status) error {
	for _, s := range allowed {
		if st.Status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: status is %s", ErrInvalidPhase, st.Status)
}

func (st *State) initialize(op Initialize) error {
	if st.Roles.IsSet() {
		return ErrAlreadyInitialized
	}
	st.Roles = Some(RoleRegistry{
		Admin:            op.Admin,
		Lab:              op.Lab,
		Processor:        op.Processor,
		RewardAssetID:    op.RewardAssetID,
		BaseRewardAmount: op.BaseRewardAmount,
	})
	st.Status = StatusInitialized
	return nil
}

// createBatch has no caller guard; the collector is recorded, not checked.
func (st *State) createBatch(op CreateBatch) error {
	if _, err := st.registry(); err != nil {
		return err
	}
	if st.Batch.IsSet() {
		return ErrBatchAlreadyExists
	}
	if op.QuantityKg == 0 {
		return ErrInvalidQuantity
	}
	st.Batch = Some(BatchRecord{
		BatchID:     op.BatchID,
		Collector:   op.Collector,
		CollectedAt: op.CollectedAt,
		Geo:         op.Geo,
		Species:     op.Species,
		QuantityKg:  op.QuantityKg,
	})
	st.Status = StatusCollected
	return nil
}

func (st *State) verifyQc(caller string, op VerifyQc) error {
	if err := st.requireLab(caller); err != nil {
		return err
	}
	if err := st.requireStatus(StatusCollected, StatusQCPending); err != nil {
		return err
	}
	if op.AuthenticityScore > maxAuthenticityScore {
		return fmt.Errorf("%w: got %d", ErrScoreOutOfRange, op.AuthenticityScore)
	}
	st.QC = Some(QCRecord{
		LabCertCID:        op.LabCertCID,
		AuthenticityScore: op.AuthenticityScore,
		QCAt:              op.QCAt,
	})
	st.Status = StatusQCVerified
	return nil
}

func (st *State) processBatch(caller string, op ProcessBatch) error {
	if err := st.requireProcessor(caller); err != nil {
		return err
	}
	if err := st.requireStatus(StatusQCVerified); err != nil {
		return err
	}
	st.Processing = Some(ProcessingRecord{
		Processor:         caller,
		ProcAt:            op.ProcAt,
		FinalImageCID:     op.FinalImageCID,
		ConsumerQRPayload: op.ConsumerQRPayload,
	})
	st.Status = StatusProcessed
	return nil
}

func (st *State) shipBatch(caller string) error {
	r, err := st.registry()
	if err != nil {
		return err
	}
	if caller != r.Admin && caller != r.Processor {
		return ErrNotProcessor
	}
	if err := st.requireStatus(StatusProcessed); err != nil {
		return err
	}
	st.Status = StatusShipped
	return nil
}

func (st *State) markRewardDistributed(caller string) error {
	r, err := st.requireAdmin(caller)
	if err != nil {
		return err
	}
	if r.RewardDistributed {
		return ErrRewardAlreadyDistributed
	}
	if err := st.requireStatus(StatusQCVerified, StatusProcessed, StatusShipped); err != nil {
		return err
	}
	r.RewardDistributed = true
	st.Roles = Some(r)
	return nil
}

// updateAuthorities replaces lab, processor and base reward. The admin itself
// cannot be rotated.
func (st *State) updateAuthorities(caller string, op UpdateAuthorities) error {
	r, err := st.requireAdmin(caller)
	if err != nil {
		return err
	}
	r.Lab = op.Lab
	r.Processor = op.Processor
	r.BaseRewardAmount = op.BaseRewardAmount
	st.Roles = Some(r)
	return nil
}
