/*
SPDX-License-Identifier: Apache-2.0
*/

package chaincode

import (
	"errors"
	"strings"
)

// Code is the short error code a rejected transaction carries. Every error
// returned by the contract starts with its code.
type Code string

const (
	CodeNotAdmin        Code = "E_ADMIN"
	CodeNotLab          Code = "E_LAB"
	CodeNotProcessor    Code = "E_PROC"
	CodeInvalidPhase    Code = "E_STATUS"
	CodeBatchExists     Code = "E_EXISTS"
	CodeScoreRange      Code = "E_SCORE"
	CodeInvalidQuantity Code = "E_QTY"
	CodeRewardDone      Code = "E_REWARD_DONE"
	CodeInitialized     Code = "E_INIT"
	CodeUninitialized   Code = "E_UNINIT"
	CodeNoBatch         Code = "E_NOBATCH"
	CodeCorruptState    Code = "E_STATE"
)

// ContractError is a rejection with a stable code.
type ContractError struct {
	Code Code
	Msg  string
}

func (e *ContractError) Error() string {
	return string(e.Code) + ": " + e.Msg
}

var (
	ErrNotAdmin                 = &ContractError{CodeNotAdmin, "caller is not the admin"}
	ErrNotLab                   = &ContractError{CodeNotLab, "caller is not the lab"}
	ErrNotProcessor             = &ContractError{CodeNotProcessor, "caller is not the processor"}
	ErrInvalidPhase             = &ContractError{CodeInvalidPhase, "operation not allowed in current status"}
	ErrBatchAlreadyExists       = &ContractError{CodeBatchExists, "batch already exists"}
	ErrScoreOutOfRange          = &ContractError{CodeScoreRange, "authenticity score must be between 0 and 100"}
	ErrInvalidQuantity          = &ContractError{CodeInvalidQuantity, "quantity must be positive"}
	ErrRewardAlreadyDistributed = &ContractError{CodeRewardDone, "reward already distributed"}
	ErrAlreadyInitialized       = &ContractError{CodeInitialized, "contract already initialized"}
	ErrNotInitialized           = &ContractError{CodeUninitialized, "contract not initialized"}
	ErrNoBatch                  = &ContractError{CodeNoBatch, "no batch recorded"}
	ErrCorruptState             = &ContractError{CodeCorruptState, "inconsistent ledger state"}
)

var byCode = map[Code]*ContractError{}

func init() {
	for _, e := range []*ContractError{
		ErrNotAdmin, ErrNotLab, ErrNotProcessor, ErrInvalidPhase, ErrBatchAlreadyExists,
		ErrScoreOutOfRange, ErrInvalidQuantity, ErrRewardAlreadyDistributed,
		ErrAlreadyInitialized, ErrNotInitialized, ErrNoBatch, ErrCorruptState,
	} {
		byCode[e.Code] = e
	}
}

// CodeOf finds the contract code in err, either through the error chain or,
// for errors that crossed the wire as plain text, in the message itself.
func CodeOf(err error) (Code, bool) {
	if err == nil {
		return "", false
	}
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	msg := err.Error()
	for code := range byCode {
		if strings.Contains(msg, string(code)+":") {
			return code, true
		}
	}
	return "", false
}
