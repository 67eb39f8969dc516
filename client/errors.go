package client

import "trueroots-chaincode/chaincode"

var messages = map[chaincode.Code]string{
	chaincode.CodeNotAdmin:        "Only the administrator can perform this action.",
	chaincode.CodeNotLab:          "Only the registered lab can verify batches.",
	chaincode.CodeNotProcessor:    "Only the registered processor can perform this action.",
	chaincode.CodeInvalidPhase:    "The batch is not at the right stage for this action.",
	chaincode.CodeBatchExists:     "A batch has already been recorded for this contract.",
	chaincode.CodeScoreRange:      "Authenticity score must be between 0 and 100.",
	chaincode.CodeInvalidQuantity: "Quantity must be greater than zero.",
	chaincode.CodeRewardDone:      "The collector reward has already been recorded.",
	chaincode.CodeInitialized:     "The contract has already been initialized.",
	chaincode.CodeUninitialized:   "The contract has not been initialized yet.",
	chaincode.CodeNoBatch:         "No batch has been recorded yet.",
	chaincode.CodeCorruptState:    "The ledger state is inconsistent.",
}

// CodeOf extracts the contract error code from a rejected transaction.
func CodeOf(err error) (chaincode.Code, bool) {
	return chaincode.CodeOf(err)
}

// Describe returns a message suitable for end users.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if code, ok := CodeOf(err); ok {
		if msg, ok := messages[code]; ok {
			return msg
		}
	}
	return "The transaction was rejected."
}
