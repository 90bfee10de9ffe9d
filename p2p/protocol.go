package p2p

import (
	"encoding/json"
)

// MsgTypeBudget carries one of the five masternode-budget wire commands
// (mnvs, mprop, mvote, fbs, fbvote) as an opaque JSON envelope; the p2p
// layer never interprets the governance payload itself, it only frames and
// relays it.
const MsgTypeBudget byte = 0x10

// budgetEnvelope is the JSON shape a budget.WireMessage is carried in over
// the wire.
type budgetEnvelope struct {
	Command string `json:"command"`
	Payload []byte `json:"payload"`
}

func encodeBudgetMessage(command string, payload []byte) (*Message, error) {
	body, err := json.Marshal(budgetEnvelope{Command: command, Payload: payload})
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeBudget, Payload: body}, nil
}

func decodeBudgetMessage(msg *Message) (string, []byte, error) {
	var env budgetEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return "", nil, err
	}
	return env.Command, env.Payload, nil
}
