package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Panorama-Block/archive/internal/types"
)

var (
	errorSelector = crypto.Keccak256([]byte("Error(string)"))[:4]
	panicSelector = crypto.Keccak256([]byte("Panic(uint256)"))[:4]

	uint256Type, _ = abi.NewType("uint256", "", nil)
)

// panicReasons describes the compiler inserted Panic(uint256) codes
var panicReasons = map[uint64]string{
	0x01: "an assertion failed",
	0x11: "arithmetic operation resulted in underflow or overflow",
	0x12: "division or modulo by zero",
	0x21: "attempted to convert to an invalid type",
	0x22: "attempted to access a storage byte array that is incorrectly encoded",
	0x31: "called pop() on an empty array",
	0x32: "array index is out of bounds",
	0x41: "allocated too much memory or created an array which is too large",
	0x51: "called a zero-initialized variable of internal function type",
}

// ParseABI parses a contract ABI in its JSON form
func ParseABI(definition string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		return nil, fmt.Errorf("failed to parse abi: %w", err)
	}
	return &parsed, nil
}

// LoadABI reads and parses an ABI file. Both a bare ABI array and a compiler
// artifact with an "abi" field are accepted.
func LoadABI(path string) (*abi.ABI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read abi %s: %w", path, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(raw, &artifact); err != nil {
			return nil, fmt.Errorf("failed to decode abi artifact %s: %w", path, err)
		}
		raw = artifact.ABI
	}
	return ParseABI(string(raw))
}

// decodeRevert decodes a revert payload. Error(string) and Panic(uint256) are
// always recognised; custom errors only when contractABI declares them.
func decodeRevert(data []byte, contractABI *abi.ABI) *Revert {
	r := &Revert{Data: data}
	if len(data) < 4 {
		return r
	}

	selector := data[:4]
	switch {
	case bytes.Equal(selector, errorSelector):
		if reason, err := abi.UnpackRevert(data); err == nil {
			r.Reason = reason
		}
		return r
	case bytes.Equal(selector, panicSelector):
		values, err := abi.Arguments{{Type: uint256Type}}.Unpack(data[4:])
		if err != nil || len(values) != 1 {
			return r
		}
		code, ok := values[0].(*big.Int)
		if !ok {
			return r
		}
		r.PanicCode = code
		if code.IsUint64() {
			r.Reason = panicReasons[code.Uint64()]
		}
		if r.Reason == "" {
			r.Reason = "unknown panic code"
		}
		return r
	}

	if contractABI == nil {
		return r
	}
	for name, abiErr := range contractABI.Errors {
		if !bytes.Equal(abiErr.ID[:4], selector) {
			continue
		}
		args, err := abiErr.Unpack(data)
		if err != nil {
			continue
		}
		r.ErrorName = name
		r.ErrorArgs = args
		return r
	}
	return r
}

// revertFromError extracts the revert payload from a CallExecutionError
func revertFromError(err error, contractABI *abi.ABI) *Revert {
	var callErr *CallExecutionError
	if !errors.As(err, &callErr) || callErr.Revert == nil {
		return nil
	}
	if callErr.Revert.RawData != "" {
		return callErr.Revert
	}
	return decodeRevert(callErr.Revert.Data, contractABI)
}

// eventTopics builds the topic filter for event. args are matched by input
// name against the indexed inputs; a []interface{} value matches any of its
// elements.
func eventTopics(event *abi.Event, args map[string]interface{}) ([][]common.Hash, error) {
	topics := [][]common.Hash{{event.ID}}
	if event.Anonymous {
		topics = nil
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	for name := range args {
		found := false
		for _, input := range indexed {
			if input.Name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("event %s has no indexed input %q", event.Name, name)
		}
	}

	query := make([][]interface{}, len(indexed))
	for i, input := range indexed {
		value, ok := args[input.Name]
		if !ok || value == nil {
			continue
		}
		if alternatives, ok := value.([]interface{}); ok {
			query[i] = alternatives
		} else {
			query[i] = []interface{}{value}
		}
	}
	argTopics, err := abi.MakeTopics(query...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s topics: %w", event.Name, err)
	}
	topics = append(topics, argTopics...)

	// trailing wildcards are implied
	for len(topics) > 0 && len(topics[len(topics)-1]) == 0 {
		topics = topics[:len(topics)-1]
	}
	return topics, nil
}

// decodeLog matches l against events by its first topic and decodes the
// indexed and data arguments.
func decodeLog(events map[common.Hash]*abi.Event, l types.Log) (types.DecodedLog, error) {
	out := types.DecodedLog{Log: l}
	if len(l.Topics) == 0 {
		return out, errors.New("log has no topics")
	}
	event, ok := events[l.Topics[0]]
	if !ok {
		return out, fmt.Errorf("no event matches topic %s", l.Topics[0].Hex())
	}
	out.EventName = event.Name

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(l.Topics)-1 != len(indexed) {
		return out, fmt.Errorf("event %s expects %d indexed topics, log has %d", event.Name, len(indexed), len(l.Topics)-1)
	}

	args := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
		return out, fmt.Errorf("failed to decode %s topics: %w", event.Name, err)
	}
	if err := event.Inputs.UnpackIntoMap(args, l.Data); err != nil {
		return out, fmt.Errorf("failed to decode %s data: %w", event.Name, err)
	}
	out.Args = args
	return out, nil
}

// DecodeEventLog decodes l with the events declared in contractABI
func DecodeEventLog(contractABI *abi.ABI, l types.Log) (types.DecodedLog, error) {
	return decodeLog(eventsByID(contractABI, ""), l)
}

func eventsByID(contractABI *abi.ABI, name string) map[common.Hash]*abi.Event {
	events := make(map[common.Hash]*abi.Event)
	if contractABI == nil {
		return events
	}
	for n := range contractABI.Events {
		if name != "" && n != name {
			continue
		}
		event := contractABI.Events[n]
		if event.Anonymous {
			continue
		}
		events[event.ID] = &event
	}
	return events
}
