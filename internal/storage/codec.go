package storage

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/util"
)

func encode(v interface{}) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	return util.EncodeFrame(payload), nil
}

func decode(data []byte, v interface{}) error {
	payload, err := util.DecodeFrame(data)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(payload, v)
}

// EncodeLogBlock serializes the records of one delta commit
func EncodeLogBlock(block *model.LogBlock) ([]byte, error) {
	data, err := encode(block)
	if err != nil {
		return nil, fmt.Errorf("failed to encode log block: %w", err)
	}
	return data, nil
}

// DecodeLogBlock parses a log file
func DecodeLogBlock(data []byte) (*model.LogBlock, error) {
	var block model.LogBlock
	if err := decode(data, &block); err != nil {
		return nil, fmt.Errorf("failed to decode log block: %w", err)
	}
	return &block, nil
}

// EncodeBaseBlock serializes the merged records of a base file
func EncodeBaseBlock(block *model.BaseBlock) ([]byte, error) {
	data, err := encode(block)
	if err != nil {
		return nil, fmt.Errorf("failed to encode base block: %w", err)
	}
	return data, nil
}

// DecodeBaseBlock parses a base file
func DecodeBaseBlock(data []byte) (*model.BaseBlock, error) {
	var block model.BaseBlock
	if err := decode(data, &block); err != nil {
		return nil, fmt.Errorf("failed to decode base block: %w", err)
	}
	return &block, nil
}
