package timeline

import (
	"encoding/json"
	"fmt"

	"github.com/linkedin/goavro/v2"

	"github.com/devrev/tablecore/internal/model"
)

const compactionPlanSchema = `{
  "type": "record",
  "name": "CompactionPlan",
  "namespace": "tablecore.avro",
  "fields": [
    {"name": "instant_time", "type": "string"},
    {"name": "strategy", "type": "string", "default": ""},
    {"name": "operations", "type": {"type": "array", "items": {
      "type": "record",
      "name": "CompactionOperation",
      "fields": [
        {"name": "partition_path", "type": "string"},
        {"name": "file_id", "type": "string"},
        {"name": "base_instant_time", "type": "string"},
        {"name": "base_file_path", "type": "string", "default": ""},
        {"name": "log_file_paths", "type": {"type": "array", "items": "string"}},
        {"name": "total_log_bytes", "type": "long"}
      ]
    }}}
  ]
}`

var planCodec = mustCodec(compactionPlanSchema)

func mustCodec(schema string) *goavro.Codec {
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		panic(fmt.Sprintf("invalid avro schema: %v", err))
	}
	return codec
}

// EncodeCompactionPlan serializes a plan as Avro binary
func EncodeCompactionPlan(plan *model.CompactionPlan) ([]byte, error) {
	ops := make([]interface{}, 0, len(plan.Operations))
	for _, op := range plan.Operations {
		logs := make([]interface{}, 0, len(op.LogFilePaths))
		for _, p := range op.LogFilePaths {
			logs = append(logs, p)
		}
		ops = append(ops, map[string]interface{}{
			"partition_path":    op.PartitionPath,
			"file_id":           op.FileID,
			"base_instant_time": op.BaseInstantTime,
			"base_file_path":    op.BaseFilePath,
			"log_file_paths":    logs,
			"total_log_bytes":   op.TotalLogBytes,
		})
	}
	native := map[string]interface{}{
		"instant_time": plan.InstantTime,
		"strategy":     plan.Strategy,
		"operations":   ops,
	}
	buf, err := planCodec.BinaryFromNative(nil, native)
	if err != nil {
		return nil, fmt.Errorf("failed to encode compaction plan: %w", err)
	}
	return buf, nil
}

// DecodeCompactionPlan parses an Avro binary plan
func DecodeCompactionPlan(data []byte) (*model.CompactionPlan, error) {
	native, _, err := planCodec.NativeFromBinary(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode compaction plan: %w", err)
	}
	record, ok := native.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected compaction plan shape %T", native)
	}

	plan := &model.CompactionPlan{
		InstantTime: asString(record["instant_time"]),
		Strategy:    asString(record["strategy"]),
	}
	rawOps, _ := record["operations"].([]interface{})
	for _, raw := range rawOps {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected compaction operation shape %T", raw)
		}
		op := model.CompactionOperation{
			PartitionPath:   asString(m["partition_path"]),
			FileID:          asString(m["file_id"]),
			BaseInstantTime: asString(m["base_instant_time"]),
			BaseFilePath:    asString(m["base_file_path"]),
		}
		if n, ok := m["total_log_bytes"].(int64); ok {
			op.TotalLogBytes = n
		}
		logs, _ := m["log_file_paths"].([]interface{})
		for _, l := range logs {
			op.LogFilePaths = append(op.LogFilePaths, asString(l))
		}
		plan.Operations = append(plan.Operations, op)
	}
	return plan, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// EncodeCommitMetadata serializes commit metadata as JSON
func EncodeCommitMetadata(md *model.CommitMetadata) ([]byte, error) {
	data, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("failed to encode commit metadata: %w", err)
	}
	return data, nil
}

// DecodeCommitMetadata parses JSON commit metadata; empty input yields empty metadata
func DecodeCommitMetadata(data []byte) (*model.CommitMetadata, error) {
	md := &model.CommitMetadata{}
	if len(data) == 0 {
		return md, nil
	}
	if err := json.Unmarshal(data, md); err != nil {
		return nil, fmt.Errorf("failed to decode commit metadata: %w", err)
	}
	return md, nil
}
