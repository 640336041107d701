// Package writers turns run reports and diff results into serialized outputs.
//
// Design:
//
//   - Writers own all presentation knowledge (text tables, JSON/JSONL, TSV).
//   - mapdiff stays domain-only; pipeline stays orchestration-only.
//   - JSON/JSONL go through pkg/api (v1) for a stable wire format.
package writers
