/*
Package ports defines the driven ports (interfaces) of the hive runtime.

These interfaces decouple the scheduler from external implementations:
graph sources, snapshot stores, distributed lockers, trace sinks, the
LLM provider, and the tool broker.

# Key Interfaces

  - GraphLoader: loads and validates graph descriptions.
  - RunStore: persists and restores run snapshots for pause/resume.
  - DistributedLocker: coordinates run access across replicas.
  - Recorder: the per-run append-only decision/outcome/problem sink.
  - Provider: the semantic LLM interface the executors consume.
  - ToolInvoker: dispatches tool calls through the broker.
*/
package ports
