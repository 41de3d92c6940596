// Package manager is the loaded-client pool. It resolves model ids to
// descriptors, builds local clients on demand and decides when they are
// released. It is structured into small files by concern:
//
//   - manager.go: core Manager type, descriptor lookup, Close.
//   - config.go: ManagerConfig, Policy and package defaults; NewWithConfig applies defaults.
//   - types.go: Origin, pool entries and Lease.
//   - errors.go: error types and helpers (IsTooBusy, IsNotConfigured, ...).
//   - ensure.go: EnsureModelLoaded/Acquire and single-flight construction.
//   - queue_admission.go: per-model queueing and generation admission.
//   - evict.go: idle timers, eviction and UnloadModel.
//   - policy.go: the keep-last-JIT capacity rule.
//   - reconfigure.go: UpdateConfiguration/UpdateDescriptors.
//   - loopback.go: the auxiliary multimodal server.
//   - status_report.go, sanity.go, ops.go: reporting and startup helpers.
//
// Build tags and runtimes:
//
//   - In-process llama: go-llama.cpp client, enabled with `-tags=llama`.
//     Files: adapter_llama.go, llama_cgo.go (linker rpath hints).
//     adapter_llama_stub.go is compiled when the tag is not set.
//
//   - llama-server subprocess: the default without the tag. One process per
//     loaded model, spoken to through openai-go.
//     Files: llama_process.go, client_llama_server.go.
//
// Locking: m.mu guards all pool state and is never held across client
// construction, generation, unload or process management. m.loopMu
// serializes loopback start/stop and is always taken before m.mu.
package manager
