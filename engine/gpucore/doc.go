// Package gpucore defines the backend-neutral GPU boundary used by the readback
// orchestrator: opaque resource IDs, the small set of formats and binding kinds a
// compute dispatch needs, and the Device interface a backend implements.
//
// Nothing in this package talks to a driver. The wgpu implementation lives in
// engine/renderer and an in-memory fake lives in gpucoretest.
package gpucore
