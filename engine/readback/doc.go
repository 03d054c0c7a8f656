// Package readback runs caller-declared compute shaders once per frame and copies their
// outputs back to host memory without stalling the frame loop.
//
// A caller implements ShaderDescriptor on its own type and spawns instances of it on a
// Plugin. Each Plugin.Update compiles pipelines on first use (one per descriptor type),
// records a dispatch for every idle instance, copies the declared outputs into staging
// buffers and requests an asynchronous map. Map callbacks only enqueue; the queue is
// drained at the start of the next Update, where payloads are decoded and handed to
// ShaderDescriptor.OnReadback.
//
// Failures never abort the plugin. A descriptor type whose shader does not compile stops
// dispatching, and an instance whose map fails moves to StateFailed. Neither produces a
// notification: callers that care must poll Instance.State or Instance.Err.
package readback
