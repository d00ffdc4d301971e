// Package services defines shared utilities consumed by the pipeline stages
// and the external collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, attempts, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so the retry controller
//     can classify failures with errors.Is no matter how deep they are wrapped.
//   - MarkerForStatus, which turns collaborator HTTP status codes into markers.
//
// Collaborator clients live in sub-packages (runpod, llm, postprocess,
// printify, shopify, assets).
package services
