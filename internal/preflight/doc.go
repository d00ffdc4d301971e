// Package preflight provides readiness checks for the directories and
// external services podforge depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs each failed check. A
//     failure is a warning, not fatal: collaborators may come online later
//     and jobs retry transient failures.
//   - The CLI "podforge status" command prints the results as a table.
//
// Collaborator checks are supplied as Probes by the caller so disabled
// services are never contacted.
package preflight
