// Command podforge is the operator CLI for the podforge job engine.
//
// "podforge serve" runs the daemon in the foreground; "start" and "stop"
// manage a background instance. Every other command talks to a running
// daemon over its HTTP API: submit, batch, list, show, cancel, retry,
// cleanup, health, and metrics. "status" combines preflight checks with
// daemon reachability, and "config" creates or validates the TOML file.
//
// Client commands resolve the daemon address from --addr, then
// PODFORGE_ADDR, then api.bind in the configuration file. Add --json to any
// client command for machine-readable output.
package main
