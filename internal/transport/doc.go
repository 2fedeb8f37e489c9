// Package transport models the radio link to field devices.
//
// Commands are acknowledged after a modelled round-trip latency; no device
// is contacted synchronously. When wired, a command is also published on
// fleet/command/{device_id} for a real gateway to pick up, and recorded in
// the audit log. Neither side effect can fail the command.
//
// The network status is derived from the device registry: each device is
// attached to its nearest gateway when it lies within that gateway's radius.
package transport
