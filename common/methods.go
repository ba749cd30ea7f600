package common

// JSON-RPC methods served by the daemon.
const (
	MethodGetVersion        = "system.getVersion"
	MethodSchedule          = "scheduler.schedule"
	MethodScheduleEntries   = "scheduler.scheduleEntries"
	MethodSchedulerGetProps = "scheduler.getProperties"
	MethodEntryGet          = "entry.get"
	MethodEntrySet          = "entry.set"
	MethodEntryRemove       = "entry.remove"
	MethodDaemonHold        = "daemon.hold"
	MethodDaemonRelease     = "daemon.release"
)

// Notifications pushed by the daemon.
const (
	// NotifyEntryChanged is sent to an entry's owner with an EntryInfo.
	NotifyEntryChanged = "entry.propertiesChanged"
	// NotifySchedulerChanged is sent to every client with
	// SchedulerProperties.
	NotifySchedulerChanged = "scheduler.propertiesChanged"
)

// Error codes returned by the daemon in addition to the JSON-RPC ones.
const (
	CodeEntryNotFound   = -32001
	CodeSchedulerFull   = -32002
	CodeIdentifyingPeer = -32003
	CodeNotOwner        = -32004
	CodeInvalidParams   = -32602
)
