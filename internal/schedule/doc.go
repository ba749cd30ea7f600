// Package schedule implements the download admission controller.
//
// A Scheduler keeps a registry of entries, one per download a client wants
// to run, and decides which of them may use the network right now. The
// decision combines every active connection's policy (metered state, user
// permission and tariff) into a single gate, then ranks the entries by
// privilege, priority and age.
//
// A Scheduler is not safe for concurrent use. The daemon runs it on a
// single event loop, and every callback it registers with its connection
// monitor, clock and peer manager must be delivered on that loop.
package schedule
