// Package tariff models the time-varying download policy of a network
// connection.
//
// A Tariff is a named set of Periods. Each Period is a half-open time span
// which may recur at a fixed calendar interval and which carries a capacity
// limit in bytes. Tariffs are validated before construction, looked up by
// time, and serialized with a versioned binary codec (see Encode and Decode).
package tariff
