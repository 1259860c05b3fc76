// Package lending holds the client-side market math: share accounting, the
// health factor engine, liquidation sizing and the rate estimate.
//
// Every function here is pure over explicit inputs. The contracts remain
// authoritative; these functions only simulate them for display and for the
// pre-flight gates that run before a transaction is sent.
package lending
