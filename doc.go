// Package hitl pauses automated workflows for human decisions before risky
// steps proceed. It scores how confident the automation is in an action,
// estimates the risk of proceeding unsupervised, routes decision requests
// through multi-level approval chains, enforces timeouts with configurable
// fallback behaviour and learns from outcomes to improve future scoring.
//
// The root package is a thin facade wiring the sub-services together; each
// concern lives in its own package under service/.
package hitl
